package model

import "time"

// Post is the subset of a post record this service reads and writes.
//
// ScanResults distinguishes "never scanned" (nil) from "scanned, nothing
// found" (empty, non-nil). Stores must preserve that difference.
type Post struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId,omitempty"`
	Caption     string       `json:"caption,omitempty"`
	ImageKey    string       `json:"imageKey"`
	ContentType string       `json:"contentType,omitempty"`
	ScanResults []OutfitItem `json:"scanResults"`
	ScannedAt   *time.Time   `json:"scannedAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Scanned reports whether a scan result has ever been cached on the post.
func (p *Post) Scanned() bool {
	return p.ScanResults != nil
}
