// Package model contains simple struct definitions shared across packages.
package model

import "encoding/json"

// JobStatus is the lifecycle reported by the remote inference service. The
// values are owned by the remote side, so unknown strings are kept verbatim
// rather than rejected.
type JobStatus string

const (
	JobStarting   JobStatus = "starting"
	JobProcessing JobStatus = "processing"
	JobSucceeded  JobStatus = "succeeded"
	JobFailed     JobStatus = "failed"
)

// Pending reports whether the job is still in one of the two non-terminal
// states. Anything else, including statuses we have never seen, ends polling.
func (s JobStatus) Pending() bool {
	return s == JobStarting || s == JobProcessing
}

// ScanJob mirrors the remote job document. It is never persisted.
type ScanJob struct {
	ID     string     `json:"id"`
	Status JobStatus  `json:"status"`
	Output *JobOutput `json:"output,omitempty"`
}

// JobOutput is only present once the job reached a terminal state.
type JobOutput struct {
	JSONData *DetectorData `json:"json_data,omitempty"`
}

// DetectorData wraps the raw detection list.
type DetectorData struct {
	Objects []RawDetection `json:"objects"`
}

// RawDetection keeps each detector object undecoded because different
// detectors name the same field differently (name/label/category, ...).
type RawDetection map[string]json.RawMessage

// Objects returns the raw detections carried by the job, or nil when the job
// has no output yet.
func (j *ScanJob) Objects() []RawDetection {
	if j == nil || j.Output == nil || j.Output.JSONData == nil {
		return nil
	}
	return j.Output.JSONData.Objects
}

// Detection is a raw detection after alias resolution. Box coordinates are
// opaque; their order depends on the detector.
type Detection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box"`
}

// OutfitItem is the normalized, persisted shape. ID is positional and only
// unique within one scan result set.
type OutfitItem struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Brand   string `json:"brand"`
	ShopURL string `json:"shopURL"`
}
