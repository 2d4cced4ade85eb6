package scan

import "errors"

var (
	// ErrInvalidRequest is returned before any remote call when the post id or
	// image URL is missing or malformed.
	ErrInvalidRequest = errors.New("invalid scan request")
	// ErrRemote wraps transport and decoding failures from the scan service.
	ErrRemote = errors.New("scan service call failed")
	// ErrTimeout means the poll budget ran out while the job was still running.
	ErrTimeout = errors.New("scan timed out")
	// ErrCacheWrite means the scan finished but its items could not be stored
	// on the post. The Result is still returned alongside this error.
	ErrCacheWrite = errors.New("store scan results")
	// ErrScanInProgress rejects a second concurrent scan of the same post.
	ErrScanInProgress = errors.New("scan already in progress for post")
)
