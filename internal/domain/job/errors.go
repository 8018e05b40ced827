package job

import "errors"

// Errors surfaced synchronously at submission or status-query time. Runtime
// transcoding failures are captured on the job record instead.
var (
	ErrInvalidParams     = errors.New("invalid transcoding parameters")
	ErrInvalidName       = errors.New("invalid file name")
	ErrStorageExhausted  = errors.New("storage quota exceeded")
	ErrQueueFull         = errors.New("transcode queue is full")
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyTerminal   = errors.New("job already finished")
	ErrOutputNotReady    = errors.New("output not ready")
)
