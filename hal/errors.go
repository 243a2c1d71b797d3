package hal

import "errors"

// Error taxonomy shared by every front-end package. Call sites wrap these
// with context; callers match with errors.Is.
var (
	// ErrAllocation: device memory exhausted. The channel stays unusable
	// until initialization is retried.
	ErrAllocation = errors.New("mcfe: device memory allocation failed")

	// ErrMapping: host or device pinning of an allocated node failed.
	ErrMapping = errors.New("mcfe: device memory mapping failed")

	// ErrBufferTooSmall: caller-supplied encode buffer cannot hold the command.
	ErrBufferTooSmall = errors.New("mcfe: buffer too small")

	// ErrInvalidArgument: out-of-range id or index, or an operation the
	// addressed channel cannot perform. Always a caller bug.
	ErrInvalidArgument = errors.New("mcfe: invalid argument")

	// ErrTimeout: a caller-imposed deadline expired during admission.
	ErrTimeout = errors.New("mcfe: timeout")
)
