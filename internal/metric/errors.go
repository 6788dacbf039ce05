package metric

import "errors"

// Precondition failures. Computation never starts when one of these is
// returned, so a caller never sees a partial score.
var (
	// ErrInvalidInput reports a nil or empty buffer, a buffer whose samples
	// do not match its geometry, or a background intensity outside [0,1].
	ErrInvalidInput = errors.New("invalid input")

	// ErrSizeMismatch reports reference and distorted images of different
	// dimensions.
	ErrSizeMismatch = errors.New("image dimensions do not match")

	// ErrTooSmall reports an image below MinSize in either dimension.
	ErrTooSmall = errors.New("image too small")
)
