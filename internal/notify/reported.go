package notify

import "errors"

type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Reported marks err as already shown to the user through a notification,
// so callers further up can skip printing it again.
func Reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}

// IsReported reports whether err, or anything it wraps, was marked by Reported.
func IsReported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}
