package utils

import "errors"

// ErrNonRetryable indicates a failure that another attempt will not fix:
// malformed external response, missing upstream data, bad input
type ErrNonRetryable struct {
	err error
}

// NewErrNonRetryable creates new error
func NewErrNonRetryable(err error) error {
	return &ErrNonRetryable{err: err}
}

func (e *ErrNonRetryable) Error() string {
	return "non retryable error: " + e.err.Error()
}

func (e *ErrNonRetryable) Unwrap() error {
	return e.err
}

// IsNonRetryable checks the error chain
func IsNonRetryable(err error) bool {
	var e *ErrNonRetryable
	return errors.As(err, &e)
}
