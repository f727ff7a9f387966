package repository

import "errors"

// Sentinel errors for storage facts. Services translate them into domain errors.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrStorage  = errors.New("storage failure")
)

// abortError carries a caller-supplied mutation error out of a transaction
// so it is returned verbatim and never retried.
type abortError struct {
	err error
}

func (e abortError) Error() string { return e.err.Error() }

func (e abortError) Unwrap() error { return e.err }
