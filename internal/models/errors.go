package models

import "errors"

// Error taxonomy. Engines wrap these with %w and keep the original
// cause in the chain, callers branch with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("already exists")
	ErrValidation     = errors.New("validation rejected")
	ErrLockTimeout    = errors.New("lock wait timed out")
	ErrPersistence    = errors.New("storage failure")
	ErrAbuseDetected  = errors.New("abuse threshold exceeded")
	ErrBusUnavailable = errors.New("bus circuit open")
)
