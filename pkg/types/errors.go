package types

import "errors"

var (
	// Lock errors
	ErrCannotAcquire = errors.New("cannot acquire lock")
	ErrCannotRelease = errors.New("cannot release lock: not the current owner")
	ErrCannotProlong = errors.New("cannot prolong lock: not the current owner")

	// Store errors
	ErrNotFound = errors.New("lock record not found")
)
