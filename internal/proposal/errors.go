package proposal

import "errors"

var (
	ErrInvalidID        = errors.New("invalid proposal id")
	ErrEmptyName        = errors.New("names cannot be empty")
	ErrAlreadyExists    = errors.New("proposal id already exists")
	ErrNotFound         = errors.New("proposal not found")
	ErrStoreUnavailable = errors.New("proposal store unavailable")
	ErrListener         = errors.New("proposal listener failed")
)
