package domain

import "errors"

var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrJobBusy          = errors.New("job already running")
)
