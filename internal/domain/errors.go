package domain

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrStateTransition  = errors.New("illegal status transition")
	ErrPersistence      = errors.New("persistence failure")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
)
