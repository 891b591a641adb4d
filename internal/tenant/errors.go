package tenant

import "errors"

var (
	ErrInvalidInput = errors.New("tenant: invalid input")
	ErrForbidden    = errors.New("tenant: forbidden")
	ErrNotFound     = errors.New("tenant: not found")
	ErrConflict     = errors.New("tenant: conflict")
	ErrAlreadyUsed  = errors.New("tenant: invite code already used")
	ErrExpired      = errors.New("tenant: invite code expired")
)
