package domain

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthFailure        = errors.New("sign in failed")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrForbidden          = errors.New("access forbidden")

	ErrRoleNotFound    = errors.New("role not found")
	ErrEmailRequired   = errors.New("email is required")
	ErrEmailNotAllowed = errors.New("email is not allowed to bootstrap the admin role")
	ErrGrantFailed     = errors.New("role grant failed")
)
