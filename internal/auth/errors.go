package auth

import "errors"

var (
	// ErrInvalidInput is returned for malformed request data such as an
	// unparseable email address.
	ErrInvalidInput = errors.New("invalid input")

	// One-time link failures. Each is reported to the client separately.
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
	ErrAlreadyUsed  = errors.New("token already used")

	// ErrReservedEmail is returned when a one-time link is requested for the
	// admin address, which signs in with its credential pair only.
	ErrReservedEmail = errors.New("address signs in with credentials")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)
