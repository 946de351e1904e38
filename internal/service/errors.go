package service

import "errors"

// Sentinel errors returned by the auth services. Handlers map these to HTTP
// statuses with errors.Is; anything else is treated as an internal failure.
var (
	// ErrForbidden: the identity is not the configured administrator.
	ErrForbidden = errors.New("identity is not authorized")

	// ErrNotConfigured: no administrator identity is configured at all.
	ErrNotConfigured = errors.New("no administrator identity configured")

	// ErrDeliveryFailed: the code could not be handed to the delivery channel.
	ErrDeliveryFailed = errors.New("code delivery failed")

	// ErrNotFound: no verification request exists for the token.
	ErrNotFound = errors.New("verification request not found")

	// ErrAlreadyUsed: the request was already consumed by a successful verify.
	ErrAlreadyUsed = errors.New("verification request already used")

	// ErrExpired: the request's validity window has elapsed, or it is locked
	// after too many failed attempts. The two cases are deliberately
	// indistinguishable to the caller.
	ErrExpired = errors.New("verification request expired")

	// ErrInvalidCode: the presented code does not match.
	ErrInvalidCode = errors.New("invalid verification code")
)
