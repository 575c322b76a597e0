// Package common defines shared sentinel errors used across client and server
// layers of roomdrop. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Request was malformed or out of bounds. Never retried.
	ErrValidation = errors.New("validation error")

	// A concurrent writer won a race (version number, room code, finalize).
	ErrConflict = errors.New("conflict")

	// Network/timeout/service unavailable. Retried with backoff, capped.
	ErrTransient = errors.New("transient error")

	// An upload or room passed its TTL. Terminal, the caller must restart.
	ErrExpired = errors.New("expired")

	// Finalize was attempted before every chunk was acknowledged.
	ErrIncompleteTransfer = errors.New("incomplete transfer")

	// Actor identity missing or failed verification.
	ErrUnauthorized = errors.New("unauthorized")

	// Generic internal failure crossing a service boundary.
	ErrInternal = errors.New("internal error")
)
