// Package common defines shared sentinel errors used across the result
// service. Callers should use errors.Is to match these values.
package common

import "errors"

var (

	// repository-level errors
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("state conflict")

	// ingress-level errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation error")

	// data-corruption signal: digest or AEAD tag mismatch. Never retried
	// with the same ciphertext.
	ErrIntegrity = errors.New("integrity error")
)
