package domain

import "errors"

var (
	// ErrNotFound is returned when the requested activation or application does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidState is returned when an operation is not legal in the record's current status.
	ErrInvalidState = errors.New("invalid activation state")
	// ErrExpired is returned once an activation's timestampActivationExpire has passed.
	ErrExpired = errors.New("activation expired")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
	// ErrCryptoFailure covers invalid key material, MAC mismatch, and ECDH/decrypt failures.
	ErrCryptoFailure = errors.New("cryptographic operation failed")
	// ErrSignatureInvalid is a negative verification outcome, not an exceptional one: an
	// activation OTP mismatch at key exchange or commit. Callers must not treat this as
	// ErrCryptoFailure.
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrLimitExceeded is returned when id-generation retries are exhausted.
	ErrLimitExceeded = errors.New("limit exceeded")
	// ErrRecoveryPukAdvanced signals a recovery PUK index advance outcome.
	ErrRecoveryPukAdvanced = errors.New("recovery puk advanced")
	// ErrConfig is returned when a request needs an encryption key the server was not configured with.
	ErrConfig = errors.New("configuration error")
)
