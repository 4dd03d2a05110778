package solar

import "errors"

var (
	// ErrInvalidLocation is a user-correctable location input error.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrIncompleteInputs means an earlier stage has not produced a result.
	ErrIncompleteInputs = errors.New("complete the previous step first")
	// ErrProviderUnavailable is returned by providers and absorbed by the chains.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrInvalidInput is a validation failure for energy, roof or financial input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionNotFound is returned by session stores for unknown keys.
	ErrSessionNotFound = errors.New("estimation session not found")
	// ErrRecordNotFound is returned by record stores for unknown ids.
	ErrRecordNotFound = errors.New("estimation record not found")
)
