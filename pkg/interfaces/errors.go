package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrContextNotFound = errors.New("interview context not found")
	ErrInvalidToken    = errors.New("invalid invite token")
)
