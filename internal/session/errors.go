package session

import "errors"

var (
	ErrMissingCollaborator = errors.New("session requires every collaborator")
	ErrCandidateMismatch   = errors.New("interview is bound to a different candidate")
	ErrNilConnection       = errors.New("connection cannot be nil")
)
