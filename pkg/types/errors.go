package types

import "errors"

// ARCHITECTURAL DISCOVERY: Error taxonomy sentinels shared by every component
// so the gateway can classify failures with errors.Is without importing them
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("interview not found")
	ErrTransient       = errors.New("collaborator unavailable")
	ErrTerminationRace = errors.New("interview already terminating")
)

// Recoverable, user-visible conditions raised by the session actor
var (
	ErrInvalidID           = errors.New("id must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidPayload      = errors.New("invalid event payload")
	ErrTextTooLong         = errors.New("text exceeds 4000 characters")
	ErrEmptyText           = errors.New("text cannot be empty")
	ErrTurnInFlight        = errors.New("previous answer is still being processed")
	ErrPaused              = errors.New("interview is paused")
	ErrCompleted           = errors.New("interview has ended")
	ErrEmptyTranscription  = errors.New("no speech detected")
	ErrNoPendingAudio      = errors.New("no audio received")
	ErrAudioTooLarge       = errors.New("audio answer too long")
	ErrObserverNotFound    = errors.New("observer not found")
	ErrObserverHidden      = errors.New("observer must be revealed first")
	ErrNotJoined           = errors.New("connection has not joined an interview")
	ErrWrongRole           = errors.New("event not allowed for this participant")
	ErrUnknownEvent        = errors.New("unknown event type")
	ErrRateLimited         = errors.New("too many events")
	ErrSessionShuttingDown = errors.New("interview session is shutting down")
)

// ClientMessage maps an error to the short message carried by an error event
// FUNCTIONAL DISCOVERY: Raw error text never leaves the server; anything not in
// the taxonomy collapses to a generic message
func ClientMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "Invalid or expired invitation"
	case errors.Is(err, ErrNotFound):
		return "Interview not found"
	case errors.Is(err, ErrTransient):
		return "Service temporarily unavailable, please try again"
	case errors.Is(err, ErrTurnInFlight):
		return "Still processing your previous answer"
	case errors.Is(err, ErrPaused):
		return "The interview is paused"
	case errors.Is(err, ErrCompleted):
		return "The interview has ended"
	case errors.Is(err, ErrEmptyTranscription), errors.Is(err, ErrNoPendingAudio):
		return "We could not hear you, please try again"
	case errors.Is(err, ErrAudioTooLarge):
		return "Your answer was too long, please try again"
	case errors.Is(err, ErrObserverHidden):
		return "Reveal yourself before speaking"
	case errors.Is(err, ErrObserverNotFound):
		return "Observer not found"
	case errors.Is(err, ErrNotJoined):
		return "Join an interview first"
	case errors.Is(err, ErrWrongRole):
		return "Action not allowed"
	case errors.Is(err, ErrUnknownEvent):
		return "Unknown action"
	case errors.Is(err, ErrRateLimited):
		return "Too many requests, slow down"
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrTextTooLong), errors.Is(err, ErrEmptyText):
		return "Invalid request"
	default:
		return "Something went wrong"
	}
}
