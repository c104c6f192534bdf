package interfaces

// Participant roles bound to a connection after join
const (
	RoleCandidate = "candidate"
	RoleObserver  = "observer"
)

// Connection represents a realtime client connection
// ARCHITECTURAL DISCOVERY: Session actors only ever hold this interface, so the
// orchestration core can be driven by in-memory fakes in tests
type Connection interface {
	// WriteJSON sends a JSON message to the client (thread-safe)
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error

	// GetUserID returns the candidate ID or HR user ID bound to the connection
	GetUserID() string

	// GetRole returns RoleCandidate or RoleObserver
	GetRole() string

	// GetSessionID returns the interview ID this connection joined
	GetSessionID() string

	// IsAuthenticated returns true once a join event has been accepted
	IsAuthenticated() bool

	// SetCredentials binds the connection to a participant after join
	SetCredentials(userID, role, sessionID string) error
}
