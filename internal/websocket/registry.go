package websocket

import (
	"log"
	"sync"

	"interviewroom/pkg/interfaces"
)

// Registry tracks joined connections per interview and role
// ARCHITECTURAL DISCOVERY: Pure connection bookkeeping; routing decisions live
// in the session actors, which hold their own connection references
type Registry struct {
	mu         sync.RWMutex                      // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy stats and lookups
	candidates map[string]*Connection            // interviewID -> candidate Connection
	observers  map[string]map[string]*Connection // interviewID -> hrUserID -> Connection
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		candidates: make(map[string]*Connection),
		observers:  make(map[string]map[string]*Connection),
	}
}

// RegisterConnection records a joined connection, replacing any previous
// connection for the same participant
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	userID := conn.GetUserID()
	interviewID := conn.GetSessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	var existing *Connection
	switch conn.GetRole() {
	case interfaces.RoleCandidate:
		existing = r.candidates[interviewID]
		r.candidates[interviewID] = conn
	case interfaces.RoleObserver:
		if r.observers[interviewID] == nil {
			r.observers[interviewID] = make(map[string]*Connection)
		}
		existing = r.observers[interviewID][userID]
		r.observers[interviewID][userID] = conn
	}

	// FUNCTIONAL DISCOVERY: Close the replaced connection asynchronously to avoid
	// holding the registry lock across socket I/O
	if existing != nil && existing != conn {
		go func() {
			if err := existing.Close(); err != nil {
				log.Printf("Failed to close replaced connection %s: %v", existing.ID(), err)
			}
		}()
	}

	return nil
}

// UnregisterConnection removes conn only if it is still the registered instance
// RACE CONDITION FIX: A replaced connection's cleanup never removes its successor
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil || !conn.IsAuthenticated() {
		return
	}

	userID := conn.GetUserID()
	interviewID := conn.GetSessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch conn.GetRole() {
	case interfaces.RoleCandidate:
		if r.candidates[interviewID] == conn {
			delete(r.candidates, interviewID)
		}
	case interfaces.RoleObserver:
		if observers, exists := r.observers[interviewID]; exists && observers[userID] == conn {
			delete(observers, userID)
			if len(observers) == 0 {
				delete(r.observers, interviewID)
			}
		}
	}
}

// GetCandidate returns the candidate connection of an interview
func (r *Registry) GetCandidate(interviewID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.candidates[interviewID]
	return conn, exists
}

// GetObservers returns the observer connections of an interview
func (r *Registry) GetObservers(interviewID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []*Connection
	for _, conn := range r.observers[interviewID] {
		connections = append(connections, conn)
	}
	return connections
}

// CloseInterview closes every connection of an interview; used when the
// retention sweep removes its session
func (r *Registry) CloseInterview(interviewID string) int {
	r.mu.Lock()
	var connections []*Connection
	if conn, exists := r.candidates[interviewID]; exists {
		connections = append(connections, conn)
		delete(r.candidates, interviewID)
	}
	for _, conn := range r.observers[interviewID] {
		connections = append(connections, conn)
	}
	delete(r.observers, interviewID)
	r.mu.Unlock()

	for _, conn := range connections {
		_ = conn.Close()
	}
	return len(connections)
}

// GetStats returns registry statistics for monitoring
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	interviews := make(map[string]bool)
	observers := 0
	for interviewID := range r.candidates {
		interviews[interviewID] = true
	}
	for interviewID, conns := range r.observers {
		interviews[interviewID] = true
		observers += len(conns)
	}

	return map[string]int{
		"total_connections":     len(r.candidates) + observers,
		"candidate_connections": len(r.candidates),
		"observer_connections":  observers,
		"active_interviews":     len(interviews),
	}
}
