package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"interviewroom/internal/phase"
	"interviewroom/pkg/interfaces"
	"interviewroom/pkg/types"
)

// Options configures every session created by a Manager
type Options struct {
	Machine             *phase.Machine
	Policy              ReassurancePolicy
	CollaboratorTimeout time.Duration
	MailboxSize         int
	MaxPendingAudio     int
	DefaultLanguage     string
	VoiceID             string
}

// DefaultOptions returns production defaults
func DefaultOptions() Options {
	return Options{
		Machine:             phase.Default(),
		Policy:              NewProbabilityPolicy(0.3, 0, nil),
		CollaboratorTimeout: 30 * time.Second,
		MailboxSize:         256,
		MaxPendingAudio:     10 << 20,
		DefaultLanguage:     "en",
		VoiceID:             "alloy",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Machine == nil {
		o.Machine = d.Machine
	}
	if o.Policy == nil {
		o.Policy = d.Policy
	}
	if o.CollaboratorTimeout <= 0 {
		o.CollaboratorTimeout = d.CollaboratorTimeout
	}
	if o.MailboxSize <= 0 {
		o.MailboxSize = d.MailboxSize
	}
	if o.MaxPendingAudio <= 0 {
		o.MaxPendingAudio = d.MaxPendingAudio
	}
	if o.DefaultLanguage == "" {
		o.DefaultLanguage = d.DefaultLanguage
	}
	if o.VoiceID == "" {
		o.VoiceID = d.VoiceID
	}
	return o
}

// Manager is the session registry: the only state shared between actors
// ARCHITECTURAL DISCOVERY: The map lock guards membership only; it is never
// held while talking to a session, so a slow actor cannot stall lookups
type Manager struct {
	collab   interfaces.Collaborators
	opts     Options
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewManager creates a session registry
func NewManager(collab interfaces.Collaborators, opts Options) (*Manager, error) {
	if collab.Transcriber == nil || collab.Interviewer == nil || collab.Synthesizer == nil ||
		collab.Quick == nil || collab.Macro == nil || collab.Reports == nil ||
		collab.Persistence == nil || collab.Context == nil {
		return nil, ErrMissingCollaborator
	}
	return &Manager{
		collab:   collab,
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Session),
	}, nil
}

// GetOrCreate returns the session for interviewID, creating it if unseen
// FUNCTIONAL DISCOVERY: Racing joins for the same unseen ID observe one
// instance; created is true for exactly one caller
func (m *Manager) GetOrCreate(interviewID string) (s *Session, created bool, err error) {
	if !types.IsValidID(interviewID) {
		return nil, false, fmt.Errorf("%w: %v", types.ErrValidation, types.ErrInvalidID)
	}

	m.mu.RLock()
	s, exists := m.sessions[interviewID]
	m.mu.RUnlock()
	if exists {
		return s, false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, exists = m.sessions[interviewID]; exists {
		return s, false, nil
	}
	s = newSession(interviewID, m.collab, m.opts)
	m.sessions[interviewID] = s
	log.Printf("Created session: interview=%s", interviewID)
	return s, true, nil
}

// Get returns an existing session or types.ErrNotFound
func (m *Manager) Get(interviewID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[interviewID]
	if !exists {
		return nil, types.ErrNotFound
	}
	return s, nil
}

// Remove stops and forgets a session; used by the retention sweep
func (m *Manager) Remove(interviewID string) {
	m.mu.Lock()
	s, exists := m.sessions[interviewID]
	delete(m.sessions, interviewID)
	m.mu.Unlock()

	if exists {
		s.Stop()
		log.Printf("Removed session: interview=%s", interviewID)
	}
}

// Sweep removes finalized sessions completed at least retention before now
// and returns their IDs
func (m *Manager) Sweep(now time.Time, retention time.Duration) []string {
	m.mu.RLock()
	var expired []string
	for id, s := range m.sessions {
		if !s.Finalized() {
			continue
		}
		if done := s.CompletedAt(); !done.IsZero() && now.Sub(done) >= retention {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.Remove(id)
	}
	if len(expired) > 0 {
		log.Printf("Retention sweep removed %d sessions", len(expired))
	}
	return expired
}

// List returns every live session
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// GetStats returns registry statistics
func (m *Manager) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	completed := 0
	for _, s := range m.sessions {
		if !s.CompletedAt().IsZero() {
			completed++
		}
	}
	return map[string]interface{}{
		"sessions":           len(m.sessions),
		"completed_sessions": completed,
	}
}

// Shutdown stops every session actor
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, s := range sessions {
			wg.Add(1)
			go func(s *Session) {
				defer wg.Done()
				s.Stop()
			}(s)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("Stopped %d session actors", len(sessions))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
