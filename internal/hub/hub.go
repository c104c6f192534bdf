package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"interviewroom/internal/session"
	"interviewroom/internal/websocket"
	"interviewroom/pkg/interfaces"
	"interviewroom/pkg/types"
)

// Config tunes the hub's control-event rate limit
type Config struct {
	RateLimit       int
	RateWindow      time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig allows 100 control events per minute per participant
func DefaultConfig() Config {
	return Config{
		RateLimit:       100,
		RateWindow:      time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Hub routes decoded gateway events to session actors
// ARCHITECTURAL DISCOVERY: Dispatch runs on the reading socket's goroutine and
// only ever hands work to one session's mailbox, so a slow interview never
// delays events for another
type Hub struct {
	sessions *session.Manager
	registry *websocket.Registry
	tokens   interfaces.TokenValidator
	limiter  *RateLimiter
	cfg      Config

	shutdownChannel chan struct{}
	running         bool
	mu              sync.RWMutex
}

// NewHub creates a hub; a nil token validator accepts every invite
func NewHub(sessions *session.Manager, registry *websocket.Registry, tokens interfaces.TokenValidator, cfg Config) (*Hub, error) {
	if sessions == nil {
		return nil, ErrMissingManager
	}
	if registry == nil {
		registry = websocket.NewRegistry()
	}
	d := DefaultConfig()
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = d.CleanupInterval
	}
	return &Hub{
		sessions:        sessions,
		registry:        registry,
		tokens:          tokens,
		limiter:         NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		cfg:             cfg,
		shutdownChannel: make(chan struct{}),
	}, nil
}

// Start begins background maintenance
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting interview hub...")
	go h.run(ctx)
	return nil
}

// Stop halts background maintenance; later events are rejected
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	log.Println("Stopping interview hub...")
	select {
	case <-h.shutdownChannel:
	default:
		close(h.shutdownChannel)
	}
	return nil
}

// IsRunning reports whether the hub accepts events
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) run(ctx context.Context) {
	defer log.Println("Hub maintenance stopped")

	ticker := time.NewTicker(h.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.limiter.Cleanup()
		case <-h.shutdownChannel:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch handles one client event and answers failures with an error event
func (h *Hub) Dispatch(ctx context.Context, conn *websocket.Connection, ev *types.InboundEvent) {
	err := h.dispatch(ctx, conn, ev)
	if err == nil {
		return
	}
	log.Printf("Event %s from conn=%s user=%s interview=%s failed: %v",
		ev.Type, conn.ID(), conn.GetUserID(), conn.GetSessionID(), err)
	h.sendError(conn, err)
}

func (h *Hub) dispatch(ctx context.Context, conn *websocket.Connection, ev *types.InboundEvent) error {
	if !h.IsRunning() {
		return ErrHubNotRunning
	}

	switch ev.Type {
	case types.EventJoinInterview:
		return h.joinCandidate(ctx, conn, ev)
	case types.EventHRJoin:
		return h.joinObserver(ctx, conn, ev)
	}

	if !conn.IsAuthenticated() {
		return types.ErrNotJoined
	}
	if !isMedia(ev.Type) && !h.limiter.Allow(conn.GetSessionID()+"/"+conn.GetUserID()) {
		return types.ErrRateLimited
	}
	s, err := h.sessions.Get(conn.GetSessionID())
	if err != nil {
		return err
	}

	switch conn.GetRole() {
	case interfaces.RoleCandidate:
		return h.candidateEvent(ctx, s, conn, ev)
	case interfaces.RoleObserver:
		return h.observerEvent(ctx, s, conn.GetUserID(), ev)
	}
	return types.ErrWrongRole
}

// isMedia reports streaming events exempt from the control rate limit
func isMedia(eventType string) bool {
	switch eventType {
	case types.EventCandidateAudio, types.EventHRAudio, types.EventHRVideo:
		return true
	}
	return false
}

// joinCandidate validates the invite before any session state is created
func (h *Hub) joinCandidate(ctx context.Context, conn *websocket.Connection, ev *types.InboundEvent) error {
	var p types.JoinInterviewPayload
	if err := decode(ev, &p); err != nil {
		return fmt.Errorf("%w: %v", types.ErrValidation, err)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if h.tokens != nil {
		if err := h.tokens.ValidateInvite(p.Token, p.InterviewID, p.CandidateID); err != nil {
			return fmt.Errorf("%w: %v", types.ErrValidation, err)
		}
	}

	// FUNCTIONAL DISCOVERY: Credentials are bound only after the session accepts
	// the join, so a rejected socket stays unauthenticated
	if err := conn.CanBind(p.CandidateID, interfaces.RoleCandidate, p.InterviewID); err != nil {
		return fmt.Errorf("%w: %v", types.ErrWrongRole, err)
	}
	s, _, err := h.sessions.GetOrCreate(p.InterviewID)
	if err != nil {
		return err
	}
	if err := s.JoinCandidate(ctx, conn, p.CandidateID, p.Language); err != nil {
		return err
	}
	if err := conn.SetCredentials(p.CandidateID, interfaces.RoleCandidate, p.InterviewID); err != nil {
		return fmt.Errorf("%w: %v", types.ErrWrongRole, err)
	}
	return h.registry.RegisterConnection(conn)
}

// joinObserver attaches HR to an existing interview only
func (h *Hub) joinObserver(ctx context.Context, conn *websocket.Connection, ev *types.InboundEvent) error {
	var p types.HRJoinPayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	s, err := h.sessions.Get(p.InterviewID)
	if err != nil {
		return err
	}

	if err := conn.CanBind(p.HRUserID, interfaces.RoleObserver, p.InterviewID); err != nil {
		return fmt.Errorf("%w: %v", types.ErrWrongRole, err)
	}
	if _, err := s.JoinObserver(ctx, conn, p.HRUserID, p.HRName); err != nil {
		return err
	}
	if err := conn.SetCredentials(p.HRUserID, interfaces.RoleObserver, p.InterviewID); err != nil {
		return fmt.Errorf("%w: %v", types.ErrWrongRole, err)
	}
	return h.registry.RegisterConnection(conn)
}

func (h *Hub) candidateEvent(ctx context.Context, s *session.Session, conn *websocket.Connection, ev *types.InboundEvent) error {
	switch ev.Type {
	case types.EventCandidateAudio:
		var p types.AudioChunkPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		return s.CandidateAudio(ctx, conn, p.Chunk)
	case types.EventCandidateAudioComplete:
		return s.CandidateAudioComplete(ctx, conn)
	case types.EventCandidateText:
		var p types.TextPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		return s.CandidateText(ctx, conn, p.Text)
	case types.EventEndInterview:
		return s.EndByCandidate(ctx, conn)
	}
	if isObserverEvent(ev.Type) {
		return types.ErrWrongRole
	}
	return types.ErrUnknownEvent
}

func (h *Hub) observerEvent(ctx context.Context, s *session.Session, hrUserID string, ev *types.InboundEvent) error {
	switch ev.Type {
	case types.EventHRReveal:
		return s.Reveal(ctx, hrUserID)
	case types.EventHRAudioToggle, types.EventHRVideoToggle:
		var p types.TogglePayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		if ev.Type == types.EventHRAudioToggle {
			return s.ToggleAudio(ctx, hrUserID, p.Enabled)
		}
		return s.ToggleVideo(ctx, hrUserID, p.Enabled)
	case types.EventHRAudio:
		var p types.AudioChunkPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		return s.RelayAudio(ctx, hrUserID, p.Chunk)
	case types.EventHRVideo:
		var p types.VideoFramePayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		return s.RelayVideo(ctx, hrUserID, p.Frame)
	case types.EventHRPause:
		return s.Pause(ctx, hrUserID)
	case types.EventHRResume:
		return s.Resume(ctx, hrUserID)
	case types.EventHREndInterview:
		return s.EndByObserver(ctx, hrUserID)
	case types.EventHRNote:
		var p types.TextPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		_, err := s.Note(ctx, hrUserID, p.Text)
		return err
	case types.EventHRText:
		var p types.TextPayload
		if err := decode(ev, &p); err != nil {
			return err
		}
		return s.Speak(ctx, hrUserID, p.Text)
	}
	if isCandidateEvent(ev.Type) {
		return types.ErrWrongRole
	}
	return types.ErrUnknownEvent
}

func isCandidateEvent(eventType string) bool {
	switch eventType {
	case types.EventCandidateAudio, types.EventCandidateAudioComplete, types.EventCandidateText, types.EventEndInterview:
		return true
	}
	return false
}

func isObserverEvent(eventType string) bool {
	switch eventType {
	case types.EventHRReveal, types.EventHRAudioToggle, types.EventHRVideoToggle, types.EventHRAudio,
		types.EventHRVideo, types.EventHRPause, types.EventHRResume, types.EventHREndInterview,
		types.EventHRNote, types.EventHRText:
		return true
	}
	return false
}

// Disconnect clears the participant's connection without ending the interview
func (h *Hub) Disconnect(conn *websocket.Connection) {
	if !conn.IsAuthenticated() {
		return
	}
	s, err := h.sessions.Get(conn.GetSessionID())
	if err != nil {
		return
	}
	switch conn.GetRole() {
	case interfaces.RoleCandidate:
		s.DisconnectCandidate(conn)
	case interfaces.RoleObserver:
		s.DisconnectObserver(conn.GetUserID(), conn)
	}
}

// Sweep removes expired sessions and closes any sockets still attached
func (h *Hub) Sweep(now time.Time, retention time.Duration) int {
	removed := h.sessions.Sweep(now, retention)
	for _, interviewID := range removed {
		if n := h.registry.CloseInterview(interviewID); n > 0 {
			log.Printf("Closed %d connections of swept interview=%s", n, interviewID)
		}
	}
	return len(removed)
}

// GetStats returns hub statistics for the health endpoint
func (h *Hub) GetStats() map[string]interface{} {
	stats := h.sessions.GetStats()
	for k, v := range h.registry.GetStats() {
		stats[k] = v
	}
	stats["rate_limited_clients"] = h.limiter.Len()
	stats["running"] = h.IsRunning()
	return stats
}

func decode(ev *types.InboundEvent, v interface{}) error {
	if len(ev.Data) == 0 {
		return types.ErrInvalidPayload
	}
	if err := json.Unmarshal(ev.Data, v); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidPayload, err)
	}
	return nil
}

func (h *Hub) sendError(conn *websocket.Connection, err error) {
	ev := types.NewEvent(types.EventError, types.ErrorPayload{Message: types.ClientMessage(err)})
	if werr := conn.WriteJSON(ev); werr != nil {
		log.Printf("Failed to send error to conn=%s: %v", conn.ID(), werr)
	}
}
