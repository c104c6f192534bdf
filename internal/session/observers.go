package session

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"interviewroom/pkg/interfaces"
	"interviewroom/pkg/types"
)

// JoinObserver attaches a hidden HR observer and returns a catch-up snapshot
// FUNCTIONAL DISCOVERY: A second connection for the same HR user replaces the
// first and keeps its visibility and modality flags
func (s *Session) JoinObserver(ctx context.Context, conn interfaces.Connection, hrUserID, hrName string) (types.SessionSnapshot, error) {
	var snap types.SessionSnapshot
	if conn == nil {
		return snap, ErrNilConnection
	}
	err := s.call(ctx, func() error {
		st := &s.state
		if o, exists := st.observers[hrUserID]; exists {
			if o.conn != nil && o.conn != conn {
				s.closeAsync(o.conn)
			}
			o.conn = conn
			o.info.Name = hrName
		} else {
			st.observers[hrUserID] = &observer{
				info: types.ObserverInfo{ID: hrUserID, Name: hrName, JoinedAt: time.Now()},
				conn: conn,
			}
		}
		s.logObserver(hrUserID, hrName, types.ObserverActionJoined)

		snap = s.snapshot()
		s.sendTo(conn, types.NewEvent(types.EventObserverJoined, types.ObserverJoinedPayload{
			ObserverID:   hrUserID,
			SessionState: snap,
		}))
		log.Printf("Observer joined: interview=%s observer=%s", s.id, hrUserID)
		return nil
	})
	return snap, err
}

// DisconnectObserver removes the observer if conn is still its connection
func (s *Session) DisconnectObserver(hrUserID string, conn interfaces.Connection) {
	s.post(func() {
		o, exists := s.state.observers[hrUserID]
		if !exists || o.conn != conn {
			return
		}
		delete(s.state.observers, hrUserID)
		s.logObserver(hrUserID, o.info.Name, types.ObserverActionLeft)
		if o.info.Visible {
			s.sendCandidate(types.NewEvent(types.EventObserverLeft, types.RevealSuccessPayload{ObserverID: hrUserID}))
		}
		log.Printf("Observer left: interview=%s observer=%s", s.id, hrUserID)
	})
}

// Reveal makes the observer visible to the candidate; repeat calls only
// re-acknowledge to the observer
func (s *Session) Reveal(ctx context.Context, hrUserID string) error {
	return s.withObserver(ctx, hrUserID, func(o *observer) error {
		if !o.info.Visible {
			o.info.Visible = true
			s.logObserver(hrUserID, o.info.Name, types.ObserverActionRevealed)
			s.sendCandidate(types.NewEvent(types.EventParticipantJoined, types.ParticipantPayload{
				ObserverID:   hrUserID,
				Name:         o.info.Name,
				AudioEnabled: o.info.AudioEnabled,
				VideoEnabled: o.info.VideoEnabled,
			}))
			log.Printf("Observer revealed: interview=%s observer=%s", s.id, hrUserID)
		}
		s.sendTo(o.conn, types.NewEvent(types.EventRevealSuccess, types.RevealSuccessPayload{ObserverID: hrUserID}))
		return nil
	})
}

// ToggleAudio sets the observer's audio flag
func (s *Session) ToggleAudio(ctx context.Context, hrUserID string, enabled bool) error {
	return s.withObserver(ctx, hrUserID, func(o *observer) error {
		o.info.AudioEnabled = enabled
		if o.info.Visible {
			s.sendCandidate(types.NewEvent(types.EventParticipantAudioChanged, types.ParticipantToggledPayload{
				ObserverID: hrUserID,
				Enabled:    enabled,
			}))
		}
		return nil
	})
}

// ToggleVideo sets the observer's video flag
func (s *Session) ToggleVideo(ctx context.Context, hrUserID string, enabled bool) error {
	return s.withObserver(ctx, hrUserID, func(o *observer) error {
		o.info.VideoEnabled = enabled
		if o.info.Visible {
			s.sendCandidate(types.NewEvent(types.EventParticipantVideoChanged, types.ParticipantToggledPayload{
				ObserverID: hrUserID,
				Enabled:    enabled,
			}))
		}
		return nil
	})
}

// RelayAudio forwards HR audio only from a visible observer with audio on
func (s *Session) RelayAudio(ctx context.Context, hrUserID string, chunk []byte) error {
	return s.withObserver(ctx, hrUserID, func(o *observer) error {
		if !o.info.Visible || !o.info.AudioEnabled {
			return nil
		}
		ev := types.NewEvent(types.EventHRAudioRelay, types.RelayAudioPayload{ObserverID: hrUserID, Chunk: chunk})
		s.sendCandidate(ev)
		s.sendObservers(ev, hrUserID)
		return nil
	})
}

// RelayVideo forwards HR video only from a visible observer with video on
func (s *Session) RelayVideo(ctx context.Context, hrUserID string, frame []byte) error {
	return s.withObserver(ctx, hrUserID, func(o *observer) error {
		if !o.info.Visible || !o.info.VideoEnabled {
			return nil
		}
		ev := types.NewEvent(types.EventHRVideoRelay, types.RelayVideoPayload{ObserverID: hrUserID, Frame: frame})
		s.sendCandidate(ev)
		s.sendObservers(ev, hrUserID)
		return nil
	})
}

// Pause stops the turn pipeline from accepting candidate input
func (s *Session) Pause(ctx context.Context, hrUserID string) error {
	return s.setPaused(ctx, hrUserID, true)
}

// Resume re-opens the turn pipeline
func (s *Session) Resume(ctx context.Context, hrUserID string) error {
	return s.setPaused(ctx, hrUserID, false)
}

func (s *Session) setPaused(ctx context.Context, hrUserID string, paused bool) error {
	return s.withObserver(ctx, hrUserID, func(o *observer) error {
		st := &s.state
		if st.status == types.StatusCompleted {
			return types.ErrCompleted
		}
		if st.paused == paused {
			return nil
		}
		st.paused = paused
		st.pendingAudio = nil
		if paused {
			st.status = types.StatusPaused
		} else {
			st.status = types.StatusActive
		}

		ev := types.NewEvent(types.EventInterviewPaused, types.PausedPayload{Paused: paused, By: o.info.Name})
		s.sendCandidate(ev)
		s.sendObservers(ev, "")
		log.Printf("Interview paused=%v: interview=%s observer=%s", paused, s.id, hrUserID)

		if !paused && st.held != nil {
			h := st.held
			st.held = nil
			s.onUtterance(h.token, h.text, h.audio, h.reassurance)
		}
		return nil
	})
}

// EndByObserver forces termination regardless of phase progress
func (s *Session) EndByObserver(ctx context.Context, hrUserID string) error {
	return s.withObserver(ctx, hrUserID, func(o *observer) error {
		s.terminate(types.ReasonHREnd)
		return nil
	})
}

// Note stores a private observer note; it is acknowledged to its author only
func (s *Session) Note(ctx context.Context, hrUserID, text string) (string, error) {
	text, err := types.ValidateText(text)
	if err != nil {
		return "", err
	}
	var noteID string
	err = s.withObserver(ctx, hrUserID, func(o *observer) error {
		note := types.Note{
			ID:          uuid.New().String(),
			InterviewID: s.id,
			ObserverID:  hrUserID,
			Text:        text,
			Timestamp:   time.Now(),
		}
		noteID = note.ID
		s.persist("save_note", func(ctx context.Context) error {
			return s.collab.Persistence.SaveNote(ctx, note)
		})
		s.sendTo(o.conn, types.NewEvent(types.EventNoteSaved, types.NoteSavedPayload{NoteID: note.ID}))
		return nil
	})
	return noteID, err
}

// Speak appends an HR turn from a visible observer and shows it to the candidate
func (s *Session) Speak(ctx context.Context, hrUserID, text string) error {
	text, err := types.ValidateText(text)
	if err != nil {
		return err
	}
	return s.withObserver(ctx, hrUserID, func(o *observer) error {
		if s.state.status == types.StatusCompleted {
			return types.ErrCompleted
		}
		if !o.info.Visible {
			return types.ErrObserverHidden
		}
		turn := s.appendTurn(types.SpeakerHR, hrUserID, text)
		s.sendCandidate(types.NewEvent(types.EventHRSpeech, types.HRSpeechPayload{
			ObserverID:     hrUserID,
			Name:           o.info.Name,
			Text:           text,
			SequenceNumber: turn.SequenceNumber,
		}))
		return nil
	})
}

func (s *Session) withObserver(ctx context.Context, hrUserID string, fn func(o *observer) error) error {
	return s.call(ctx, func() error {
		o, exists := s.state.observers[hrUserID]
		if !exists {
			return types.ErrObserverNotFound
		}
		return fn(o)
	})
}

func (s *Session) logObserver(hrUserID, name, action string) {
	entry := types.ObserverLogEntry{
		ID:          uuid.New().String(),
		InterviewID: s.id,
		ObserverID:  hrUserID,
		Name:        name,
		Action:      action,
		Timestamp:   time.Now(),
	}
	s.persist("log_observer", func(ctx context.Context) error {
		return s.collab.Persistence.LogObserver(ctx, entry)
	})
}
