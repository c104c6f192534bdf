package session

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"interviewroom/internal/phase"
	"interviewroom/pkg/interfaces"
	"interviewroom/pkg/types"
)

// Session is the single-threaded actor owning one interview
// ARCHITECTURAL DISCOVERY: Every read or write of state happens on the run
// goroutine; gateway events, collaborator results and timers all arrive as
// closures on the mailbox, so no field below "state" needs a lock
type Session struct {
	id     string
	collab interfaces.Collaborators
	opts   Options

	mailbox   chan func()
	persistCh chan persistOp
	quit      chan struct{}
	stopped   chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
	workers   sync.WaitGroup
	persister sync.WaitGroup

	// Mirrors readable without the actor, for the retention sweep
	completedAt atomic.Int64
	finalized   atomic.Bool

	state state
}

type observer struct {
	info types.ObserverInfo
	conn interfaces.Connection
}

type state struct {
	candidateID  string
	status       types.Status
	candidate    interfaces.Connection
	progress     phase.Progress
	transcript   []types.Turn
	stress       types.StressLevel
	micro        []types.MicroAssessment
	observers    map[string]*observer
	pendingAudio []byte
	paused       bool
	language     string
	voiceID      string
	interview    types.InterviewContext
	startedAt    time.Time
	completedAt  time.Time
	reason       types.TerminationReason
	report       *types.Report

	// inFlight is the token of the candidate turn currently being processed;
	// collaborator results carrying any other token are discarded
	inFlight  uint64
	nextToken uint64
	greeted   bool

	// held is an AI utterance that finished generating while paused
	held *heldUtterance
}

type heldUtterance struct {
	token       uint64
	text        string
	audio       []byte
	reassurance bool
}

type persistOp struct {
	name string
	fn   func(ctx context.Context) error
}

func newSession(id string, collab interfaces.Collaborators, opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		collab:    collab,
		opts:      opts,
		mailbox:   make(chan func(), opts.MailboxSize),
		persistCh: make(chan persistOp, opts.MailboxSize),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		state: state{
			status:    types.StatusJoining,
			stress:    types.StressLow,
			observers: make(map[string]*observer),
			language:  opts.DefaultLanguage,
			voiceID:   opts.VoiceID,
			startedAt: time.Now(),
		},
	}

	s.persister.Add(1)
	go s.persistLoop()
	go s.run()
	return s
}

// ID returns the interview ID
func (s *Session) ID() string {
	return s.id
}

// run is the actor loop
func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.mailbox:
			fn()
		case <-s.quit:
			return
		}
	}
}

// post enqueues fn for the actor without waiting for it to run
func (s *Session) post(fn func()) bool {
	select {
	case s.mailbox <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// tryPost is post without blocking; the persistence loop uses it so a full
// mailbox can never wedge the actor against its own write queue
func (s *Session) tryPost(fn func()) {
	select {
	case s.mailbox <- fn:
	default:
		log.Printf("Mailbox full, dropped notification for interview=%s", s.id)
	}
}

// call runs fn on the actor and waits for its result
func (s *Session) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	cmd := func() { result <- fn() }

	select {
	case s.mailbox <- cmd:
	case <-s.quit:
		return types.ErrSessionShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-s.stopped:
		return types.ErrSessionShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// work runs a collaborator stage off the actor; fn must hand its result back
// through post and bound each collaborator call it makes with bounded
func (s *Session) work(fn func(ctx context.Context)) {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		fn(s.ctx)
	}()
}

// bounded derives the deadline for one collaborator call
// TECHNICAL DISCOVERY: Stages that chain calls (interviewer then speech, macros
// then report then speech) get a fresh timeout per call, never a shared one
func (s *Session) bounded(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.opts.CollaboratorTimeout)
}

// persist queues a durable write; writes for one session run in order
func (s *Session) persist(name string, fn func(ctx context.Context) error) {
	select {
	case s.persistCh <- persistOp{name: name, fn: fn}:
	case <-s.quit:
		log.Printf("Dropped %s for interview=%s: session stopped", name, s.id)
	}
}

func (s *Session) persistLoop() {
	defer s.persister.Done()
	for op := range s.persistCh {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.CollaboratorTimeout)
		err := op.fn(ctx)
		cancel()
		if err != nil {
			log.Printf("Persistence %s failed for interview=%s: %v", op.name, s.id, err)
			s.tryPost(func() { s.sendCandidateError(fmt.Errorf("%w: %v", types.ErrTransient, err)) })
		}
	}
}

// Stop shuts the actor down, waits for in-flight collaborator calls to
// observe cancellation and drains queued persistence writes
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.cancel()
		<-s.stopped
		s.workers.Wait()
		close(s.persistCh)
		s.persister.Wait()
	})
}

// Done is closed once the actor loop has exited
func (s *Session) Done() <-chan struct{} {
	return s.stopped
}

// CompletedAt returns when the interview was terminated, zero if it is live
func (s *Session) CompletedAt() time.Time {
	n := s.completedAt.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Finalized reports whether report synthesis has finished
func (s *Session) Finalized() bool {
	return s.finalized.Load()
}

// Snapshot returns a copy of the session state
func (s *Session) Snapshot(ctx context.Context) (types.SessionSnapshot, error) {
	var snap types.SessionSnapshot
	err := s.call(ctx, func() error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

func (s *Session) snapshot() types.SessionSnapshot {
	st := &s.state
	snap := types.SessionSnapshot{
		InterviewID: s.id,
		CandidateID: st.candidateID,
		Status:      st.status,
		Phase:       st.progress.Phase,
		PhaseName:   st.progress.Phase.String(),
		Transcript:  s.transcriptCopy(),
		IsPaused:    st.paused,
		StressLevel: st.stress,
		Language:    st.language,
		StartedAt:   st.startedAt,
		Observers:   s.observerInfos(),
		Connected:   st.candidate != nil,
	}
	if !st.completedAt.IsZero() {
		at := st.completedAt
		snap.CompletedAt = &at
	}
	return snap
}

func (s *Session) transcriptCopy() []types.Turn {
	out := make([]types.Turn, len(s.state.transcript))
	copy(out, s.state.transcript)
	return out
}

func (s *Session) observerInfos() []types.ObserverInfo {
	infos := make([]types.ObserverInfo, 0, len(s.state.observers))
	for _, o := range s.state.observers {
		infos = append(infos, o.info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].JoinedAt.Equal(infos[j].JoinedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].JoinedAt.Before(infos[j].JoinedAt)
	})
	return infos
}

// appendTurn assigns the next sequence number, persists and fans the turn out
// to observers
func (s *Session) appendTurn(speaker types.Speaker, speakerID, text string) types.Turn {
	st := &s.state
	turn := types.Turn{
		Speaker:        speaker,
		SpeakerID:      speakerID,
		Text:           text,
		SequenceNumber: len(st.transcript),
		Phase:          st.progress.Phase,
		Timestamp:      time.Now(),
	}
	st.transcript = append(st.transcript, turn)

	s.persist("append_turn", func(ctx context.Context) error {
		return s.collab.Persistence.AppendTurn(ctx, s.id, turn)
	})
	s.sendObservers(types.NewEvent(types.EventTranscriptUpdate, types.TranscriptUpdatePayload{
		Transcript: s.transcriptCopy(),
		Phase:      st.progress.Phase,
	}), "")
	return turn
}

func (s *Session) lastAITurn() string {
	for i := len(s.state.transcript) - 1; i >= 0; i-- {
		if s.state.transcript[i].Speaker == types.SpeakerAI {
			return s.state.transcript[i].Text
		}
	}
	return ""
}

// sendCandidate writes to the bound candidate connection, if any
func (s *Session) sendCandidate(ev *types.Event) {
	conn := s.state.candidate
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(ev); err != nil {
		log.Printf("Failed to deliver %s to candidate in interview=%s: %v", ev.Type, s.id, err)
	}
}

// sendObservers writes to every observer except the one with ID except
func (s *Session) sendObservers(ev *types.Event, except string) {
	for id, o := range s.state.observers {
		if id == except || o.conn == nil {
			continue
		}
		if err := o.conn.WriteJSON(ev); err != nil {
			log.Printf("Failed to deliver %s to observer %s in interview=%s: %v", ev.Type, id, s.id, err)
		}
	}
}

func (s *Session) sendTo(conn interfaces.Connection, ev *types.Event) {
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(ev); err != nil {
		log.Printf("Failed to deliver %s in interview=%s: %v", ev.Type, s.id, err)
	}
}

func (s *Session) sendCandidateError(err error) {
	s.sendCandidate(types.NewEvent(types.EventError, types.ErrorPayload{Message: types.ClientMessage(err)}))
}

func (s *Session) closeAsync(conn interfaces.Connection) {
	go func() {
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close superseded connection in interview=%s: %v", s.id, err)
		}
	}()
}
