package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"interviewroom/internal/phase"
	"interviewroom/pkg/interfaces"
	"interviewroom/pkg/types"
)

// fakeConn records every event written to it
type fakeConn struct {
	userID string
	role   string
	mu     sync.Mutex
	events []*types.Event
	closed bool
}

func newFakeConn(userID string) *fakeConn {
	return &fakeConn{userID: userID}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	ev, ok := v.(*types.Event)
	if !ok {
		return fmt.Errorf("unexpected message %T", v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) GetUserID() string     { return c.userID }
func (c *fakeConn) GetRole() string       { return c.role }
func (c *fakeConn) GetSessionID() string  { return "" }
func (c *fakeConn) IsAuthenticated() bool { return true }

func (c *fakeConn) SetCredentials(userID, role, sessionID string) error {
	c.userID, c.role = userID, role
	return nil
}

func (c *fakeConn) count(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func (c *fakeConn) last(eventType string) *types.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Type == eventType {
			return c.events[i]
		}
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// eventually polls cond until it holds or the deadline passes
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// sleepCtx waits d or until ctx ends
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeTranscriber struct {
	text  string
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, languageHint string) (string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

type fakeInterviewer struct {
	delay time.Duration
	gate  chan struct{}
	calls atomic.Int32
}

func (f *fakeInterviewer) NextUtterance(ctx context.Context, uc interfaces.UtteranceContext) (string, error) {
	n := f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := sleepCtx(ctx, f.delay); err != nil {
		return "", err
	}
	return fmt.Sprintf("Question %d about %s", n, uc.Phase), nil
}

type fakeSynthesizer struct {
	delay time.Duration
	err   error
}

func (f *fakeSynthesizer) Speak(ctx context.Context, text, language, voiceID string) ([]byte, error) {
	if err := sleepCtx(ctx, f.delay); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte("audio:" + text), nil
}

type fakeQuick struct {
	stress types.StressLevel
	err    error
}

func (f *fakeQuick) Stress(ctx context.Context, text string) (types.StressLevel, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.stress, nil
}

func (f *fakeQuick) Authenticity(ctx context.Context, question, response string) (string, error) {
	return "plausible", f.err
}

type fakeMacro struct {
	delay time.Duration
	err   error
}

func (f *fakeMacro) result(ctx context.Context, score float64) (types.MacroResult, error) {
	if err := sleepCtx(ctx, f.delay); err != nil {
		return types.MacroResult{}, err
	}
	if f.err != nil {
		return types.MacroResult{}, f.err
	}
	return types.MacroResult{Score: score, Summary: "ok"}, nil
}

func (f *fakeMacro) Consistency(ctx context.Context, transcript []types.Turn, cvText string) (types.MacroResult, error) {
	return f.result(ctx, 0.9)
}

func (f *fakeMacro) Authenticity(ctx context.Context, transcript []types.Turn, cvText string) (types.MacroResult, error) {
	return f.result(ctx, 0.8)
}

func (f *fakeMacro) Stress(ctx context.Context, transcript []types.Turn, cvText string) (types.MacroResult, error) {
	return f.result(ctx, 0.2)
}

type fakeReports struct {
	delay time.Duration
	err   error
	calls atomic.Int32
}

func (f *fakeReports) Generate(ctx context.Context, rc types.ReportContext) (types.Report, error) {
	f.calls.Add(1)
	if err := sleepCtx(ctx, f.delay); err != nil {
		return types.Report{}, err
	}
	if f.err != nil {
		return types.Report{}, f.err
	}
	return types.Report{
		Summary:        fmt.Sprintf("%d turns", len(rc.Transcript)),
		Recommendation: "advance",
		ClosingMessage: "Thanks, we'll be in touch.",
	}, nil
}

type fakePersistence struct {
	mu        sync.Mutex
	turns     []types.Turn
	results   []types.FinalResult
	observers []types.ObserverLogEntry
	notes     []types.Note
}

func (f *fakePersistence) AppendTurn(ctx context.Context, interviewID string, turn types.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turn)
	return nil
}

func (f *fakePersistence) Finalize(ctx context.Context, interviewID string, result types.FinalResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
	return nil
}

func (f *fakePersistence) LogObserver(ctx context.Context, entry types.ObserverLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, entry)
	return nil
}

func (f *fakePersistence) SaveNote(ctx context.Context, note types.Note) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, note)
	return nil
}

func (f *fakePersistence) finalizeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

type fakeContext struct{}

func (fakeContext) InterviewContext(ctx context.Context, interviewID string) (types.InterviewContext, error) {
	if interviewID == "no-context" {
		return types.InterviewContext{}, errors.New("not found")
	}
	return types.InterviewContext{
		InterviewID: interviewID,
		JobTitle:    "Backend Engineer",
		CVText:      "Go, SQL",
	}, nil
}

type fakes struct {
	transcriber *fakeTranscriber
	interviewer *fakeInterviewer
	synthesizer *fakeSynthesizer
	quick       *fakeQuick
	macro       *fakeMacro
	reports     *fakeReports
	persistence *fakePersistence
}

func newFakes() *fakes {
	return &fakes{
		transcriber: &fakeTranscriber{text: "I built a queue in Go"},
		interviewer: &fakeInterviewer{},
		synthesizer: &fakeSynthesizer{},
		quick:       &fakeQuick{stress: types.StressLow},
		macro:       &fakeMacro{},
		reports:     &fakeReports{},
		persistence: &fakePersistence{},
	}
}

func (f *fakes) collaborators() interfaces.Collaborators {
	return interfaces.Collaborators{
		Transcriber: f.transcriber,
		Interviewer: f.interviewer,
		Synthesizer: f.synthesizer,
		Quick:       f.quick,
		Macro:       f.macro,
		Reports:     f.reports,
		Persistence: f.persistence,
		Context:     fakeContext{},
	}
}

func newTestManager(t *testing.T, f *fakes, opts Options) *Manager {
	t.Helper()
	if opts.Policy == nil {
		opts.Policy = FixedPolicy{}
	}
	if opts.CollaboratorTimeout == 0 {
		opts.CollaboratorTimeout = time.Second
	}
	m, err := NewManager(f.collaborators(), opts)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.Shutdown(ctx); err != nil {
			t.Errorf("Failed to shut down manager: %v", err)
		}
	})
	return m
}

func testMachine(t *testing.T, thresholds phase.Thresholds, safetyCap int) *phase.Machine {
	t.Helper()
	m, err := phase.New(thresholds, safetyCap)
	if err != nil {
		t.Fatalf("Failed to create machine: %v", err)
	}
	return m
}

// joinAndGreet joins a candidate and waits for the opening question
func joinAndGreet(t *testing.T, m *Manager, interviewID string) (*Session, *fakeConn) {
	t.Helper()
	s, _, err := m.GetOrCreate(interviewID)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	conn := newFakeConn("cand-1")
	if err := s.JoinCandidate(context.Background(), conn, "cand-1", "en"); err != nil {
		t.Fatalf("Failed to join candidate: %v", err)
	}
	eventually(t, "greeting", func() bool { return conn.count(types.EventAIQuestion) == 1 })
	return s, conn
}

// answer submits one typed answer and waits for the next question
func answer(t *testing.T, s *Session, conn *fakeConn) {
	t.Helper()
	want := conn.count(types.EventAIQuestion) + 1
	if err := s.CandidateText(context.Background(), conn, "Here is my answer"); err != nil {
		t.Fatalf("Failed to submit answer: %v", err)
	}
	eventually(t, "next question", func() bool { return conn.count(types.EventAIQuestion) == want })
}

func snapshot(t *testing.T, s *Session) types.SessionSnapshot {
	t.Helper()
	snap, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Failed to snapshot: %v", err)
	}
	return snap
}
