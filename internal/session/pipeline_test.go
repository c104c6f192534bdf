package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"interviewroom/pkg/types"
)

// TestSession_JoinGreets tests functional validation - first join speaks the opening turn
func TestSession_JoinGreets(t *testing.T) {
	f := newFakes()
	m := newTestManager(t, f, Options{})
	s, conn := joinAndGreet(t, m, "int-1")

	joined := conn.last(types.EventJoined)
	if joined == nil {
		t.Fatal("Expected joined event")
	}
	if p := joined.Data.(types.JoinedPayload); p.Reconnected || p.PhaseName != "warmup" {
		t.Errorf("Unexpected joined payload: %+v", p)
	}

	q := conn.last(types.EventAIQuestion).Data.(types.AIQuestionPayload)
	if q.SequenceNumber != 0 || q.Phase != types.PhaseWarmup {
		t.Errorf("Expected opening question at seq 0 in warmup, got %+v", q)
	}
	if len(q.Audio) == 0 {
		t.Error("Expected synthesized audio on opening question")
	}

	snap := snapshot(t, s)
	if snap.Status != types.StatusActive {
		t.Errorf("Expected status active, got %s", snap.Status)
	}
	if len(snap.Transcript) != 1 || snap.Transcript[0].Speaker != types.SpeakerAI {
		t.Errorf("Expected one AI turn, got %+v", snap.Transcript)
	}
}

// TestSession_SequenceNumbersMatchIndex tests functional validation - transcript ordering
func TestSession_SequenceNumbersMatchIndex(t *testing.T) {
	f := newFakes()
	m := newTestManager(t, f, Options{})
	s, conn := joinAndGreet(t, m, "int-seq")

	for i := 0; i < 3; i++ {
		answer(t, s, conn)
	}

	snap := snapshot(t, s)
	if len(snap.Transcript) != 7 {
		t.Fatalf("Expected 7 turns, got %d", len(snap.Transcript))
	}
	for i, turn := range snap.Transcript {
		if turn.SequenceNumber != i {
			t.Errorf("Turn %d has sequence number %d", i, turn.SequenceNumber)
		}
		wantSpeaker := types.SpeakerAI
		if i%2 == 1 {
			wantSpeaker = types.SpeakerCandidate
		}
		if turn.Speaker != wantSpeaker {
			t.Errorf("Turn %d: expected speaker %s, got %s", i, wantSpeaker, turn.Speaker)
		}
	}

	eventually(t, "persisted turns", func() bool {
		f.persistence.mu.Lock()
		defer f.persistence.mu.Unlock()
		return len(f.persistence.turns) == 7
	})
}

// TestSession_PhaseAdvancesAfterThreshold tests functional validation - warmup to claim verification
func TestSession_PhaseAdvancesAfterThreshold(t *testing.T) {
	f := newFakes()
	m := newTestManager(t, f, Options{})
	s, conn := joinAndGreet(t, m, "int-phase")

	for i := 0; i < 2; i++ {
		answer(t, s, conn)
	}
	if p := snapshot(t, s).Phase; p != types.PhaseWarmup {
		t.Fatalf("Expected warmup after 2 answers, got %s", p)
	}

	answer(t, s, conn)
	if p := snapshot(t, s).Phase; p != types.PhaseClaimVerification {
		t.Errorf("Expected claim_verification after 3 answers, got %s", p)
	}
	q := conn.last(types.EventAIQuestion).Data.(types.AIQuestionPayload)
	if q.PhaseName != "claim_verification" {
		t.Errorf("Expected next question in claim_verification, got %s", q.PhaseName)
	}
}

// TestSession_AudioTurn tests functional validation - chunks, completion, transcription
func TestSession_AudioTurn(t *testing.T) {
	f := newFakes()
	m := newTestManager(t, f, Options{})
	s, conn := joinAndGreet(t, m, "int-audio")
	ctx := context.Background()

	if err := s.CandidateAudio(ctx, conn, []byte{1, 2}); err != nil {
		t.Fatalf("Failed to buffer chunk: %v", err)
	}
	if err := s.CandidateAudio(ctx, conn, []byte{3}); err != nil {
		t.Fatalf("Failed to buffer chunk: %v", err)
	}
	if err := s.CandidateAudioComplete(ctx, conn); err != nil {
		t.Fatalf("Failed to complete audio: %v", err)
	}
	eventually(t, "second question", func() bool { return conn.count(types.EventAIQuestion) == 2 })

	tr := conn.last(types.EventTranscription)
	if tr == nil || tr.Data.(types.TranscriptionPayload).Text != "I built a queue in Go" {
		t.Errorf("Expected transcription event, got %+v", tr)
	}
	if conn.count(types.EventRecording) < 2 {
		t.Error("Expected recording processing and idle events")
	}

	if err := s.CandidateAudioComplete(ctx, conn); !errors.Is(err, types.ErrNoPendingAudio) {
		t.Errorf("Expected ErrNoPendingAudio, got %v", err)
	}
}

// TestSession_RejectsAudioCompleteWhileInFlight tests concurrency validation - one transcription at a time
func TestSession_RejectsAudioCompleteWhileInFlight(t *testing.T) {
	f := newFakes()
	f.transcriber.gate = make(chan struct{})
	m := newTestManager(t, f, Options{})
	s, conn := joinAndGreet(t, m, "int-inflight")
	ctx := context.Background()

	if err := s.CandidateAudio(ctx, conn, []byte("first")); err != nil {
		t.Fatalf("Failed to buffer chunk: %v", err)
	}
	if err := s.CandidateAudioComplete(ctx, conn); err != nil {
		t.Fatalf("Failed to complete audio: %v", err)
	}
	eventually(t, "transcriber call", func() bool { return f.transcriber.calls.Load() == 1 })

	if err := s.CandidateAudio(ctx, conn, []byte("second")); err != nil {
		t.Fatalf("Failed to buffer chunk: %v", err)
	}
	if err := s.CandidateAudioComplete(ctx, conn); !errors.Is(err, types.ErrTurnInFlight) {
		t.Errorf("Expected ErrTurnInFlight, got %v", err)
	}
	if err := s.CandidateText(ctx, conn, "typed"); !errors.Is(err, types.ErrTurnInFlight) {
		t.Errorf("Expected ErrTurnInFlight for text, got %v", err)
	}

	close(f.transcriber.gate)
	eventually(t, "second question", func() bool { return conn.count(types.EventAIQuestion) == 2 })

	if n := f.transcriber.calls.Load(); n != 1 {
		t.Errorf("Expected exactly 1 transcription, got %d", n)
	}
	if n := len(snapshot(t, s).Transcript); n != 3 {
		t.Errorf("Expected 3 turns, got %d", n)
	}
}

// TestSession_TransientFailureKeepsSessionActive tests error handling - collaborator failure fails soft
func TestSession_TransientFailureKeepsSessionActive(t *testing.T) {
	f := newFakes()
	f.transcriber.err = errors.New("upstream 503 with secret detail")
	m := newTestManager(t, f, Options{})
	s, conn := joinAndGreet(t, m, "int-transient")
	ctx := context.Background()

	if err := s.CandidateAudio(ctx, conn, []byte("x")); err != nil {
		t.Fatalf("Failed to buffer chunk: %v", err)
	}
	if err := s.CandidateAudioComplete(ctx, conn); err != nil {
		t.Fatalf("Failed to complete audio: %v", err)
	}
	eventually(t, "error event", func() bool { return conn.count(types.EventError) == 1 })

	msg := conn.last(types.EventError).Data.(types.ErrorPayload).Message
	if msg != types.ClientMessage(types.ErrTransient) {
		t.Errorf("Expected generic transient message, got %q", msg)
	}

	snap := snapshot(t, s)
	if snap.Status != types.StatusActive || len(snap.Transcript) != 1 {
		t.Errorf("Expected active session with only the greeting, got %s with %d turns", snap.Status, len(snap.Transcript))
	}

	// The turn slot is free again; a typed answer goes through
	answer(t, s, conn)
}

// TestSession_SpeechFailureDegradesToText tests error handling - TTS failure sends text only
func TestSession_SpeechFailureDegradesToText(t *testing.T) {
	f := newFakes()
	f.synthesizer.err = errors.New("tts down")
	m := newTestManager(t, f, Options{})
	_, conn := joinAndGreet(t, m, "int-tts")

	q := conn.last(types.EventAIQuestion).Data.(types.AIQuestionPayload)
	if q.Text == "" || q.Audio != nil {
		t.Errorf("Expected text-only question, got %+v", q)
	}
	if conn.count(types.EventError) != 0 {
		t.Error("Speech failure should not surface an error event")
	}
}

// TestSession_ReconnectRestoresState tests functional validation - reconnect resumes without a new session
func TestSession_ReconnectRestoresState(t *testing.T) {
	f := newFakes()
	m := newTestManager(t, f, Options{})
	s, first := joinAndGreet(t, m, "int-reconnect")
	answer(t, s, first)

	s.DisconnectCandidate(first)
	if snapshot(t, s).Connected {
		t.Fatal("Expected candidate connection to be cleared")
	}

	again, created, err := m.GetOrCreate("int-reconnect")
	if err != nil || created || again != s {
		t.Fatalf("Expected existing session, got created=%v err=%v", created, err)
	}

	second := newFakeConn("cand-1")
	if err := again.JoinCandidate(context.Background(), second, "cand-1", "en"); err != nil {
		t.Fatalf("Failed to rejoin: %v", err)
	}
	joined := second.last(types.EventJoined).Data.(types.JoinedPayload)
	if !joined.Reconnected || joined.TurnCount != 3 || joined.LastQuestion == "" {
		t.Errorf("Unexpected rejoin payload: %+v", joined)
	}
	if second.count(types.EventAIQuestion) != 0 {
		t.Error("Reconnect must not trigger another greeting")
	}
	if f.interviewer.calls.Load() != 2 {
		t.Errorf("Expected 2 interviewer calls, got %d", f.interviewer.calls.Load())
	}

	third := newFakeConn("cand-1")
	if err := s.JoinCandidate(context.Background(), third, "cand-1", "en"); err != nil {
		t.Fatalf("Failed to rejoin: %v", err)
	}
	eventually(t, "superseded connection closed", second.isClosed)
	if len(m.List()) != 1 {
		t.Errorf("Expected 1 session, got %d", len(m.List()))
	}
}

// TestSession_CandidateMismatch tests validation - second candidate cannot take over
func TestSession_CandidateMismatch(t *testing.T) {
	f := newFakes()
	m := newTestManager(t, f, Options{})
	s, _ := joinAndGreet(t, m, "int-mismatch")

	err := s.JoinCandidate(context.Background(), newFakeConn("other"), "other", "en")
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
	if err := s.JoinCandidate(context.Background(), nil, "cand-1", "en"); err != ErrNilConnection {
		t.Errorf("Expected ErrNilConnection, got %v", err)
	}
}

// TestSession_AudioCap tests validation - oversized pending audio is discarded
func TestSession_AudioCap(t *testing.T) {
	f := newFakes()
	m := newTestManager(t, f, Options{MaxPendingAudio: 4})
	s, conn := joinAndGreet(t, m, "int-cap")
	ctx := context.Background()

	if err := s.CandidateAudio(ctx, conn, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Failed to buffer chunk: %v", err)
	}
	if err := s.CandidateAudio(ctx, conn, []byte{4, 5}); !errors.Is(err, types.ErrAudioTooLarge) {
		t.Errorf("Expected ErrAudioTooLarge, got %v", err)
	}
	if err := s.CandidateAudioComplete(ctx, conn); !errors.Is(err, types.ErrNoPendingAudio) {
		t.Errorf("Expected buffer to be cleared, got %v", err)
	}
}

// TestSession_HighStressReassurance tests functional validation - policy replaces the interviewer
func TestSession_HighStressReassurance(t *testing.T) {
	f := newFakes()
	f.quick.stress = types.StressHigh
	m := newTestManager(t, f, Options{Policy: FixedPolicy{Always: true, Text: "Take a breath."}})
	s, conn := joinAndGreet(t, m, "int-stress")

	answer(t, s, conn)

	q := conn.last(types.EventAIQuestion).Data.(types.AIQuestionPayload)
	if !q.Reassurance || q.Text != "Take a breath." {
		t.Errorf("Expected reassurance utterance, got %+v", q)
	}
	if n := f.interviewer.calls.Load(); n != 1 {
		t.Errorf("Expected interviewer to be skipped, got %d calls", n)
	}
	if snap := snapshot(t, s); snap.StressLevel != types.StressHigh {
		t.Errorf("Expected high stress, got %s", snap.StressLevel)
	}
}

// TestSession_QuickCheckFailureKeepsStress tests error handling - advisory checks never abort the turn
func TestSession_QuickCheckFailureKeepsStress(t *testing.T) {
	f := newFakes()
	f.quick.err = errors.New("classifier timeout")
	m := newTestManager(t, f, Options{})
	s, conn := joinAndGreet(t, m, "int-quick")

	answer(t, s, conn)

	if snap := snapshot(t, s); snap.StressLevel != types.StressLow {
		t.Errorf("Expected previous stress level to be kept, got %s", snap.StressLevel)
	}
	if conn.count(types.EventError) != 0 {
		t.Error("Quick-check failure should not surface an error event")
	}
}

// TestSession_RejectsInputFromUnboundConnection tests validation - only the bound socket speaks for the candidate
func TestSession_RejectsInputFromUnboundConnection(t *testing.T) {
	f := newFakes()
	m := newTestManager(t, f, Options{})
	s, conn := joinAndGreet(t, m, "int-bound")
	ctx := context.Background()
	intruder := newFakeConn("cand-1")

	if err := s.CandidateText(ctx, intruder, "answering for you"); !errors.Is(err, types.ErrNotJoined) {
		t.Errorf("Expected ErrNotJoined for text, got %v", err)
	}
	if err := s.CandidateAudio(ctx, intruder, []byte("x")); !errors.Is(err, types.ErrNotJoined) {
		t.Errorf("Expected ErrNotJoined for audio, got %v", err)
	}
	if err := s.CandidateAudioComplete(ctx, intruder); !errors.Is(err, types.ErrNotJoined) {
		t.Errorf("Expected ErrNotJoined for audio complete, got %v", err)
	}
	if err := s.EndByCandidate(ctx, intruder); !errors.Is(err, types.ErrNotJoined) {
		t.Errorf("Expected ErrNotJoined for end, got %v", err)
	}
	if err := s.EndByCandidate(ctx, nil); !errors.Is(err, types.ErrNotJoined) {
		t.Errorf("Expected ErrNotJoined for nil connection, got %v", err)
	}

	snap := snapshot(t, s)
	if snap.Status != types.StatusActive || len(snap.Transcript) != 1 {
		t.Errorf("Intruder changed the session: status=%s turns=%d", snap.Status, len(snap.Transcript))
	}

	second := newFakeConn("cand-1")
	if err := s.JoinCandidate(ctx, second, "cand-1", "en"); err != nil {
		t.Fatalf("Failed to reconnect: %v", err)
	}
	if err := s.CandidateText(ctx, conn, "from the old socket"); !errors.Is(err, types.ErrNotJoined) {
		t.Errorf("Expected superseded socket to be rejected, got %v", err)
	}
	answer(t, s, second)
}

// TestSession_UtteranceStagesBoundedSeparately tests timeout handling - interviewer and speech each get the full bound
func TestSession_UtteranceStagesBoundedSeparately(t *testing.T) {
	f := newFakes()
	f.interviewer.delay = 200 * time.Millisecond
	f.synthesizer.delay = 200 * time.Millisecond
	m := newTestManager(t, f, Options{CollaboratorTimeout: 300 * time.Millisecond})
	s, conn := joinAndGreet(t, m, "int-stages")

	opening := conn.last(types.EventAIQuestion).Data.(types.AIQuestionPayload)
	if len(opening.Audio) == 0 {
		t.Error("Expected spoken opening when each call fits the timeout")
	}

	answer(t, s, conn)
	q := conn.last(types.EventAIQuestion).Data.(types.AIQuestionPayload)
	if len(q.Audio) == 0 {
		t.Error("Expected spoken question when each call fits the timeout")
	}
	if n := conn.count(types.EventError); n != 0 {
		t.Errorf("Expected no errors, got %d", n)
	}
}

// TestSession_DisconnectDiscardsPartialAnswer tests functional validation - a reconnect starts a fresh audio answer
func TestSession_DisconnectDiscardsPartialAnswer(t *testing.T) {
	f := newFakes()
	m := newTestManager(t, f, Options{})
	s, conn := joinAndGreet(t, m, "int-partial")
	ctx := context.Background()

	if err := s.CandidateAudio(ctx, conn, []byte("half an ans")); err != nil {
		t.Fatalf("Failed to buffer chunk: %v", err)
	}
	s.DisconnectCandidate(conn)

	second := newFakeConn("cand-1")
	if err := s.JoinCandidate(ctx, second, "cand-1", "en"); err != nil {
		t.Fatalf("Failed to reconnect: %v", err)
	}
	if err := s.CandidateAudioComplete(ctx, second); !errors.Is(err, types.ErrNoPendingAudio) {
		t.Errorf("Expected audio from the dropped socket to be gone, got %v", err)
	}
}
