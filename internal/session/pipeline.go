package session

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"interviewroom/internal/phase"
	"interviewroom/pkg/interfaces"
	"interviewroom/pkg/types"
)

// JoinCandidate binds conn as the candidate connection
// FUNCTIONAL DISCOVERY: Binding is by interview ID, so a reconnect from a new
// socket resumes phase, transcript and pause state; the superseded socket is
// closed rather than left half-bound
func (s *Session) JoinCandidate(ctx context.Context, conn interfaces.Connection, candidateID, language string) error {
	if conn == nil {
		return ErrNilConnection
	}
	return s.call(ctx, func() error {
		st := &s.state
		if st.status == types.StatusCompleted {
			return types.ErrCompleted
		}
		if st.candidateID != "" && st.candidateID != candidateID {
			return fmt.Errorf("%w: %v", types.ErrValidation, ErrCandidateMismatch)
		}

		if st.candidate != nil && st.candidate != conn {
			s.closeAsync(st.candidate)
		}
		st.candidate = conn
		st.candidateID = candidateID
		reconnected := st.greeted
		if !reconnected && language != "" {
			st.language = language
		}

		s.sendCandidate(types.NewEvent(types.EventJoined, types.JoinedPayload{
			InterviewID:  s.id,
			Phase:        st.progress.Phase,
			PhaseName:    st.progress.Phase.String(),
			IsPaused:     st.paused,
			Reconnected:  reconnected,
			TurnCount:    len(st.transcript),
			LastQuestion: s.lastAITurn(),
		}))

		if reconnected {
			log.Printf("Candidate reconnected: interview=%s candidate=%s turns=%d", s.id, candidateID, len(st.transcript))
			return nil
		}

		st.greeted = true
		st.status = types.StatusActive
		log.Printf("Candidate joined: interview=%s candidate=%s", s.id, candidateID)
		s.startGreeting()
		return nil
	})
}

// DisconnectCandidate clears the connection reference and drops partial audio; the session persists
func (s *Session) DisconnectCandidate(conn interfaces.Connection) {
	s.post(func() {
		if s.state.candidate != conn {
			return
		}
		s.state.candidate = nil
		s.state.pendingAudio = nil
		log.Printf("Candidate disconnected: interview=%s", s.id)
	})
}

// boundCandidate rejects input from any socket other than the joined candidate
func (s *Session) boundCandidate(conn interfaces.Connection) error {
	if conn == nil || s.state.candidate != conn {
		return types.ErrNotJoined
	}
	return nil
}

// CandidateAudio buffers one streamed chunk until the completion signal
func (s *Session) CandidateAudio(ctx context.Context, conn interfaces.Connection, chunk []byte) error {
	return s.call(ctx, func() error {
		st := &s.state
		if err := s.boundCandidate(conn); err != nil {
			return err
		}
		if st.status == types.StatusCompleted {
			return types.ErrCompleted
		}
		if st.paused {
			return nil
		}
		if len(st.pendingAudio)+len(chunk) > s.opts.MaxPendingAudio {
			st.pendingAudio = nil
			return types.ErrAudioTooLarge
		}
		st.pendingAudio = append(st.pendingAudio, chunk...)
		return nil
	})
}

// CandidateAudioComplete turns the buffered audio into one candidate turn
func (s *Session) CandidateAudioComplete(ctx context.Context, conn interfaces.Connection) error {
	return s.call(ctx, func() error {
		st := &s.state
		if err := s.boundCandidate(conn); err != nil {
			return err
		}
		if err := s.acceptInput(); err != nil {
			st.pendingAudio = nil
			return err
		}
		if len(st.pendingAudio) == 0 {
			return types.ErrNoPendingAudio
		}
		audio := st.pendingAudio
		st.pendingAudio = nil

		token := s.beginTurn()
		language := st.language
		s.sendCandidate(types.NewEvent(types.EventRecording, types.RecordingPayload{Status: types.RecordingProcessing}))

		s.work(func(base context.Context) {
			ctx, cancel := s.bounded(base)
			defer cancel()
			text, err := s.collab.Transcriber.Transcribe(ctx, audio, language)
			s.post(func() { s.onCandidateText(token, text, err) })
		})
		return nil
	})
}

// CandidateText submits a typed answer, skipping transcription
func (s *Session) CandidateText(ctx context.Context, conn interfaces.Connection, text string) error {
	text, err := types.ValidateText(text)
	if err != nil {
		return err
	}
	return s.call(ctx, func() error {
		if err := s.boundCandidate(conn); err != nil {
			return err
		}
		if err := s.acceptInput(); err != nil {
			return err
		}
		token := s.beginTurn()
		s.sendCandidate(types.NewEvent(types.EventRecording, types.RecordingPayload{Status: types.RecordingProcessing}))
		s.onCandidateText(token, text, nil)
		return nil
	})
}

// EndByCandidate lets the candidate leave early; it terminates like HR end
func (s *Session) EndByCandidate(ctx context.Context, conn interfaces.Connection) error {
	return s.call(ctx, func() error {
		if err := s.boundCandidate(conn); err != nil {
			return err
		}
		s.terminate(types.ReasonCandidateEnd)
		return nil
	})
}

// acceptInput rejects candidate input that must not start a turn
func (s *Session) acceptInput() error {
	st := &s.state
	switch {
	case st.status == types.StatusCompleted:
		return types.ErrCompleted
	case st.paused:
		return types.ErrPaused
	case st.inFlight != 0:
		return types.ErrTurnInFlight
	}
	return nil
}

func (s *Session) beginTurn() uint64 {
	s.state.nextToken++
	s.state.inFlight = s.state.nextToken
	return s.state.inFlight
}

// endTurn settles the in-flight turn if token still owns it
func (s *Session) endTurn(token uint64) {
	if s.state.inFlight != token {
		return
	}
	s.state.inFlight = 0
	s.sendCandidate(types.NewEvent(types.EventRecording, types.RecordingPayload{Status: types.RecordingIdle}))
}

// current reports whether a stage result for token should still be applied
func (s *Session) current(token uint64) bool {
	return s.state.inFlight == token && s.state.status != types.StatusCompleted
}

// onCandidateText appends the candidate turn and starts the micro-analyses
func (s *Session) onCandidateText(token uint64, text string, err error) {
	if !s.current(token) {
		return
	}
	st := &s.state

	if err != nil {
		log.Printf("Transcription failed: interview=%s: %v", s.id, err)
		s.endTurn(token)
		s.sendCandidateError(fmt.Errorf("%w: transcribe: %v", types.ErrTransient, err))
		return
	}
	text, verr := types.ValidateText(text)
	if verr != nil {
		s.endTurn(token)
		s.sendCandidateError(types.ErrEmptyTranscription)
		return
	}
	if st.paused {
		log.Printf("Dropped candidate answer received while paused: interview=%s", s.id)
		s.endTurn(token)
		return
	}

	turn := s.appendTurn(types.SpeakerCandidate, st.candidateID, text)
	s.sendCandidate(types.NewEvent(types.EventTranscription, types.TranscriptionPayload{
		Text:           text,
		SequenceNumber: turn.SequenceNumber,
	}))

	question := s.lastAITurn()
	s.work(func(ctx context.Context) {
		micro := s.assess(ctx, turn.SequenceNumber, question, text)
		s.post(func() { s.onAssessed(token, micro) })
	})
}

// assess runs the stress and authenticity quick-checks concurrently
// FUNCTIONAL DISCOVERY: Both checks are advisory; a failure is recorded on the
// assessment and never aborts the turn
func (s *Session) assess(base context.Context, seq int, question, answer string) types.MicroAssessment {
	micro := types.MicroAssessment{SequenceNumber: seq}
	var g errgroup.Group

	g.Go(func() error {
		ctx, cancel := s.bounded(base)
		defer cancel()
		level, err := s.collab.Quick.Stress(ctx, answer)
		if err != nil {
			log.Printf("Stress quick-check failed: interview=%s seq=%d: %v", s.id, seq, err)
			micro.StressFailed = true
			return nil
		}
		micro.Stress = level
		return nil
	})
	g.Go(func() error {
		ctx, cancel := s.bounded(base)
		defer cancel()
		quality, err := s.collab.Quick.Authenticity(ctx, question, answer)
		if err != nil {
			log.Printf("Authenticity quick-check failed: interview=%s seq=%d: %v", s.id, seq, err)
			micro.QualityFailed = true
			return nil
		}
		micro.Authenticity = quality
		return nil
	})
	_ = g.Wait()
	return micro
}

// onAssessed records the micro-analysis, evaluates the phase machine and
// either terminates or starts generating the next utterance
func (s *Session) onAssessed(token uint64, micro types.MicroAssessment) {
	if !s.current(token) {
		return
	}
	st := &s.state

	if micro.StressFailed {
		micro.Stress = st.stress
	} else if micro.Stress != "" {
		st.stress = micro.Stress
	}
	st.micro = append(st.micro, micro)

	before := st.progress.Phase
	decision := s.opts.Machine.Record(&st.progress)
	switch decision.Action {
	case phase.Terminate:
		s.endTurn(token)
		s.terminate(decision.Reason)
		return
	case phase.Advance:
		log.Printf("Phase advanced: interview=%s %s -> %s", s.id, before, st.progress.Phase)
	}

	reassure := s.opts.Policy.Reassure(st.stress)
	uc := s.utteranceContext()
	uc.Reassurance = reassure
	var reassurance string
	if reassure {
		reassurance = s.opts.Policy.Message()
	}
	s.startUtterance(token, uc, reassurance)
}

func (s *Session) utteranceContext() interfaces.UtteranceContext {
	st := &s.state
	return interfaces.UtteranceContext{
		Interview:   st.interview,
		Phase:       st.progress.Phase,
		Transcript:  s.transcriptCopy(),
		StressLevel: st.stress,
		Language:    st.language,
	}
}

// startGreeting loads the interview context and speaks the opening line as
// the session's first turn
func (s *Session) startGreeting() {
	token := s.beginTurn()
	uc := s.utteranceContext()
	uc.Opening = true

	s.work(func(base context.Context) {
		ctx, cancel := s.bounded(base)
		ic, err := s.collab.Context.InterviewContext(ctx, s.id)
		cancel()
		if err != nil {
			log.Printf("Interview context unavailable: interview=%s: %v", s.id, err)
		}
		s.post(func() { s.onContext(ic) })

		uc.Interview = s.withDefaults(ic)
		if uc.Interview.Language != "" {
			uc.Language = uc.Interview.Language
		}
		s.generate(base, token, uc, "")
	})
}

func (s *Session) withDefaults(ic types.InterviewContext) types.InterviewContext {
	if ic.InterviewID == "" {
		ic.InterviewID = s.id
	}
	return ic
}

func (s *Session) onContext(ic types.InterviewContext) {
	st := &s.state
	st.interview = s.withDefaults(ic)
	if st.interview.CandidateID == "" {
		st.interview.CandidateID = st.candidateID
	}
	if ic.Language != "" {
		st.language = ic.Language
	}
	if ic.VoiceID != "" {
		st.voiceID = ic.VoiceID
	}
}

func (s *Session) startUtterance(token uint64, uc interfaces.UtteranceContext, reassurance string) {
	s.work(func(ctx context.Context) {
		s.generate(ctx, token, uc, reassurance)
	})
}

// generate produces and speaks the next AI utterance off the actor
// TECHNICAL DISCOVERY: Speech synthesis failure degrades to a text-only
// question; only interviewer failure surfaces an error to the candidate
func (s *Session) generate(base context.Context, token uint64, uc interfaces.UtteranceContext, reassurance string) {
	text := reassurance
	if text == "" {
		var err error
		ctx, cancel := s.bounded(base)
		text, err = s.collab.Interviewer.NextUtterance(ctx, uc)
		cancel()
		if err == nil {
			text, err = types.ValidateText(text)
		}
		if err != nil {
			s.post(func() { s.onUtteranceFailed(token, err) })
			return
		}
	}

	voice := uc.Interview.VoiceID
	if voice == "" {
		voice = s.opts.VoiceID
	}
	ctx, cancel := s.bounded(base)
	audio, err := s.collab.Synthesizer.Speak(ctx, text, uc.Language, voice)
	cancel()
	if err != nil {
		log.Printf("Speech synthesis failed, sending text only: interview=%s: %v", s.id, err)
		audio = nil
	}
	reassured := reassurance != ""
	s.post(func() { s.onUtterance(token, text, audio, reassured) })
}

func (s *Session) onUtteranceFailed(token uint64, err error) {
	if !s.current(token) {
		return
	}
	log.Printf("Interviewer failed: interview=%s: %v", s.id, err)
	s.endTurn(token)
	s.sendCandidateError(fmt.Errorf("%w: interviewer: %v", types.ErrTransient, err))
}

// onUtterance appends the AI turn and delivers it to the candidate
func (s *Session) onUtterance(token uint64, text string, audio []byte, reassurance bool) {
	if !s.current(token) {
		return
	}
	st := &s.state
	if st.paused {
		st.held = &heldUtterance{token: token, text: text, audio: audio, reassurance: reassurance}
		log.Printf("Holding AI utterance until resume: interview=%s", s.id)
		return
	}
	turn := s.appendTurn(types.SpeakerAI, "", text)
	s.sendCandidate(types.NewEvent(types.EventAIQuestion, types.AIQuestionPayload{
		Text:           text,
		Audio:          audio,
		Phase:          st.progress.Phase,
		PhaseName:      st.progress.Phase.String(),
		SequenceNumber: turn.SequenceNumber,
		Reassurance:    reassurance,
	}))
	s.endTurn(token)
}
