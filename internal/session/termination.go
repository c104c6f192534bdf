package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"interviewroom/pkg/types"
)

// DefaultClosingMessage is spoken when the report carries no closing line
const DefaultClosingMessage = "Thank you for your time today. This concludes the interview."

// Macro assessment kinds recorded on MacroResult.Kind
const (
	KindConsistency  = "consistency"
	KindAuthenticity = "authenticity"
	KindStress       = "stress"
)

// terminate is the idempotency guard; it must run on the actor
// ARCHITECTURAL DISCOVERY: The Completed transition is the check-and-set.
// Whichever trigger observes a live status first wins, and every later
// trigger is absorbed here without touching the collaborators
func (s *Session) terminate(reason types.TerminationReason) {
	st := &s.state
	if st.status == types.StatusCompleted {
		log.Printf("Termination absorbed: interview=%s reason=%s: %v", s.id, reason, types.ErrTerminationRace)
		return
	}

	now := time.Now()
	st.status = types.StatusCompleted
	st.reason = reason
	st.completedAt = now
	st.paused = false
	st.pendingAudio = nil
	st.held = nil
	if st.inFlight != 0 {
		s.endTurn(st.inFlight)
	}
	s.completedAt.Store(now.UnixNano())
	log.Printf("Interview terminating: interview=%s reason=%s turns=%d", s.id, reason, len(st.transcript))

	rc := types.ReportContext{
		Interview:  st.interview,
		Transcript: s.transcriptCopy(),
		Micro:      append([]types.MicroAssessment(nil), st.micro...),
		Reason:     reason,
	}
	if rc.Interview.CandidateID == "" {
		rc.Interview.CandidateID = st.candidateID
	}
	result := types.FinalResult{
		InterviewID: s.id,
		CandidateID: st.candidateID,
		Reason:      reason,
		Transcript:  rc.Transcript,
		Micro:       rc.Micro,
		StartedAt:   st.startedAt,
		CompletedAt: now,
	}
	language, voice := st.language, st.voiceID

	s.work(func(base context.Context) {
		s.synthesize(base, rc, &result)
		closing := result.Report.ClosingMessage
		if closing == "" {
			closing = DefaultClosingMessage
		}
		ctx, cancel := s.bounded(base)
		audio, err := s.collab.Synthesizer.Speak(ctx, closing, language, voice)
		cancel()
		if err != nil {
			log.Printf("Closing speech failed, sending text only: interview=%s: %v", s.id, err)
			audio = nil
		}
		s.post(func() { s.onFinalized(result, closing, audio) })
	})
}

// synthesize runs the macro fan-out and the report synthesizer
// FUNCTIONAL DISCOVERY: A failed macro assessment or report never blocks
// finalization; the record is written with what succeeded
func (s *Session) synthesize(base context.Context, rc types.ReportContext, result *types.FinalResult) {
	cv := rc.Interview.CVText
	var g errgroup.Group
	macro := func(kind string, dst *types.MacroResult, fn func(context.Context, []types.Turn, string) (types.MacroResult, error)) {
		g.Go(func() error {
			ctx, cancel := s.bounded(base)
			defer cancel()
			r, err := fn(ctx, rc.Transcript, cv)
			if err != nil {
				log.Printf("Macro %s assessment failed: interview=%s: %v", kind, s.id, err)
				r = types.MacroResult{Failed: true, Summary: "assessment unavailable"}
			}
			r.Kind = kind
			*dst = r
			return nil
		})
	}
	macro(KindConsistency, &rc.Consistency, s.collab.Macro.Consistency)
	macro(KindAuthenticity, &rc.Authenticity, s.collab.Macro.Authenticity)
	macro(KindStress, &rc.Stress, s.collab.Macro.Stress)
	_ = g.Wait()

	result.Consistency = rc.Consistency
	result.Authenticity = rc.Authenticity
	result.Stress = rc.Stress

	ctx, cancel := s.bounded(base)
	report, err := s.collab.Reports.Generate(ctx, rc)
	cancel()
	if err != nil {
		log.Printf("Report synthesis failed: interview=%s: %v", s.id, err)
		report = types.Report{
			Summary:        fmt.Sprintf("Report unavailable (%s)", rc.Reason),
			Recommendation: "manual_review",
		}
	}
	report.ID = uuid.New().String()
	report.InterviewID = s.id
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now()
	}
	result.Report = report
}

// onFinalized persists the final record and broadcasts completion
func (s *Session) onFinalized(result types.FinalResult, closing string, audio []byte) {
	if s.finalized.Load() {
		return
	}
	report := result.Report
	s.state.report = &report

	s.persist("finalize", func(ctx context.Context) error {
		return s.collab.Persistence.Finalize(ctx, s.id, result)
	})

	s.sendCandidate(types.NewEvent(types.EventInterviewComplete, types.InterviewCompletePayload{
		Message:       closing,
		Audio:         audio,
		ReportPreview: report.Preview(),
	}))
	s.sendObservers(types.NewEvent(types.EventInterviewCompleted, types.InterviewCompletedPayload{
		Report: report,
		Reason: result.Reason,
	}), "")

	s.finalized.Store(true)
	log.Printf("Interview finalized: interview=%s reason=%s report=%s", s.id, result.Reason, report.ID)
}

// Report returns the synthesized report once finalization has finished
func (s *Session) Report(ctx context.Context) (*types.Report, error) {
	var out *types.Report
	err := s.call(ctx, func() error {
		if s.state.report == nil {
			return types.ErrNotFound
		}
		r := *s.state.report
		out = &r
		return nil
	})
	return out, err
}
