package interfaces

import (
	"context"

	"interviewroom/pkg/types"
)

// UtteranceContext is everything the interviewer needs to pick the next utterance
type UtteranceContext struct {
	Interview   types.InterviewContext
	Phase       types.Phase
	Transcript  []types.Turn
	StressLevel types.StressLevel
	Language    string
	Opening     bool
	Reassurance bool
	Closing     bool
}

// Transcriber converts a completed candidate audio answer to text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, languageHint string) (string, error)
}

// Interviewer produces the next AI utterance
type Interviewer interface {
	NextUtterance(ctx context.Context, uc UtteranceContext) (string, error)
}

// Synthesizer converts an utterance to speech audio
type Synthesizer interface {
	Speak(ctx context.Context, text, language, voiceID string) ([]byte, error)
}

// QuickAssessor runs the per-turn advisory micro-analyses
type QuickAssessor interface {
	Stress(ctx context.Context, text string) (types.StressLevel, error)
	Authenticity(ctx context.Context, question, response string) (string, error)
}

// MacroAssessor runs the end-of-interview comprehensive analyses
type MacroAssessor interface {
	Consistency(ctx context.Context, transcript []types.Turn, cvText string) (types.MacroResult, error)
	Authenticity(ctx context.Context, transcript []types.Turn, cvText string) (types.MacroResult, error)
	Stress(ctx context.Context, transcript []types.Turn, cvText string) (types.MacroResult, error)
}

// ReportSynthesizer turns the aggregate analysis into the final report
type ReportSynthesizer interface {
	Generate(ctx context.Context, rc types.ReportContext) (types.Report, error)
}

// ContextProvider supplies job/candidate/rubric material for an interview
type ContextProvider interface {
	InterviewContext(ctx context.Context, interviewID string) (types.InterviewContext, error)
}

// TokenValidator checks candidate invite tokens on join-interview
type TokenValidator interface {
	ValidateInvite(token, interviewID, candidateID string) error
}

// Collaborators bundles every external dependency of the orchestration core
type Collaborators struct {
	Transcriber Transcriber
	Interviewer Interviewer
	Synthesizer Synthesizer
	Quick       QuickAssessor
	Macro       MacroAssessor
	Reports     ReportSynthesizer
	Persistence Persistence
	Context     ContextProvider
}
