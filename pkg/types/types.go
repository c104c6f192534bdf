package types

import (
	"encoding/json"
	"time"
)

// Speaker identifies who produced a transcript turn
type Speaker string

const (
	SpeakerAI        Speaker = "ai"
	SpeakerCandidate Speaker = "candidate"
	SpeakerHR        Speaker = "hr"
)

// Status is the lifecycle state of a live interview session
type Status string

const (
	StatusJoining   Status = "joining"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// StressLevel is the outcome of the most recent stress quick-check
type StressLevel string

const (
	StressLow    StressLevel = "low"
	StressMedium StressLevel = "medium"
	StressHigh   StressLevel = "high"
)

// Phase is one stage of the fixed interview progression
// ARCHITECTURAL DISCOVERY: Phase is an index so it can only be compared and
// advanced, never looked up by name in routing code
type Phase int

const (
	PhaseWarmup Phase = iota
	PhaseClaimVerification
	PhaseScenario
	PhaseDepth
	PhaseReflection
)

// PhaseCount is the number of phases in an interview
const PhaseCount = 5

var phaseNames = [PhaseCount]string{"warmup", "claim_verification", "scenario", "depth", "reflection"}

func (p Phase) String() string {
	if p < 0 || int(p) >= PhaseCount {
		return "unknown"
	}
	return phaseNames[p]
}

// IsTerminal reports whether p is the last phase
func (p Phase) IsTerminal() bool {
	return int(p) == PhaseCount-1
}

// TerminationReason records which trigger completed the interview
type TerminationReason string

const (
	ReasonPhasesComplete TerminationReason = "phases_complete"
	ReasonSafetyCap      TerminationReason = "safety_cap"
	ReasonHREnd          TerminationReason = "hr_end"
	ReasonCandidateEnd   TerminationReason = "candidate_end"
)

// Turn is one utterance in the transcript
// FUNCTIONAL DISCOVERY: SequenceNumber equals the turn's index in the transcript
// and is assigned exactly once, at append time
type Turn struct {
	Speaker        Speaker   `json:"speaker"`
	SpeakerID      string    `json:"speaker_id,omitempty"`
	Text           string    `json:"text"`
	SequenceNumber int       `json:"sequence_number"`
	Phase          Phase     `json:"phase"`
	Timestamp      time.Time `json:"timestamp"`
}

// ObserverInfo is the externally visible state of one HR observer
type ObserverInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Visible      bool      `json:"visible"`
	AudioEnabled bool      `json:"audio_enabled"`
	VideoEnabled bool      `json:"video_enabled"`
	JoinedAt     time.Time `json:"joined_at"`
}

// SessionSnapshot is a point-in-time copy of a session, safe to share
type SessionSnapshot struct {
	InterviewID string         `json:"interview_id"`
	CandidateID string         `json:"candidate_id"`
	Status      Status         `json:"status"`
	Phase       Phase          `json:"phase"`
	PhaseName   string         `json:"phase_name"`
	Transcript  []Turn         `json:"transcript"`
	IsPaused    bool           `json:"is_paused"`
	StressLevel StressLevel    `json:"stress_level"`
	Language    string         `json:"language"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Observers   []ObserverInfo `json:"observers"`
	Connected   bool           `json:"candidate_connected"`
}

// InterviewContext is the job/candidate/rubric material supplied by the
// surrounding HR system
type InterviewContext struct {
	InterviewID    string   `json:"interview_id"`
	CandidateID    string   `json:"candidate_id"`
	CandidateName  string   `json:"candidate_name"`
	JobTitle       string   `json:"job_title"`
	JobDescription string   `json:"job_description"`
	CVText         string   `json:"cv_text"`
	Rubric         []string `json:"rubric"`
	Language       string   `json:"language"`
	VoiceID        string   `json:"voice_id"`
}

// MicroAssessment is the advisory per-turn analysis of one candidate answer
type MicroAssessment struct {
	SequenceNumber int         `json:"sequence_number"`
	Stress         StressLevel `json:"stress"`
	Authenticity   string      `json:"authenticity"`
	StressFailed   bool        `json:"stress_failed,omitempty"`
	QualityFailed  bool        `json:"quality_failed,omitempty"`
}

// MacroResult is one end-of-interview comprehensive assessment
type MacroResult struct {
	Kind    string                 `json:"kind"`
	Score   float64                `json:"score"`
	Summary string                 `json:"summary"`
	Details map[string]interface{} `json:"details,omitempty"`
	Failed  bool                   `json:"failed,omitempty"`
}

// ReportContext is everything handed to the report synthesizer
type ReportContext struct {
	Interview    InterviewContext  `json:"interview"`
	Transcript   []Turn            `json:"transcript"`
	Micro        []MicroAssessment `json:"micro"`
	Consistency  MacroResult       `json:"consistency"`
	Authenticity MacroResult       `json:"authenticity"`
	Stress       MacroResult       `json:"stress"`
	Reason       TerminationReason `json:"reason"`
}

// Report is the synthesized end-of-interview report
type Report struct {
	ID             string             `json:"id"`
	InterviewID    string             `json:"interview_id"`
	Summary        string             `json:"summary"`
	Recommendation string             `json:"recommendation"`
	Scores         map[string]float64 `json:"scores,omitempty"`
	Strengths      []string           `json:"strengths,omitempty"`
	Concerns       []string           `json:"concerns,omitempty"`
	ClosingMessage string             `json:"closing_message"`
	GeneratedAt    time.Time          `json:"generated_at"`
}

// Preview is the candidate-safe summary of a report
func (r *Report) Preview() map[string]interface{} {
	return map[string]interface{}{
		"id":           r.ID,
		"generated_at": r.GeneratedAt,
	}
}

// FinalResult is the record persisted exactly once when an interview completes
type FinalResult struct {
	InterviewID  string            `json:"interview_id"`
	CandidateID  string            `json:"candidate_id"`
	Reason       TerminationReason `json:"reason"`
	Transcript   []Turn            `json:"transcript"`
	Micro        []MicroAssessment `json:"micro"`
	Consistency  MacroResult       `json:"consistency"`
	Authenticity MacroResult       `json:"authenticity"`
	Stress       MacroResult       `json:"stress"`
	Report       Report            `json:"report"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  time.Time         `json:"completed_at"`
}

// ObserverLogEntry is one row of the durable observer presence log
type ObserverLogEntry struct {
	ID          string    `json:"id"`
	InterviewID string    `json:"interview_id"`
	ObserverID  string    `json:"observer_id"`
	Name        string    `json:"name"`
	Action      string    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
}

// Observer log actions
const (
	ObserverActionJoined   = "joined"
	ObserverActionRevealed = "revealed"
	ObserverActionLeft     = "left"
)

// Note is a private HR observer note
type Note struct {
	ID          string    `json:"id"`
	InterviewID string    `json:"interview_id"`
	ObserverID  string    `json:"observer_id"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// InboundEvent is a client-to-server event as read off the socket
// ARCHITECTURAL DISCOVERY: Data stays raw until the dispatch table has picked a
// handler, so each handler decodes only its own payload type
type InboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is a server-to-client event
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent stamps an outbound event
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{Type: eventType, Data: data, Timestamp: time.Now()}
}
