package types

// Candidate → server
const (
	EventJoinInterview          = "join-interview"
	EventCandidateAudio         = "candidate-audio"
	EventCandidateAudioComplete = "candidate-audio-complete"
	EventCandidateText          = "candidate-text"
	EventEndInterview           = "end-interview"
)

// Server → candidate
const (
	EventJoined                  = "joined"
	EventAIQuestion              = "ai-question"
	EventTranscription           = "transcription"
	EventRecording               = "recording"
	EventInterviewComplete       = "interview-complete"
	EventParticipantJoined       = "participant-joined"
	EventParticipantAudioChanged = "participant-audio-changed"
	EventParticipantVideoChanged = "participant-video-changed"
	EventInterviewPaused         = "interview-paused"
	EventError                   = "error"
	EventHRAudioRelay            = "hr-audio-stream"
	EventHRVideoRelay            = "hr-video-stream"
	EventHRSpeech                = "hr-speech"
)

// HR observer → server
const (
	EventHRJoin         = "hr-join"
	EventHRReveal       = "hr-reveal"
	EventHRAudioToggle  = "hr-audio-toggle"
	EventHRVideoToggle  = "hr-video-toggle"
	EventHRAudio        = "hr-audio"
	EventHRVideo        = "hr-video"
	EventHRPause        = "hr-pause"
	EventHRResume       = "hr-resume"
	EventHREndInterview = "hr-end-interview"
	EventHRNote         = "hr-note"
	EventHRText         = "hr-text"
)

// Server → HR observer
const (
	EventObserverJoined     = "observer-joined"
	EventTranscriptUpdate   = "transcript-update"
	EventRevealSuccess      = "reveal-success"
	EventInterviewCompleted = "interview-completed"
	EventNoteSaved          = "note-saved"
	EventObserverLeft       = "observer-left"
)

// Recording statuses
const (
	RecordingProcessing = "processing"
	RecordingIdle       = "idle"
)

// JoinInterviewPayload is the data of join-interview
type JoinInterviewPayload struct {
	InterviewID string `json:"interviewId"`
	CandidateID string `json:"candidateId"`
	Token       string `json:"token"`
	Language    string `json:"language,omitempty"`
}

// AudioChunkPayload carries one streamed audio chunk (base64 on the wire)
type AudioChunkPayload struct {
	Chunk []byte `json:"chunk"`
}

// VideoFramePayload carries one HR video frame (base64 on the wire)
type VideoFramePayload struct {
	Frame []byte `json:"frame"`
}

// TextPayload is the data of candidate-text, hr-note and hr-text
type TextPayload struct {
	Text string `json:"text"`
}

// HRJoinPayload is the data of hr-join
type HRJoinPayload struct {
	InterviewID string `json:"interviewId"`
	HRUserID    string `json:"hrUserId"`
	HRName      string `json:"hrName"`
}

// TogglePayload is the data of hr-audio-toggle and hr-video-toggle
type TogglePayload struct {
	Enabled bool `json:"enabled"`
}

// JoinedPayload answers join-interview
type JoinedPayload struct {
	InterviewID  string `json:"interviewId"`
	Phase        Phase  `json:"phase"`
	PhaseName    string `json:"phaseName"`
	IsPaused     bool   `json:"isPaused"`
	Reconnected  bool   `json:"reconnected"`
	TurnCount    int    `json:"turnCount"`
	LastQuestion string `json:"lastQuestion,omitempty"`
}

// AIQuestionPayload carries the next AI utterance
type AIQuestionPayload struct {
	Text           string `json:"text"`
	Audio          []byte `json:"audio,omitempty"`
	Phase          Phase  `json:"phase"`
	PhaseName      string `json:"phaseName"`
	SequenceNumber int    `json:"sequenceNumber"`
	Reassurance    bool   `json:"reassurance,omitempty"`
}

// TranscriptionPayload echoes the transcribed candidate turn
type TranscriptionPayload struct {
	Text           string `json:"text"`
	SequenceNumber int    `json:"sequenceNumber"`
}

// RecordingPayload reports the candidate input processing state
type RecordingPayload struct {
	Status string `json:"status"`
}

// InterviewCompletePayload is the candidate's closing message
type InterviewCompletePayload struct {
	Message       string                 `json:"message"`
	Audio         []byte                 `json:"audio,omitempty"`
	ReportPreview map[string]interface{} `json:"report_preview"`
}

// ParticipantPayload describes a revealed observer to the candidate
type ParticipantPayload struct {
	ObserverID   string `json:"observerId"`
	Name         string `json:"name"`
	AudioEnabled bool   `json:"audioEnabled"`
	VideoEnabled bool   `json:"videoEnabled"`
}

// ParticipantToggledPayload reports an observer modality change
type ParticipantToggledPayload struct {
	ObserverID string `json:"observerId"`
	Enabled    bool   `json:"enabled"`
}

// PausedPayload reports the session-wide pause flag
type PausedPayload struct {
	Paused bool   `json:"paused"`
	By     string `json:"by,omitempty"`
}

// ErrorPayload is the only failure shape clients ever see
type ErrorPayload struct {
	Message string `json:"message"`
}

// RelayAudioPayload is HR audio forwarded to other parties
type RelayAudioPayload struct {
	ObserverID string `json:"observerId"`
	Chunk      []byte `json:"chunk"`
}

// RelayVideoPayload is HR video forwarded to other parties
type RelayVideoPayload struct {
	ObserverID string `json:"observerId"`
	Frame      []byte `json:"frame"`
}

// HRSpeechPayload is a visible observer's spoken/typed turn
type HRSpeechPayload struct {
	ObserverID     string `json:"observerId"`
	Name           string `json:"name"`
	Text           string `json:"text"`
	SequenceNumber int    `json:"sequenceNumber"`
}

// ObserverJoinedPayload answers hr-join with a catch-up snapshot
type ObserverJoinedPayload struct {
	ObserverID   string          `json:"observerId"`
	SessionState SessionSnapshot `json:"sessionState"`
}

// TranscriptUpdatePayload pushes the transcript to observers
type TranscriptUpdatePayload struct {
	Transcript []Turn `json:"transcript"`
	Phase      Phase  `json:"phase"`
}

// RevealSuccessPayload acknowledges hr-reveal
type RevealSuccessPayload struct {
	ObserverID string `json:"observerId"`
}

// InterviewCompletedPayload carries the full report to observers
type InterviewCompletedPayload struct {
	Report Report            `json:"report"`
	Reason TerminationReason `json:"reason"`
}

// NoteSavedPayload acknowledges hr-note to its author only
type NoteSavedPayload struct {
	NoteID string `json:"noteId"`
}
