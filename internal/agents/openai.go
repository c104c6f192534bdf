// Package agents implements the interview collaborators: a go-openai backed
// client for production and an offline heuristic set for local runs.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"interviewroom/pkg/interfaces"
	"interviewroom/pkg/types"
)

// Config selects the endpoint and models used by Client
type Config struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	TranscriptionModel string
	SpeechModel        string
	AudioFilename      string
}

// DefaultConfig returns the stock OpenAI models
func DefaultConfig() Config {
	return Config{
		ChatModel:          openai.GPT4oMini,
		TranscriptionModel: openai.Whisper1,
		SpeechModel:        string(openai.TTSModel1),
		AudioFilename:      "answer.webm",
	}
}

// ErrEmptyCompletion is returned when the model answers with no choices
var ErrEmptyCompletion = errors.New("empty completion")

// Client implements every AI and speech collaborator over one OpenAI client
type Client struct {
	client *openai.Client
	cfg    Config
}

var (
	_ interfaces.Transcriber       = (*Client)(nil)
	_ interfaces.Interviewer       = (*Client)(nil)
	_ interfaces.Synthesizer       = (*Client)(nil)
	_ interfaces.QuickAssessor     = (*Client)(nil)
	_ interfaces.ReportSynthesizer = (*Client)(nil)
)

// NewClient builds a Client; empty fields fall back to DefaultConfig
func NewClient(cfg Config) *Client {
	d := DefaultConfig()
	if cfg.ChatModel == "" {
		cfg.ChatModel = d.ChatModel
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = d.TranscriptionModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = d.SpeechModel
	}
	if cfg.AudioFilename == "" {
		cfg.AudioFilename = d.AudioFilename
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &Client{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
	}
}

// Transcribe sends one completed answer to the transcription model
func (c *Client) Transcribe(ctx context.Context, audio []byte, languageHint string) (string, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.TranscriptionModel,
		FilePath: c.cfg.AudioFilename,
		Reader:   bytes.NewReader(audio),
		Language: languageHint,
	})
	if err != nil {
		return "", transient("transcription", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Speak synthesizes text; the returned bytes are MP3
func (c *Client) Speak(ctx context.Context, text, language, voiceID string) ([]byte, error) {
	if voiceID == "" {
		voiceID = string(openai.VoiceAlloy)
	}
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.cfg.SpeechModel),
		Input:          text,
		Voice:          openai.SpeechVoice(voiceID),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, transient("speech", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, transient("speech read", err)
	}
	return audio, nil
}

// NextUtterance asks the chat model for the next interviewer line
func (c *Client) NextUtterance(ctx context.Context, uc interfaces.UtteranceContext) (string, error) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: interviewerPrompt(uc)},
	}
	for _, turn := range uc.Transcript {
		role := openai.ChatMessageRoleUser
		if turn.Speaker == types.SpeakerAI {
			role = openai.ChatMessageRoleAssistant
		}
		content := turn.Text
		if turn.Speaker == types.SpeakerHR {
			content = "[recruiter] " + content
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: content})
	}
	if uc.Opening {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: "Begin the interview with a short greeting and your first warmup question.",
		})
	}

	out, err := c.chat(ctx, msgs, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Stress classifies one answer as low, medium or high stress
func (c *Client) Stress(ctx context.Context, text string) (types.StressLevel, error) {
	var out struct {
		Level string `json:"level"`
	}
	err := c.chatJSON(ctx, stressPrompt, text, &out)
	if err != nil {
		return "", err
	}
	return parseStress(out.Level), nil
}

// Authenticity rates how specific and first-hand one answer sounds
func (c *Client) Authenticity(ctx context.Context, question, response string) (string, error) {
	var out struct {
		Assessment string `json:"assessment"`
	}
	user := fmt.Sprintf("Question: %s\nAnswer: %s", question, response)
	if err := c.chatJSON(ctx, quickAuthenticityPrompt, user, &out); err != nil {
		return "", err
	}
	return out.Assessment, nil
}

// Macro returns the full-transcript analyses; they share method names with
// the per-turn QuickAssessor, so they live on a separate value
func (c *Client) Macro() interfaces.MacroAssessor {
	return macroClient{c}
}

func (c *Client) macro(ctx context.Context, system string, transcript []types.Turn, cvText string) (types.MacroResult, error) {
	var out types.MacroResult
	user := fmt.Sprintf("CV:\n%s\n\nTranscript:\n%s", cvText, FormatTranscript(transcript))
	if err := c.chatJSON(ctx, system, user, &out); err != nil {
		return types.MacroResult{}, err
	}
	return out, nil
}

// Generate synthesizes the final report
func (c *Client) Generate(ctx context.Context, rc types.ReportContext) (types.Report, error) {
	payload, err := json.Marshal(struct {
		JobTitle     string                  `json:"job_title"`
		Rubric       []string                `json:"rubric"`
		Reason       types.TerminationReason `json:"reason"`
		Transcript   string                  `json:"transcript"`
		Micro        []types.MicroAssessment `json:"micro"`
		Consistency  types.MacroResult       `json:"consistency"`
		Authenticity types.MacroResult       `json:"authenticity"`
		Stress       types.MacroResult       `json:"stress"`
	}{
		JobTitle:     rc.Interview.JobTitle,
		Rubric:       rc.Interview.Rubric,
		Reason:       rc.Reason,
		Transcript:   FormatTranscript(rc.Transcript),
		Micro:        rc.Micro,
		Consistency:  rc.Consistency,
		Authenticity: rc.Authenticity,
		Stress:       rc.Stress,
	})
	if err != nil {
		return types.Report{}, fmt.Errorf("marshal report context: %w", err)
	}

	var report types.Report
	if err := c.chatJSON(ctx, reportPrompt, string(payload), &report); err != nil {
		return types.Report{}, err
	}
	return report, nil
}

func (c *Client) chatJSON(ctx context.Context, system, user string, v interface{}) error {
	out, err := c.chat(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		return transient("decode completion", err)
	}
	return nil
}

func (c *Client) chat(ctx context.Context, msgs []openai.ChatCompletionMessage, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.cfg.ChatModel,
		Messages: msgs,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", transient("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", transient("chat completion", ErrEmptyCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}

type macroClient struct {
	c *Client
}

var _ interfaces.MacroAssessor = macroClient{}

func (m macroClient) Consistency(ctx context.Context, transcript []types.Turn, cvText string) (types.MacroResult, error) {
	return m.c.macro(ctx, consistencyPrompt, transcript, cvText)
}

func (m macroClient) Authenticity(ctx context.Context, transcript []types.Turn, cvText string) (types.MacroResult, error) {
	return m.c.macro(ctx, macroAuthenticityPrompt, transcript, cvText)
}

func (m macroClient) Stress(ctx context.Context, transcript []types.Turn, cvText string) (types.MacroResult, error) {
	return m.c.macro(ctx, macroStressPrompt, transcript, cvText)
}

func transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", types.ErrTransient, op, err)
}

func parseStress(level string) types.StressLevel {
	switch types.StressLevel(strings.ToLower(strings.TrimSpace(level))) {
	case types.StressHigh:
		return types.StressHigh
	case types.StressMedium:
		return types.StressMedium
	default:
		return types.StressLow
	}
}

// FormatTranscript renders turns one per line for prompts
func FormatTranscript(turns []types.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "[%d] %s (%s): %s\n", t.SequenceNumber, t.Speaker, t.Phase, t.Text)
	}
	return b.String()
}

// phaseGoal describes what the interviewer should pursue in each phase
var phaseGoal = map[types.Phase]string{
	types.PhaseWarmup:            "Put the candidate at ease and ask about their background and motivation.",
	types.PhaseClaimVerification: "Pick concrete claims from the CV and ask for specifics that only someone who did the work would know.",
	types.PhaseScenario:          "Present a realistic scenario from the role and ask how they would handle it.",
	types.PhaseDepth:             "Go deep on one technical or domain topic from their previous answers.",
	types.PhaseReflection:        "Ask the candidate to reflect on lessons learned and what they would do differently.",
}

func interviewerPrompt(uc interfaces.UtteranceContext) string {
	ic := uc.Interview
	var b strings.Builder
	b.WriteString("You are a professional job interviewer conducting a live spoken interview. ")
	b.WriteString("Reply with exactly one short utterance to be spoken aloud: no lists, no markdown.\n")
	if ic.JobTitle != "" {
		fmt.Fprintf(&b, "Role: %s\n", ic.JobTitle)
	}
	if ic.JobDescription != "" {
		fmt.Fprintf(&b, "Job description: %s\n", ic.JobDescription)
	}
	if ic.CandidateName != "" {
		fmt.Fprintf(&b, "Candidate: %s\n", ic.CandidateName)
	}
	if ic.CVText != "" {
		fmt.Fprintf(&b, "CV:\n%s\n", ic.CVText)
	}
	if len(ic.Rubric) > 0 {
		fmt.Fprintf(&b, "Rubric: %s\n", strings.Join(ic.Rubric, "; "))
	}
	fmt.Fprintf(&b, "Current phase: %s (%d of %d). %s\n", uc.Phase, int(uc.Phase)+1, types.PhaseCount, phaseGoal[uc.Phase])
	if uc.StressLevel == types.StressHigh {
		b.WriteString("The candidate sounds stressed; keep the tone warm.\n")
	}
	if uc.Language != "" {
		fmt.Fprintf(&b, "Speak in language: %s\n", uc.Language)
	}
	return b.String()
}

const (
	stressPrompt = `Classify the stress level audible in this interview answer transcript.
Respond as JSON: {"level": "low" | "medium" | "high"}.`

	quickAuthenticityPrompt = `Judge whether this interview answer sounds first-hand and specific, or generic and rehearsed.
Respond as JSON: {"assessment": "<one short sentence>"}.`

	consistencyPrompt = `Compare the interview transcript with the CV and flag contradictions.
Respond as JSON: {"score": <0..1, 1 = fully consistent>, "summary": "<two sentences>", "details": {"contradictions": [...]}}.`

	macroAuthenticityPrompt = `Assess across the whole interview whether the candidate's answers reflect genuine experience.
Respond as JSON: {"score": <0..1>, "summary": "<two sentences>", "details": {"evidence": [...]}}.`

	macroStressPrompt = `Assess the candidate's stress trajectory across the whole interview.
Respond as JSON: {"score": <0..1, 1 = very stressed>, "summary": "<two sentences>", "details": {"peaks": [...]}}.`

	reportPrompt = `Write the final interview report for the hiring team from the analysis below.
Respond as JSON: {"summary": "...", "recommendation": "strong_yes"|"yes"|"no"|"strong_no"|"manual_review",
"scores": {"<rubric item>": <0..1>}, "strengths": [...], "concerns": [...],
"closing_message": "<one warm sentence thanking the candidate, no evaluation>"}.`
)
