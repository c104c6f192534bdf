package agents

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"interviewroom/pkg/interfaces"
	"interviewroom/pkg/types"
)

// Offline runs interviews without any external service: scripted questions,
// keyword heuristics for the analyses and no synthesized audio
// FUNCTIONAL DISCOVERY: Lets the server and the gateway tests run end to end
// with no API key configured
type Offline struct{}

var (
	_ interfaces.Transcriber       = Offline{}
	_ interfaces.Interviewer       = Offline{}
	_ interfaces.Synthesizer       = Offline{}
	_ interfaces.QuickAssessor     = Offline{}
	_ interfaces.ReportSynthesizer = Offline{}
	_ interfaces.MacroAssessor     = offlineMacro{}
)

// questions per phase; the n-th AI turn in a phase asks the n-th question
var questions = map[types.Phase][]string{
	types.PhaseWarmup: {
		"Tell me a little about yourself and what drew you to this role.",
		"What kind of work have you enjoyed most so far?",
		"What are you hoping to learn in your next position?",
	},
	types.PhaseClaimVerification: {
		"Pick one project from your CV and walk me through your personal contribution.",
		"What was the hardest technical decision on that project, and who made it?",
		"What numbers would you use to show that project was a success?",
	},
	types.PhaseScenario: {
		"Imagine a production incident an hour before a release. What do you do first?",
		"A teammate disagrees with your design in review. How do you handle it?",
		"You inherit a service with no tests. Where do you start?",
	},
	types.PhaseDepth: {
		"Let's go deeper on something you mentioned. How does it work under the hood?",
		"What failure modes would you watch for there?",
		"How would you change your approach at ten times the scale?",
	},
	types.PhaseReflection: {
		"Looking back, what would you do differently on your last project?",
		"What feedback have you received that changed how you work?",
	},
}

// Transcribe treats audio as UTF-8 text when it is one, for local clients
// that send typed audio stand-ins
func (Offline) Transcribe(ctx context.Context, audio []byte, languageHint string) (string, error) {
	if utf8.Valid(audio) {
		return strings.TrimSpace(string(audio)), nil
	}
	return fmt.Sprintf("(audio answer, %d bytes)", len(audio)), nil
}

// NextUtterance picks the next scripted question for the phase
func (Offline) NextUtterance(ctx context.Context, uc interfaces.UtteranceContext) (string, error) {
	if uc.Opening {
		name := uc.Interview.CandidateName
		if name == "" {
			name = "there"
		}
		role := "this role"
		if uc.Interview.JobTitle != "" {
			role = "the " + uc.Interview.JobTitle + " role"
		}
		return fmt.Sprintf("Hello %s, thanks for joining the interview for %s. %s", name, role, questions[types.PhaseWarmup][0]), nil
	}

	asked := 0
	for _, t := range uc.Transcript {
		if t.Speaker == types.SpeakerAI && t.Phase == uc.Phase {
			asked++
		}
	}
	bank := questions[uc.Phase]
	if len(bank) == 0 {
		return "", fmt.Errorf("no questions for phase %s", uc.Phase)
	}
	q := bank[asked%len(bank)]
	if uc.Phase == types.PhaseClaimVerification && asked < len(uc.Interview.Rubric) {
		q = fmt.Sprintf("Your CV mentions %s. %s", uc.Interview.Rubric[asked], q)
	}
	return q, nil
}

// Speak returns no audio; callers fall back to text
func (Offline) Speak(ctx context.Context, text, language, voiceID string) ([]byte, error) {
	return nil, nil
}

var hesitations = []string{"um", "uh", "sorry", "nervous", "i don't know", "not sure"}

// Stress counts hesitation markers
func (Offline) Stress(ctx context.Context, text string) (types.StressLevel, error) {
	lower := " " + strings.ToLower(text) + " "
	n := 0
	for _, h := range hesitations {
		n += strings.Count(lower, " "+h+" ")
	}
	switch {
	case n >= 3:
		return types.StressHigh, nil
	case n >= 1:
		return types.StressMedium, nil
	default:
		return types.StressLow, nil
	}
}

// Authenticity favours answers with concrete detail
func (Offline) Authenticity(ctx context.Context, question, response string) (string, error) {
	if specificity(response) >= 0.5 {
		return "specific", nil
	}
	return "generic", nil
}

// Macro returns the offline full-transcript analyses
func (Offline) Macro() interfaces.MacroAssessor {
	return offlineMacro{}
}

// Generate composes a report from the aggregate scores
func (Offline) Generate(ctx context.Context, rc types.ReportContext) (types.Report, error) {
	answers := candidateAnswers(rc.Transcript)
	overall := (rc.Consistency.Score + rc.Authenticity.Score + (1 - rc.Stress.Score)) / 3

	recommendation := "manual_review"
	switch {
	case len(answers) == 0:
	case overall >= 0.7:
		recommendation = "yes"
	case overall < 0.4:
		recommendation = "no"
	}

	report := types.Report{
		Summary: fmt.Sprintf("Interview ended (%s) after %d candidate answers; overall score %.2f.",
			rc.Reason, len(answers), overall),
		Recommendation: recommendation,
		Scores: map[string]float64{
			"consistency":  rc.Consistency.Score,
			"authenticity": rc.Authenticity.Score,
			"composure":    1 - rc.Stress.Score,
		},
		ClosingMessage: "Thank you for your time today. The hiring team will be in touch soon.",
		GeneratedAt:    time.Now(),
	}
	if rc.Authenticity.Score >= 0.6 {
		report.Strengths = append(report.Strengths, "Concrete, first-hand answers")
	}
	if rc.Stress.Score >= 0.5 {
		report.Concerns = append(report.Concerns, "Visible stress during the interview")
	}
	return report, nil
}

type offlineMacro struct{}

func (offlineMacro) Consistency(ctx context.Context, transcript []types.Turn, cvText string) (types.MacroResult, error) {
	answers := candidateAnswers(transcript)
	if len(answers) == 0 || cvText == "" {
		return types.MacroResult{Score: 0.5, Summary: "Not enough material to compare with the CV."}, nil
	}
	cv := strings.ToLower(cvText)
	hits := 0
	for _, a := range answers {
		for _, w := range strings.Fields(strings.ToLower(a)) {
			if len(w) > 3 && strings.Contains(cv, w) {
				hits++
				break
			}
		}
	}
	score := float64(hits) / float64(len(answers))
	return types.MacroResult{
		Score:   score,
		Summary: fmt.Sprintf("%d of %d answers reference material from the CV.", hits, len(answers)),
	}, nil
}

func (offlineMacro) Authenticity(ctx context.Context, transcript []types.Turn, cvText string) (types.MacroResult, error) {
	answers := candidateAnswers(transcript)
	if len(answers) == 0 {
		return types.MacroResult{Score: 0.5, Summary: "No answers to assess."}, nil
	}
	total := 0.0
	for _, a := range answers {
		total += specificity(a)
	}
	score := total / float64(len(answers))
	return types.MacroResult{Score: score, Summary: fmt.Sprintf("Average answer specificity %.2f.", score)}, nil
}

func (offlineMacro) Stress(ctx context.Context, transcript []types.Turn, cvText string) (types.MacroResult, error) {
	answers := candidateAnswers(transcript)
	if len(answers) == 0 {
		return types.MacroResult{Summary: "No answers to assess."}, nil
	}
	high := 0
	for _, a := range answers {
		if level, _ := (Offline{}).Stress(ctx, a); level == types.StressHigh {
			high++
		}
	}
	score := float64(high) / float64(len(answers))
	return types.MacroResult{Score: score, Summary: fmt.Sprintf("%d of %d answers showed high stress.", high, len(answers))}, nil
}

func candidateAnswers(transcript []types.Turn) []string {
	var out []string
	for _, t := range transcript {
		if t.Speaker == types.SpeakerCandidate {
			out = append(out, t.Text)
		}
	}
	return out
}

// specificity scores 0..1 from length and the presence of digits
func specificity(answer string) float64 {
	words := len(strings.Fields(answer))
	score := float64(words) / 40
	if strings.ContainsAny(answer, "0123456789") {
		score += 0.3
	}
	if score > 1 {
		score = 1
	}
	return score
}
