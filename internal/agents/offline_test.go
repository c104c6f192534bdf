package agents

import (
	"context"
	"strings"
	"testing"

	"interviewroom/pkg/interfaces"
	"interviewroom/pkg/types"
)

func TestOffline_OpeningUsesContext(t *testing.T) {
	out, err := Offline{}.NextUtterance(context.Background(), interfaces.UtteranceContext{
		Opening:   true,
		Interview: types.InterviewContext{CandidateName: "Sam", JobTitle: "Data Engineer"},
	})
	if err != nil {
		t.Fatalf("NextUtterance failed: %v", err)
	}
	if !strings.Contains(out, "Sam") || !strings.Contains(out, "Data Engineer") {
		t.Errorf("Opening should greet by name and role, got %q", out)
	}
}

func TestOffline_QuestionsFollowPhase(t *testing.T) {
	uc := interfaces.UtteranceContext{
		Phase:     types.PhaseClaimVerification,
		Interview: types.InterviewContext{Rubric: []string{"Kafka"}},
	}
	first, _ := Offline{}.NextUtterance(context.Background(), uc)
	if !strings.Contains(first, "Kafka") {
		t.Errorf("Expected rubric item in claim verification, got %q", first)
	}

	uc.Transcript = []types.Turn{{Speaker: types.SpeakerAI, Phase: types.PhaseClaimVerification, Text: first}}
	second, _ := Offline{}.NextUtterance(context.Background(), uc)
	if second == first {
		t.Error("Expected a different question for the second turn in a phase")
	}
}

func TestOffline_StressHeuristic(t *testing.T) {
	tests := []struct {
		text string
		want types.StressLevel
	}{
		{"I designed the cache layer", types.StressLow},
		{"um I think it was Redis", types.StressMedium},
		{"um sorry uh I am not sure", types.StressHigh},
	}
	for _, tt := range tests {
		got, err := Offline{}.Stress(context.Background(), tt.text)
		if err != nil || got != tt.want {
			t.Errorf("Stress(%q) = %s, %v; want %s", tt.text, got, err, tt.want)
		}
	}
}

func TestOffline_TranscribeText(t *testing.T) {
	got, _ := Offline{}.Transcribe(context.Background(), []byte(" typed answer "), "en")
	if got != "typed answer" {
		t.Errorf("Expected UTF-8 audio to pass through, got %q", got)
	}
	got, _ = Offline{}.Transcribe(context.Background(), []byte{0xff, 0xfe}, "en")
	if !strings.Contains(got, "2 bytes") {
		t.Errorf("Expected placeholder for binary audio, got %q", got)
	}
}

func TestOffline_ReportFromScores(t *testing.T) {
	turns := []types.Turn{
		{Speaker: types.SpeakerAI, Text: "Question"},
		{Speaker: types.SpeakerCandidate, Text: "I built a Go scheduler that handled 4000 jobs per second across 12 nodes in production"},
	}
	ctx := context.Background()
	macro := Offline{}.Macro()
	consistency, _ := macro.Consistency(ctx, turns, "Go scheduler engineer")
	authenticity, _ := macro.Authenticity(ctx, turns, "")
	stress, _ := macro.Stress(ctx, turns, "")

	report, err := Offline{}.Generate(ctx, types.ReportContext{
		Transcript:   turns,
		Consistency:  consistency,
		Authenticity: authenticity,
		Stress:       stress,
		Reason:       types.ReasonPhasesComplete,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if report.Recommendation != "yes" {
		t.Errorf("Expected yes for a consistent specific calm answer, got %s (%+v)", report.Recommendation, report.Scores)
	}
	if report.ClosingMessage == "" || report.GeneratedAt.IsZero() {
		t.Error("Expected closing message and timestamp")
	}
}
