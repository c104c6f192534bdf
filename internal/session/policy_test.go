package session

import (
	"testing"

	"interviewroom/pkg/types"
)

// TestProbabilityPolicy_SeedIsReproducible tests functional validation - seeded draws repeat
func TestProbabilityPolicy_SeedIsReproducible(t *testing.T) {
	a := NewProbabilityPolicy(0.5, 42, nil)
	b := NewProbabilityPolicy(0.5, 42, nil)
	for i := 0; i < 100; i++ {
		if a.Reassure(types.StressHigh) != b.Reassure(types.StressHigh) {
			t.Fatalf("Draw %d differs for the same seed", i)
		}
	}
}

// TestProbabilityPolicy_Bounds tests validation - probability clamps and stress gating
func TestProbabilityPolicy_Bounds(t *testing.T) {
	never := NewProbabilityPolicy(-1, 7, nil)
	always := NewProbabilityPolicy(2, 7, nil)
	for i := 0; i < 20; i++ {
		if never.Reassure(types.StressHigh) {
			t.Fatal("p<=0 must never reassure")
		}
		if !always.Reassure(types.StressHigh) {
			t.Fatal("p>=1 must always reassure high stress")
		}
		if always.Reassure(types.StressMedium) || always.Reassure(types.StressLow) {
			t.Fatal("Only high stress may be reassured")
		}
	}
}

// TestProbabilityPolicy_MessageRotates tests functional validation - messages cycle
func TestProbabilityPolicy_MessageRotates(t *testing.T) {
	p := NewProbabilityPolicy(1, 1, []string{"a", "b"})
	got := []string{p.Message(), p.Message(), p.Message()}
	if got[0] != "a" || got[1] != "b" || got[2] != "a" {
		t.Errorf("Unexpected rotation: %v", got)
	}
}

// TestFixedPolicy tests functional validation - deterministic policy for callers that need one
func TestFixedPolicy(t *testing.T) {
	if (FixedPolicy{}).Reassure(types.StressHigh) {
		t.Error("Zero FixedPolicy must never reassure")
	}
	f := FixedPolicy{Always: true}
	if !f.Reassure(types.StressHigh) || f.Reassure(types.StressLow) {
		t.Error("FixedPolicy{Always} should reassure high stress only")
	}
	if f.Message() != DefaultReassurances[0] {
		t.Errorf("Expected default message, got %q", f.Message())
	}
}
