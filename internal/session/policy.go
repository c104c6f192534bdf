package session

import (
	"math/rand"
	"sync"
	"time"

	"interviewroom/pkg/types"
)

// ReassurancePolicy decides whether a high-stress candidate gets a
// reassurance utterance instead of the next rubric question
type ReassurancePolicy interface {
	Reassure(stress types.StressLevel) bool
	Message() string
}

// DefaultReassurances are spoken in place of a question
var DefaultReassurances = []string{
	"Take your time, there is no rush. Whenever you're ready, tell me a bit more about that.",
	"You're doing well. Let's slow down for a moment; feel free to think out loud.",
	"That's perfectly fine. There are no trick questions here, just share what comes to mind.",
}

// ProbabilityPolicy reassures high-stress candidates with probability P
// TECHNICAL DISCOVERY: One policy is shared by all session actors, so the
// random source is guarded; a non-zero seed makes the sequence reproducible
type ProbabilityPolicy struct {
	p        float64
	messages []string
	rng      *rand.Rand
	next     int
	mu       sync.Mutex
}

// NewProbabilityPolicy clamps p to [0,1]; seed 0 seeds from the clock
func NewProbabilityPolicy(p float64, seed int64, messages []string) *ProbabilityPolicy {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if len(messages) == 0 {
		messages = DefaultReassurances
	}
	return &ProbabilityPolicy{
		p:        p,
		messages: messages,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Reassure only ever fires for high stress
func (pp *ProbabilityPolicy) Reassure(stress types.StressLevel) bool {
	if stress != types.StressHigh {
		return false
	}
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return pp.rng.Float64() < pp.p
}

// Message rotates through the configured reassurances
func (pp *ProbabilityPolicy) Message() string {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	msg := pp.messages[pp.next%len(pp.messages)]
	pp.next++
	return msg
}

// FixedPolicy always (or never) reassures high-stress candidates
type FixedPolicy struct {
	Always bool
	Text   string
}

func (f FixedPolicy) Reassure(stress types.StressLevel) bool {
	return f.Always && stress == types.StressHigh
}

func (f FixedPolicy) Message() string {
	if f.Text != "" {
		return f.Text
	}
	return DefaultReassurances[0]
}
