// Package phase decides interview phase progression and natural termination
// from candidate turn counts alone.
package phase

import (
	"errors"
	"fmt"

	"interviewroom/pkg/types"
)

// DefaultSafetyCap terminates any interview after this many candidate turns
const DefaultSafetyCap = 20

// Thresholds holds the candidate turns required to leave each phase
type Thresholds [types.PhaseCount]int

// DefaultThresholds advances after 3 answers per phase and finishes after 2
// answers in reflection
var DefaultThresholds = Thresholds{3, 3, 3, 3, 2}

var (
	ErrInvalidThreshold = errors.New("phase thresholds must be positive")
	ErrInvalidSafetyCap = errors.New("safety cap must be positive")
)

// Action is what the machine tells the pipeline to do after a candidate turn
type Action int

const (
	Stay Action = iota
	Advance
	Terminate
)

func (a Action) String() string {
	switch a {
	case Stay:
		return "stay"
	case Advance:
		return "advance"
	case Terminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one evaluation
type Decision struct {
	Action Action
	Next   types.Phase
	Reason types.TerminationReason
}

// Machine is the pure phase decision function with its configuration
type Machine struct {
	thresholds Thresholds
	safetyCap  int
}

// New validates thresholds and returns a Machine
func New(thresholds Thresholds, safetyCap int) (*Machine, error) {
	for i, n := range thresholds {
		if n <= 0 {
			return nil, fmt.Errorf("%w: phase %s has %d", ErrInvalidThreshold, types.Phase(i), n)
		}
	}
	if safetyCap <= 0 {
		return nil, ErrInvalidSafetyCap
	}
	return &Machine{thresholds: thresholds, safetyCap: safetyCap}, nil
}

// Default returns a Machine with DefaultThresholds and DefaultSafetyCap
func Default() *Machine {
	return &Machine{thresholds: DefaultThresholds, safetyCap: DefaultSafetyCap}
}

// Threshold returns the candidate turns required in phase p
func (m *Machine) Threshold(p types.Phase) int {
	return m.thresholds[clamp(p)]
}

// SafetyCap returns the total candidate turn bound
func (m *Machine) SafetyCap() int {
	return m.safetyCap
}

// Decide evaluates (phase, turns in phase, total candidate turns)
// FUNCTIONAL DISCOVERY: Natural completion is checked before the safety cap so
// the reason reflects the phase rules when both hold on the same turn
func (m *Machine) Decide(current types.Phase, turnsInPhase, totalTurns int) Decision {
	current = clamp(current)

	if current.IsTerminal() && turnsInPhase >= m.thresholds[current] {
		return Decision{Action: Terminate, Next: current, Reason: types.ReasonPhasesComplete}
	}
	if totalTurns >= m.safetyCap {
		return Decision{Action: Terminate, Next: current, Reason: types.ReasonSafetyCap}
	}
	if turnsInPhase >= m.thresholds[current] {
		return Decision{Action: Advance, Next: Next(current)}
	}
	return Decision{Action: Stay, Next: current}
}

// Next returns the phase after p; advancing past the last phase is a no-op
func Next(p types.Phase) types.Phase {
	p = clamp(p)
	if p.IsTerminal() {
		return p
	}
	return p + 1
}

func clamp(p types.Phase) types.Phase {
	if p < types.PhaseWarmup {
		return types.PhaseWarmup
	}
	if int(p) >= types.PhaseCount {
		return types.PhaseReflection
	}
	return p
}

// Progress is the per-session counter state the machine evaluates
// TECHNICAL DISCOVERY: Phase is only ever written through Record, which is the
// single place that can move it, and only forwards
type Progress struct {
	Phase        types.Phase `json:"phase"`
	TurnsInPhase int         `json:"turns_in_phase"`
	TotalTurns   int         `json:"total_turns"`
}

// Record counts one candidate turn and applies the resulting decision
func (m *Machine) Record(p *Progress) Decision {
	p.TurnsInPhase++
	p.TotalTurns++

	d := m.Decide(p.Phase, p.TurnsInPhase, p.TotalTurns)
	if d.Action == Advance && d.Next > p.Phase {
		p.Phase = d.Next
		p.TurnsInPhase = 0
	}
	return d
}
