package jobs

// Phase is a named state in the job's linear progress state machine.
type Phase string

const (
	PhaseReceived    Phase = "received"
	PhaseValidating  Phase = "validating"
	PhaseExtracting  Phase = "extracting"
	PhaseStructuring Phase = "structuring"
	PhaseAnalyzing   Phase = "analyzing"
	PhasePublishing  Phase = "publishing"
	PhaseCompleted   Phase = "completed"
	PhaseFailed      Phase = "failed"
)

var phaseOrder = map[Phase]int{
	PhaseReceived:    0,
	PhaseValidating:  1,
	PhaseExtracting:  2,
	PhaseStructuring: 3,
	PhaseAnalyzing:   4,
	PhasePublishing:  5,
	PhaseCompleted:   6,
}

var phaseProgress = map[Phase]int{
	PhaseReceived:    5,
	PhaseValidating:  10,
	PhaseExtracting:  40,
	PhaseStructuring: 55,
	PhaseAnalyzing:   80,
	PhasePublishing:  95,
	PhaseCompleted:   100,
	PhaseFailed:      100,
}

// Progress returns the percentage reported when a job enters the phase.
func (p Phase) Progress() int {
	return phaseProgress[p]
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	if p == PhaseFailed {
		return true
	}
	_, ok := phaseOrder[p]
	return ok
}

// CanAdvanceTo reports whether moving from p to next is a legal transition.
// Transitions only move forward; failed is reachable from any non-terminal phase.
func (p Phase) CanAdvanceTo(next Phase) bool {
	if p.Terminal() || !next.Valid() {
		return false
	}
	if next == PhaseFailed {
		return true
	}
	return phaseOrder[next] > phaseOrder[p]
}
