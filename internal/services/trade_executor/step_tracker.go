package trade_executor

import (
	"sync"

	"github.com/archon-research/stl-trade/internal/domain/entity"
)

// StepTracker follows a multi-step submission. Exactly one step is running
// at a time; a failure ends the sequence.
type StepTracker struct {
	mu      sync.Mutex
	steps   []entity.Step
	current int
	done    bool
}

// NewStepTracker creates a tracker with every step pending.
func NewStepTracker(labels ...string) *StepTracker {
	steps := make([]entity.Step, len(labels))
	for i, l := range labels {
		steps[i] = entity.Step{Label: l, Status: entity.StepPending}
	}
	return &StepTracker{steps: steps, current: -1}
}

// Start marks the first step running.
func (t *StepTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current >= 0 || t.done || len(t.steps) == 0 {
		return
	}
	t.current = 0
	t.steps[0].Status = entity.StepRunning
}

// SetSuccessAndNext completes the running step and starts the next one.
func (t *StepTracker) SetSuccessAndNext() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current < 0 || t.done {
		return
	}
	t.steps[t.current].Status = entity.StepSuccess
	t.current++
	if t.current == len(t.steps) {
		t.done = true
		return
	}
	t.steps[t.current].Status = entity.StepRunning
}

// SetFailed fails the running step with msg. Later steps stay pending.
func (t *StepTracker) SetFailed(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || len(t.steps) == 0 {
		return
	}
	if t.current < 0 {
		t.current = 0
	}
	t.steps[t.current].Status = entity.StepFailed
	t.steps[t.current].Message = msg
	t.done = true
}

// Steps returns a copy of the current steps.
func (t *StepTracker) Steps() []entity.Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]entity.Step, len(t.steps))
	copy(out, t.steps)
	return out
}
