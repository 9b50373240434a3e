package domain

import "fmt"

// PipelineState is the position of a notification in the ingestion pipeline.
// received → authenticating → normalizing → evaluating-duplicate → admitting →
// {admitted | rejected-duplicate | failed}
type PipelineState string

const (
	StateReceived            PipelineState = "received"
	StateAuthenticating      PipelineState = "authenticating"
	StateNormalizing         PipelineState = "normalizing"
	StateEvaluatingDuplicate PipelineState = "evaluating-duplicate"
	StateAdmitting           PipelineState = "admitting"
	StateAdmitted            PipelineState = "admitted"
	StateRejectedDuplicate   PipelineState = "rejected-duplicate"
	StateFailed              PipelineState = "failed"
)

var nextState = map[PipelineState]PipelineState{
	StateReceived:            StateAuthenticating,
	StateAuthenticating:      StateNormalizing,
	StateNormalizing:         StateEvaluatingDuplicate,
	StateEvaluatingDuplicate: StateAdmitting,
	StateAdmitting:           StateAdmitted,
}

// IsTerminal returns true for the three final states.
func (s PipelineState) IsTerminal() bool {
	return s == StateAdmitted || s == StateRejectedDuplicate || s == StateFailed
}

// CanTransition reports whether the pipeline may move from s to next.
// Any non-terminal state may fail; an idempotent retry found during duplicate
// evaluation short-circuits to admitted.
func (s PipelineState) CanTransition(next PipelineState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	if s == StateEvaluatingDuplicate && (next == StateRejectedDuplicate || next == StateAdmitted) {
		return true
	}
	return nextState[s] == next
}

// StateMachine tracks one notification's pipeline state.
type StateMachine struct {
	state PipelineState
}

// NewStateMachine starts in the received state.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateReceived}
}

// State returns the current state.
func (m *StateMachine) State() PipelineState {
	return m.state
}

// Advance moves to next, rejecting transitions that skip or re-enter states.
func (m *StateMachine) Advance(next PipelineState) error {
	if !m.state.CanTransition(next) {
		return fmt.Errorf("invalid pipeline transition %s -> %s", m.state, next)
	}
	m.state = next
	return nil
}
