package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validStep(id StepID, deps ...StepID) *Step {
	return &Step{ID: id, Name: "s", Action: "noop", Dependencies: deps}
}

func TestWorkflowValidateDetectsCycle(t *testing.T) {
	a, b := NewStepID(), NewStepID()
	wf := &Workflow{
		ID:   NewWorkflowID(),
		Name: "cyclic",
		Steps: []*Step{
			validStep(a, b),
			validStep(b, a),
		},
	}
	err := wf.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")
}

func TestWorkflowValidateDetectsUnknownDependency(t *testing.T) {
	a := NewStepID()
	wf := &Workflow{
		ID:    NewWorkflowID(),
		Name:  "wf",
		Steps: []*Step{validStep(a, NewStepID())},
	}
	err := wf.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown step")
}

func TestWorkflowValidateDetectsDuplicateStepID(t *testing.T) {
	a := NewStepID()
	wf := &Workflow{
		ID:    NewWorkflowID(),
		Name:  "wf",
		Steps: []*Step{validStep(a), validStep(a)},
	}
	err := wf.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate")
}

func TestWorkflowValidateAcceptsLinearDAG(t *testing.T) {
	a, b := NewStepID(), NewStepID()
	wf := &Workflow{
		ID:    NewWorkflowID(),
		Name:  "wf",
		Steps: []*Step{validStep(a), validStep(b, a)},
	}
	require.NoError(t, wf.Validate())
}

func TestStepValidateRequiresOutputsWhenCompleted(t *testing.T) {
	s := validStep(NewStepID())
	s.Status = StepStatusCompleted
	err := s.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "must have outputs")
}

func TestStepValidateRequiresErrorWhenFailed(t *testing.T) {
	s := validStep(NewStepID())
	s.Status = StepStatusFailed
	err := s.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "must have an error")
}

func TestRecomputeProgress(t *testing.T) {
	a, b := NewStepID(), NewStepID()
	wf := &Workflow{ID: NewWorkflowID(), Name: "wf", Steps: []*Step{validStep(a), validStep(b)}}
	wf.Steps[0].Status = StepStatusCompleted

	wf.RecomputeProgress()
	require.Equal(t, 50, wf.Progress)

	wf.Status = WorkflowStatusCompleted
	wf.RecomputeProgress()
	require.Equal(t, 100, wf.Progress)
}
