package models

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ExecutionMetrics records what an adapter reported about one step's
// execution, mirrored from known metadata keys (spec §4.3).
type ExecutionMetrics struct {
	Tokens     int64   `json:"tokens,omitempty"`
	Cost       float64 `json:"cost,omitempty"`
	Model      string  `json:"model,omitempty"`
	DurationMs int64   `json:"durationMs,omitempty"`
}

// Step is a single node in a Workflow's DAG.
type Step struct {
	ID           StepID                 `json:"id"`
	Name         string                 `json:"name"`
	Action       string                 `json:"action"`
	Status       StepStatus             `json:"status"`
	Dependencies []StepID               `json:"dependencies,omitempty"`
	Params       map[string]interface{} `json:"params,omitempty"`
	Outputs      map[string]interface{} `json:"outputs,omitempty"`
	Error        string                 `json:"error,omitempty"`
	StartTime    *Time                  `json:"startTime,omitempty"`
	EndTime      *Time                  `json:"endTime,omitempty"`
	Duration     string                 `json:"duration,omitempty"`
	Logs         []string               `json:"logs,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ExecMetrics  *ExecutionMetrics      `json:"executionMetrics,omitempty"`
	OnFailure    OnFailurePolicy        `json:"onFailure,omitempty"`

	// RedeliveryCount tracks how many times this step's ticket has been
	// re-enqueued by the worker's dependency gate (spec §9 Open Questions).
	RedeliveryCount int `json:"redeliveryCount,omitempty"`
}

// EffectiveOnFailure returns the configured policy, defaulting to stop_workflow.
func (s *Step) EffectiveOnFailure() OnFailurePolicy {
	if s.OnFailure == "" {
		return OnFailureStopWorkflow
	}
	return s.OnFailure
}

// AppendLog appends a single log line (logs are append-only, spec §3).
func (s *Step) AppendLog(line string) {
	s.Logs = append(s.Logs, line)
}

// Validate checks structural invariants local to a single step.
func (s *Step) Validate() error {
	var result *multierror.Error
	if !s.ID.Valid() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if s.Name == "" {
		result = multierror.Append(result, errors.New("error name must be set"))
	}
	if s.Action == "" {
		result = multierror.Append(result, errors.New("error action must be set"))
	}
	if s.Status != "" && !s.Status.Valid() {
		result = multierror.Append(result, errors.Errorf("error status %q is invalid", s.Status))
	}
	if s.OnFailure != "" && !s.OnFailure.Valid() {
		result = multierror.Append(result, errors.Errorf("error onFailure %q is invalid", s.OnFailure))
	}
	if s.Status.Terminal() {
		hasOutput := len(s.Outputs) > 0
		hasError := s.Error != ""
		if s.Status == StepStatusCompleted && hasError {
			result = multierror.Append(result, errors.New("error completed step must not have an error"))
		}
		if s.Status == StepStatusFailed && hasOutput {
			result = multierror.Append(result, errors.New("error failed step must not have outputs"))
		}
		if s.Status == StepStatusCompleted && !hasOutput {
			result = multierror.Append(result, errors.New("error completed step must have outputs"))
		}
		if s.Status == StepStatusFailed && !hasError {
			result = multierror.Append(result, errors.New("error failed step must have an error"))
		}
	}
	return result.ErrorOrNil()
}
