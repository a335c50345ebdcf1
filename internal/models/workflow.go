package models

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Metrics is the workflow-level aggregation of per-step execution metrics
// (spec §3: "optional aggregated metrics (sum of tokens, sum of cost)").
type Metrics struct {
	TotalTokens int64   `json:"totalTokens"`
	TotalCost   float64 `json:"totalCost"`
}

// CostBreakdown maps a model name to the total cost incurred against it.
type CostBreakdown map[string]float64

// Workflow is the top-level aggregate: an ordered DAG of Steps plus the
// bookkeeping the core needs to schedule, recover, and report on them.
type Workflow struct {
	ID          WorkflowID             `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Status      WorkflowStatus         `json:"status"`
	Steps       []*Step                `json:"steps"`
	CreatedAt   Time                   `json:"createdAt"`
	UpdatedAt   Time                   `json:"updatedAt"`
	Progress    int                    `json:"progress"`
	Metrics     *Metrics               `json:"metrics,omitempty"`
	CostBreak   CostBreakdown          `json:"costBreakdown,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Extra preserves fields the HTTP edge may add that this version of the
	// core does not know about, so a read-modify-write round trip never
	// silently drops forward-compatible data (spec §4.1).
	Extra map[string]interface{} `json:"-"`
}

// StepByID returns the step with the given ID, or nil if not present.
func (w *Workflow) StepByID(id StepID) *Step {
	for _, s := range w.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Validate checks the structural invariants from spec §3: dependencies
// refer only to sibling steps and the dependency graph is acyclic.
func (w *Workflow) Validate() error {
	var result *multierror.Error
	if !w.ID.Valid() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if w.Name == "" {
		result = multierror.Append(result, errors.New("error name must be set"))
	}
	if w.Status != "" && !w.Status.Valid() {
		result = multierror.Append(result, errors.Errorf("error status %q is invalid", w.Status))
	}

	byID := make(map[StepID]*Step, len(w.Steps))
	for _, s := range w.Steps {
		if _, exists := byID[s.ID]; exists {
			result = multierror.Append(result, errors.Errorf("error duplicate step id %q", s.ID))
			continue
		}
		byID[s.ID] = s
	}
	for _, s := range w.Steps {
		if err := s.Validate(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "error validating step %q", s.ID))
		}
		for _, dep := range s.Dependencies {
			if _, ok := byID[dep]; !ok {
				result = multierror.Append(result, errors.Errorf(
					"error step %q depends on unknown step %q", s.ID, dep))
			}
		}
	}
	if err := detectCycle(w.Steps); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// detectCycle performs a DFS cycle check over the step dependency graph.
func detectCycle(steps []*Step) error {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[StepID]int, len(steps))
	byID := make(map[StepID]*Step, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	var visit func(id StepID) error
	visit = func(id StepID) error {
		switch state[id] {
		case visiting:
			return errors.Errorf("error dependency cycle detected at step %q", id)
		case visited:
			return nil
		}
		state[id] = visiting
		if s, ok := byID[id]; ok {
			for _, dep := range s.Dependencies {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[id] = visited
		return nil
	}

	for _, s := range steps {
		if err := visit(s.ID); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeProgress sets Progress per spec §3's invariant:
// floor(100 * completed / total), 0 if no steps, 100 if workflow is COMPLETED.
func (w *Workflow) RecomputeProgress() {
	if w.Status == WorkflowStatusCompleted {
		w.Progress = 100
		return
	}
	if len(w.Steps) == 0 {
		w.Progress = 0
		return
	}
	completed := 0
	for _, s := range w.Steps {
		if s.Status == StepStatusCompleted {
			completed++
		}
	}
	w.Progress = (100 * completed) / len(w.Steps)
}
