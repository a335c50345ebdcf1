// Package adapter implements the execution core's Adapter Registry
// (spec §4.3): an opaque mapping from a step's action name to a callable
// that performs the work. The core never inspects adapter internals; any
// non-nil error is a step-level failure.
package adapter

import (
	"context"
	"time"
)

// Result is what an adapter call returns: the step's output, and whatever
// metadata the adapter wants merged into the step (and, for known keys,
// mirrored into execution metrics) per spec §4.3.
type Result struct {
	Output   map[string]interface{}
	Metadata map[string]interface{}
}

// Adapter performs one step's work. A non-nil error is a step-level failure.
type Adapter func(ctx context.Context, params map[string]interface{}) (*Result, error)

// Registry maps a step's action name to the Adapter that performs it.
// Missing credentials at startup simply mean the action is never
// registered (spec §4.3); callers fall back to simulation.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register wires a named action to a concrete adapter. Called by startup
// code only for actions whose credentials are present in the environment.
func (r *Registry) Register(action string, a Adapter) {
	r.adapters[action] = a
}

// Lookup returns the adapter registered for action, or ok=false if none is
// registered (the caller should simulate per spec §4.3).
func (r *Registry) Lookup(action string) (Adapter, bool) {
	a, ok := r.adapters[action]
	return a, ok
}

// RegisteredActions returns the set of actions with a real adapter wired,
// for diagnostics (cmd/workflow-engine logs it at startup).
func (r *Registry) RegisteredActions() []string {
	actions := make([]string, 0, len(r.adapters))
	for action := range r.adapters {
		actions = append(actions, action)
	}
	return actions
}

// SimulationDelay is how long the simulated adapter sleeps before
// returning, overridable in tests (spec §4.3, original_source behavior).
var SimulationDelay = 50 * time.Millisecond

// Simulate performs the fallback behavior for an action with no registered
// adapter: a short sleep, synthetic output, and simulation metadata,
// exactly as the Python original's worker does for an unrecognized action
// (spec §4.3, SPEC_FULL.md SUPPLEMENTED FEATURES).
func Simulate(ctx context.Context, action string, params map[string]interface{}) (*Result, error) {
	select {
	case <-time.After(SimulationDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Result{
		Output: map[string]interface{}{
			"result": "simulated",
			"action": action,
			"params": params,
		},
		Metadata: map[string]interface{}{
			"simulated": true,
			"tokens":    100,
			"cost":      0.001,
		},
	}, nil
}
