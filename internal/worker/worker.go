// Package worker implements the execution core's Worker (spec §4.4): a
// single cooperative loop that pulls one job ticket at a time, validates
// it, transitions the step through its lifecycle, invokes the adapter
// registry, persists results, and enqueues newly-ready successors.
//
// Grounded on runner.Scheduler.loop()'s single-
// goroutine poll/dispatch shape, and on
// queue.QueueService.maintainBuildStatus for aggregate status recomputation.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/buildbeaver/workflow-engine/internal/adapter"
	"github.com/buildbeaver/workflow-engine/internal/logger"
	"github.com/buildbeaver/workflow-engine/internal/models"
	"github.com/buildbeaver/workflow-engine/internal/queue"
	"github.com/buildbeaver/workflow-engine/internal/store"
)

const (
	// DefaultEmptyQueueSleep is how long the worker waits before checking
	// the queue again when it finds nothing to do (spec §4.4 step 1).
	DefaultEmptyQueueSleep = time.Second
	// DefaultDependencyGateSleep is how long the worker waits after
	// re-enqueuing a ticket whose dependencies aren't satisfied yet
	// (spec §4.4 step 5).
	DefaultDependencyGateSleep = 2 * time.Second
	// DefaultOuterLoopErrorSleep is how long the worker backs off after an
	// exception in the outer loop, e.g. a queue read failure (spec §7(c)).
	DefaultOuterLoopErrorSleep = 5 * time.Second
	// DefaultMaxRedeliveries dead-letters a ticket whose dependencies never
	// become satisfied after this many re-enqueues (spec §9 Open Questions).
	DefaultMaxRedeliveries = queue.DefaultMaxRedeliveries
)

// Config tunes the worker's timing and redelivery behavior.
type Config struct {
	EmptyQueueSleep     time.Duration
	DependencyGateSleep time.Duration
	OuterLoopErrorSleep time.Duration
	MaxRedeliveries     int
}

func DefaultConfig() Config {
	return Config{
		EmptyQueueSleep:     DefaultEmptyQueueSleep,
		DependencyGateSleep: DefaultDependencyGateSleep,
		OuterLoopErrorSleep: DefaultOuterLoopErrorSleep,
		MaxRedeliveries:     DefaultMaxRedeliveries,
	}
}

// Worker is the execution core's single cooperative job processor.
type Worker struct {
	store    store.Store
	queue    queue.Queue
	registry *adapter.Registry
	clock    clock.Clock
	config   Config
	log      logger.Log
}

func New(s store.Store, q queue.Queue, registry *adapter.Registry, logFactory logger.LogFactory, opts ...Opt) *Worker {
	w := &Worker{
		store:    s,
		queue:    q,
		registry: registry,
		clock:    clock.New(),
		config:   DefaultConfig(),
		log:      logFactory("Worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type Opt func(*Worker)

func WithClock(c clock.Clock) Opt {
	return func(w *Worker) { w.clock = c }
}

func WithConfig(cfg Config) Opt {
	return func(w *Worker) { w.config = cfg }
}

// Run drives the cooperative loop until ctx is cancelled (spec §4.4).
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := w.tick(ctx); err != nil {
			w.log.Errorf("error in worker outer loop, backing off: %v", err)
			if !w.sleep(ctx, w.config.OuterLoopErrorSleep) {
				return
			}
		}
	}
}

// tick performs at most one queue dequeue-and-process cycle. A returned
// error represents an outer-loop failure (spec §7(c)): a queue read
// failure, or a State Store or queue write failure while processing the
// ticket. Adapter errors and panics are recorded on the step and never
// surface here; no error ends the loop (spec §4.4).
func (w *Worker) tick(ctx context.Context) error {
	ticket, ok, err := w.queue.Next()
	if err != nil {
		return fmt.Errorf("error reading next job ticket: %w", err)
	}
	if !ok {
		if !w.sleep(ctx, w.config.EmptyQueueSleep) {
			return nil
		}
		return nil
	}

	requeue, requeueErr := w.processTicket(ctx, ticket)
	if requeueErr != nil {
		return requeueErr
	}
	if requeue {
		if !w.sleep(ctx, w.config.DependencyGateSleep) {
			return nil
		}
	}
	return nil
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := w.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// processTicket implements spec §4.4 steps 2-12 for a single ticket.
// It returns requeue=true when the dependency gate deferred the ticket,
// so the caller can apply the gate's backoff sleep.
//
// The adapter call happens between two separate Update calls rather than
// inside one, deliberately: holding the per-workflow lock across a
// potentially slow adapter invocation would block the HTTP edge's
// stop/resume handlers for the call's entire duration. Releasing the lock
// also lets an operator-initiated stop land while a step is mid-flight —
// when the worker goes to persist the outcome, it discards it if the step
// is no longer RUNNING (spec §8 scenario S5: "observed after its in-flight
// call is discarded").
func (w *Worker) processTicket(ctx context.Context, ticket models.JobTicket) (requeue bool, err error) {
	log := w.log.WithFields(logger.Fields{
		"workflow_id": ticket.WorkflowID.String(),
		"step_id":     ticket.StepID.String(),
	})

	if !w.store.Exists(ticket.WorkflowID) {
		log.Warn("discarding ticket: workflow not found")
		return false, nil
	}

	action, params, ready, err := w.beginStep(ticket, log)
	if err != nil {
		return false, err
	}
	switch ready {
	case stepNotRunnable:
		return false, nil
	case stepDeferred:
		return w.requeueForDependencies(ticket, log)
	}

	result, invokeErr := w.invokeAdapter(ctx, action, params)
	if err := w.finishStep(ticket, result, invokeErr, log); err != nil {
		return false, err
	}
	return false, nil
}

type stepReadiness int

const (
	stepNotRunnable stepReadiness = iota
	stepDeferred
	stepRunning
)

// beginStep applies the idempotency and dependency gates and, if the step
// is runnable, transitions it to RUNNING and persists that before the
// caller invokes the adapter (spec §4.4 steps 4-6).
func (w *Worker) beginStep(ticket models.JobTicket, log logger.Log) (action string, params map[string]interface{}, readiness stepReadiness, err error) {
	_, updateErr := w.store.Update(ticket.WorkflowID, func(wf *models.Workflow) error {
		step := wf.StepByID(ticket.StepID)
		if step == nil {
			log.Warn("discarding ticket: step not found")
			readiness = stepNotRunnable
			return store.ErrNoUpdate
		}

		// Idempotency gate (spec §4.4 step 4, §8 property 1).
		if step.Status.Terminal() {
			log.Debugf("discarding ticket: step already in terminal status %s", step.Status)
			readiness = stepNotRunnable
			return store.ErrNoUpdate
		}

		// Dependency gate (spec §4.4 step 5, §8 property 2).
		if !dependenciesSatisfied(wf, step) {
			readiness = stepDeferred
			step.RedeliveryCount = ticket.RedeliveryCount + 1
			return nil
		}

		now := w.clock.Now()
		step.Status = models.StepStatusRunning
		step.StartTime = models.NewTimePtr(now)
		step.AppendLog(fmt.Sprintf("started at %s", now.Format(time.RFC3339)))
		if wf.Status == models.WorkflowStatusPending {
			wf.Status = models.WorkflowStatusRunning
		}
		action = step.Action
		params = step.Params
		readiness = stepRunning
		return nil
	})
	if updateErr != nil {
		return "", nil, stepNotRunnable, fmt.Errorf("error updating workflow %s: %w", ticket.WorkflowID, updateErr)
	}
	return action, params, readiness, nil
}

// finishStep persists the adapter's outcome, unless the step was preempted
// (no longer RUNNING) while the adapter call was in flight.
func (w *Worker) finishStep(ticket models.JobTicket, result *adapter.Result, invokeErr error, log logger.Log) error {
	_, updateErr := w.store.Update(ticket.WorkflowID, func(wf *models.Workflow) error {
		step := wf.StepByID(ticket.StepID)
		if step == nil || step.Status != models.StepStatusRunning {
			log.Debugf("discarding adapter outcome: step no longer RUNNING")
			return store.ErrNoUpdate
		}

		end := w.clock.Now()
		step.EndTime = models.NewTimePtr(end)
		step.Duration = FormatDuration(end.Sub(step.StartTime.Time))

		if invokeErr != nil {
			w.failStep(wf, step, invokeErr, log)
		} else {
			w.completeStep(wf, step, result, log)
		}
		recomputeAggregates(wf)
		return nil
	})
	if updateErr != nil {
		return fmt.Errorf("error updating workflow %s: %w", ticket.WorkflowID, updateErr)
	}
	return nil
}

// requeueForDependencies re-adds the ticket for a later retry, bumping its
// redelivery counter and dead-lettering it if the limit is exceeded
// (spec §9 Open Questions).
func (w *Worker) requeueForDependencies(ticket models.JobTicket, log logger.Log) (requeue bool, err error) {
	ticket.RedeliveryCount++
	if w.config.MaxRedeliveries > 0 && ticket.RedeliveryCount > w.config.MaxRedeliveries {
		log.Errorf("dead-lettering ticket after %d redeliveries", ticket.RedeliveryCount)
		_, updateErr := w.store.Update(ticket.WorkflowID, func(wf *models.Workflow) error {
			step := wf.StepByID(ticket.StepID)
			if step == nil || step.Status.Terminal() {
				return store.ErrNoUpdate
			}
			step.Status = models.StepStatusFailed
			step.Error = "redelivery limit exceeded: dependencies never became satisfied"
			if step.EffectiveOnFailure() == models.OnFailureStopWorkflow {
				cascadeStop(wf, step.ID)
			}
			recomputeAggregates(wf)
			return nil
		})
		if updateErr != nil {
			return false, fmt.Errorf("error dead-lettering ticket: %w", updateErr)
		}
		return false, nil
	}
	if err := w.queue.Add(ticket); err != nil {
		return false, fmt.Errorf("error re-enqueuing deferred ticket: %w", err)
	}
	return true, nil
}

// invokeAdapter looks up a registered adapter for the action, or falls back
// to simulation when none is registered (spec §4.3). A panic inside the
// adapter is recovered and surfaced as an error (spec §7(b): "Unhandled
// exceptions... treated as an adapter error").
func (w *Worker) invokeAdapter(ctx context.Context, action string, params map[string]interface{}) (result *adapter.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panicked: %v", r)
		}
	}()

	a, ok := w.registry.Lookup(action)
	if !ok {
		return adapter.Simulate(ctx, action, params)
	}
	return a(ctx, params)
}

// failStep marks the step FAILED and, for stop_workflow steps, cascades the
// failure to downstream successors. The workflow's own status is left to
// recomputeAggregates, which only resolves it once every step is terminal
// (spec §8 property 4: terminal coherence).
func (w *Worker) failStep(wf *models.Workflow, step *models.Step, stepErr error, log logger.Log) {
	step.Status = models.StepStatusFailed
	step.Error = stepErr.Error()
	log.Warnf("step failed: %v", stepErr)

	if step.EffectiveOnFailure() == models.OnFailureStopWorkflow {
		cascadeStop(wf, step.ID)
	}
}

func (w *Worker) completeStep(wf *models.Workflow, step *models.Step, result *adapter.Result, log logger.Log) {
	step.Status = models.StepStatusCompleted
	if result != nil {
		step.Outputs = result.Output
		applyMetadata(step, result.Metadata)
	}
	if step.Outputs == nil {
		step.Outputs = map[string]interface{}{}
	}

	for _, ready := range readySet(wf) {
		ticket := models.NewJobTicket(wf.ID, ready.ID)
		if w.queue.Contains(wf.ID, ready.ID) {
			continue
		}
		if err := w.queue.Add(ticket); err != nil {
			log.Errorf("error enqueuing ready step %s: %v", ready.ID, err)
			continue
		}
		ready.Status = models.StepStatusWaitingForDependency
	}
}

// applyMetadata merges adapter-reported metadata into the step and, for
// known keys, mirrors it into execution metrics (spec §4.3).
func applyMetadata(step *models.Step, metadata map[string]interface{}) {
	if len(metadata) == 0 {
		return
	}
	if step.Metadata == nil {
		step.Metadata = make(map[string]interface{}, len(metadata))
	}
	for k, v := range metadata {
		step.Metadata[k] = v
	}

	metrics := &models.ExecutionMetrics{}
	have := false
	if tokens, ok := numericValue(metadata["tokens"]); ok {
		metrics.Tokens = int64(tokens)
		have = true
	}
	if cost, ok := numericValue(metadata["cost"]); ok {
		metrics.Cost = cost
		have = true
	}
	if model, ok := metadata["model"].(string); ok {
		metrics.Model = model
		have = true
	}
	if ms, ok := numericValue(metadata["duration_ms"]); ok {
		metrics.DurationMs = int64(ms)
		have = true
	}
	if have {
		step.ExecMetrics = metrics
	}
}

func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
