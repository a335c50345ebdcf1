// Package recovery implements the execution core's Recovery Manager
// (spec §4.5): a synchronous startup procedure that scans every persisted
// workflow, resets in-flight work interrupted by a crash, and rebuilds the
// Job Queue so the Worker can safely resume.
//
// Grounded on the scan-and-reset vocabulary of
// other_examples/.../internal-domain-workflow-workflowrecovery.go's
// ResumeWorkflow ("reset any failed steps... to pending"), generalized
// from step-level retry resumption to the engine's crash-recovery
// semantics, and on common/util.StatefulService's startup-before-serving
// ordering convention.
package recovery

import (
	"fmt"

	"github.com/buildbeaver/workflow-engine/internal/logger"
	"github.com/buildbeaver/workflow-engine/internal/models"
	"github.com/buildbeaver/workflow-engine/internal/queue"
	"github.com/buildbeaver/workflow-engine/internal/store"
)

// Report summarizes what a Run call changed, for startup logging and tests.
type Report struct {
	WorkflowsScanned int
	StepsReset       int
	WorkflowsReset   int
	TicketsRequeued  int
	TicketsDropped   int
	WorkflowsSkipped int
}

// Manager runs the crash-recovery procedure once, synchronously, before the
// Worker starts consuming the Job Queue (spec §4.5).
type Manager struct {
	store store.Store
	queue queue.Queue
	log   logger.Log
}

func New(s store.Store, q queue.Queue, logFactory logger.LogFactory) *Manager {
	return &Manager{store: s, queue: q, log: logFactory("RecoveryManager")}
}

// Run performs one full recovery pass. Running it twice in a row leaves
// the same step statuses, workflow statuses and queue contents as running
// it once: a workflow with nothing RUNNING or WAITING_FOR_DEPENDENCY is
// left untouched, and a ticket is only added when none for that step is
// already queued. A step the first pass re-enqueued is WAITING_FOR_DEPENDENCY
// afterwards, so a second pass resets and re-enqueues it again, appending
// another recovery log line and counting it in StepsReset.
func (m *Manager) Run() (Report, error) {
	var report Report

	workflows, err := m.store.List()
	if err != nil {
		return report, fmt.Errorf("error listing workflows for recovery: %w", err)
	}
	report.WorkflowsScanned = len(workflows)

	existing := make(map[models.WorkflowID]struct{}, len(workflows))
	for _, wf := range workflows {
		existing[wf.ID] = struct{}{}
		changed, stepsReset, err := m.recoverWorkflow(wf.ID)
		if err != nil {
			m.log.WithField("workflow_id", wf.ID.String()).Errorf("error recovering workflow: %v", err)
			report.WorkflowsSkipped++
			continue
		}
		report.StepsReset += stepsReset
		if changed {
			report.WorkflowsReset++
		}
	}

	requeued, dropped, err := m.rebuildQueue(existing)
	if err != nil {
		return report, fmt.Errorf("error rebuilding job queue: %w", err)
	}
	report.TicketsRequeued = requeued
	report.TicketsDropped = dropped

	m.log.Infof("recovery complete: scanned=%d reset=%d steps_reset=%d requeued=%d dropped=%d skipped=%d",
		report.WorkflowsScanned, report.WorkflowsReset, report.StepsReset,
		report.TicketsRequeued, report.TicketsDropped, report.WorkflowsSkipped)
	return report, nil
}

// recoverWorkflow resets one workflow's interrupted steps back to PENDING
// and re-enqueues whatever becomes ready as a result (spec §4.5: "any step
// left RUNNING or WAITING_FOR_DEPENDENCY when the process stopped is not
// trustworthy and must be re-evaluated from scratch").
func (m *Manager) recoverWorkflow(id models.WorkflowID) (changed bool, stepsReset int, err error) {
	var toEnqueue []models.StepID

	_, updateErr := m.store.Update(id, func(wf *models.Workflow) error {
		if wf.Status.Terminal() {
			return store.ErrNoUpdate
		}

		resetAny := false
		for _, s := range wf.Steps {
			if s.Status == models.StepStatusRunning || s.Status == models.StepStatusWaitingForDependency {
				s.Status = models.StepStatusPending
				s.StartTime = nil
				s.EndTime = nil
				s.Duration = ""
				s.Error = ""
				s.AppendLog("recovered: reset to pending after crash")
				resetAny = true
				stepsReset++
			}
		}
		if !resetAny {
			return store.ErrNoUpdate
		}
		wf.Status = models.WorkflowStatusPending

		for _, s := range readySet(wf) {
			s.Status = models.StepStatusWaitingForDependency
			toEnqueue = append(toEnqueue, s.ID)
		}
		wf.RecomputeProgress()
		changed = true
		return nil
	})
	if updateErr != nil {
		return false, 0, updateErr
	}

	for _, stepID := range toEnqueue {
		if m.queue.Contains(id, stepID) {
			continue
		}
		if err := m.queue.Add(models.NewJobTicket(id, stepID)); err != nil {
			return changed, stepsReset, fmt.Errorf("error enqueuing recovered step %s: %w", stepID, err)
		}
	}
	return changed, stepsReset, nil
}

// rebuildQueue drops any queued ticket referring to a workflow that no
// longer exists, or a step that is already terminal — both are stale
// leftovers a crash could have produced (spec §4.5, §4.2 duplicate
// suppression). Surviving tickets are re-added in their original order.
func (m *Manager) rebuildQueue(existing map[models.WorkflowID]struct{}) (requeued, dropped int, err error) {
	snapshot := m.queue.Snapshot()

	for _, ticket := range snapshot {
		if _, ok := existing[ticket.WorkflowID]; !ok {
			dropped++
			continue
		}
		wf, getErr := m.store.Get(ticket.WorkflowID)
		if getErr != nil {
			dropped++
			continue
		}
		step := wf.StepByID(ticket.StepID)
		if step == nil || step.Status.Terminal() {
			dropped++
			continue
		}
		requeued++
	}

	if dropped == 0 {
		return requeued, dropped, nil
	}

	if err := m.drainQueue(); err != nil {
		return requeued, dropped, err
	}
	for _, ticket := range snapshot {
		if _, ok := existing[ticket.WorkflowID]; !ok {
			continue
		}
		wf, getErr := m.store.Get(ticket.WorkflowID)
		if getErr != nil {
			continue
		}
		step := wf.StepByID(ticket.StepID)
		if step == nil || step.Status.Terminal() {
			continue
		}
		if err := m.queue.Add(ticket); err != nil {
			return requeued, dropped, fmt.Errorf("error re-adding surviving ticket: %w", err)
		}
	}
	return requeued, dropped, nil
}

// drainQueue empties the queue by repeatedly dequeuing, since Queue exposes
// no bulk-replace operation (spec §4.2's contract is strictly FIFO).
func (m *Manager) drainQueue() error {
	for {
		_, ok, err := m.queue.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// readySet mirrors worker.readySet without importing package worker, to
// avoid a cross-package dependency between two siblings that both sit
// directly on top of store and queue.
func readySet(wf *models.Workflow) []*models.Step {
	var ready []*models.Step
	for _, s := range wf.Steps {
		if s.Status != models.StepStatusPending {
			continue
		}
		satisfied := true
		for _, depID := range s.Dependencies {
			dep := wf.StepByID(depID)
			if dep == nil || dep.Status != models.StepStatusCompleted {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, s)
		}
	}
	return ready
}
