// Package httpapi is the execution core's HTTP Edge (spec §6): a thin
// chi.Router translating HTTP requests into State Store / Job Queue
// operations. Engine holds the orchestration the handlers need; it never
// talks to the network directly.
package httpapi

import (
	"fmt"

	"github.com/buildbeaver/workflow-engine/internal/gerror"
	"github.com/buildbeaver/workflow-engine/internal/logger"
	"github.com/buildbeaver/workflow-engine/internal/models"
	"github.com/buildbeaver/workflow-engine/internal/queue"
	"github.com/buildbeaver/workflow-engine/internal/store"
)

// Engine is the HTTP edge's only dependency on the execution core,
// grounded on the services.* layer sitting between server/api and the
// database (spec's DESIGN NOTES: "global singletons... become explicit
// constructor dependencies").
type Engine struct {
	store     store.Store
	queue     queue.Queue
	templates *TemplateRegistry
	log       logger.Log
}

func NewEngine(s store.Store, q queue.Queue, templates *TemplateRegistry, logFactory logger.LogFactory) *Engine {
	return &Engine{store: s, queue: q, templates: templates, log: logFactory("Engine")}
}

func (e *Engine) List() ([]*models.Workflow, error) {
	return e.store.List()
}

func (e *Engine) Get(id models.WorkflowID) (*models.Workflow, error) {
	return e.store.Get(id)
}

// Create validates and persists a brand new workflow, then enqueues its
// initial ready set (spec §6: `POST /api/workflows`, 201 / 409 on duplicate).
func (e *Engine) Create(wf *models.Workflow) error {
	if !wf.ID.Valid() {
		wf.ID = models.NewWorkflowID()
	}
	if wf.Status == "" {
		wf.Status = models.WorkflowStatusPending
	}
	for _, s := range wf.Steps {
		if !s.ID.Valid() {
			s.ID = models.NewStepID()
		}
		if s.Status == "" {
			s.Status = models.StepStatusPending
		}
	}
	if err := wf.Validate(); err != nil {
		return gerror.NewErrValidation(err.Error())
	}
	if e.store.Exists(wf.ID) {
		return gerror.NewErrAlreadyExists(fmt.Sprintf("workflow %s already exists", wf.ID))
	}
	wf.RecomputeProgress()
	if err := e.store.Write(wf.ID, wf); err != nil {
		return err
	}
	e.log.WithField("workflow_id", wf.ID.String()).Infof("workflow created with %d steps", len(wf.Steps))
	return e.enqueueReady(wf)
}

// CreateFromTemplate instantiates a named template with fresh step IDs
// (spec §6: `POST /api/workflows/from-template`).
func (e *Engine) CreateFromTemplate(templateName, workflowName string, params map[string]interface{}) (*models.Workflow, error) {
	tmpl, ok := e.templates.Lookup(templateName)
	if !ok {
		return nil, gerror.NewErrNotFound(fmt.Sprintf("template %q not found", templateName))
	}
	wf := tmpl.Instantiate(workflowName, params)
	if err := e.Create(wf); err != nil {
		return nil, err
	}
	return wf, nil
}

func (e *Engine) enqueueReady(wf *models.Workflow) error {
	for _, s := range wf.Steps {
		if s.Status != models.StepStatusPending {
			continue
		}
		if len(s.Dependencies) > 0 {
			continue
		}
		if e.queue.Contains(wf.ID, s.ID) {
			continue
		}
		if err := e.queue.Add(models.NewJobTicket(wf.ID, s.ID)); err != nil {
			return err
		}
	}
	return nil
}

// Stop marks every non-terminal step STOPPED (spec §6, §8 scenario S5). A
// step that's RUNNING right now is marked STOPPED too; the worker's
// finishStep notices the status no longer reads RUNNING and discards the
// adapter's eventual outcome rather than overwriting this.
func (e *Engine) Stop(id models.WorkflowID) error {
	_, err := e.store.Update(id, func(wf *models.Workflow) error {
		if wf.Status.Terminal() {
			return store.ErrNoUpdate
		}
		for _, s := range wf.Steps {
			if !s.Status.Terminal() {
				s.Status = models.StepStatusStopped
				s.AppendLog("stopped: operator-initiated stop")
			}
		}
		wf.Status = models.WorkflowStatusStopped
		wf.RecomputeProgress()
		return nil
	})
	return err
}

// Resume reverts every STOPPED step back to PENDING and re-enqueues
// whatever is immediately ready (spec §6, §8 scenario S5: "After resume:
// both revert to PENDING, A is re-queued, runs to completion, then B").
func (e *Engine) Resume(id models.WorkflowID) error {
	var toEnqueue []models.StepID

	_, err := e.store.Update(id, func(wf *models.Workflow) error {
		if wf.Status != models.WorkflowStatusStopped {
			return gerror.NewErrConflict(fmt.Sprintf("workflow %s is not stopped", id))
		}
		for _, s := range wf.Steps {
			if s.Status == models.StepStatusStopped {
				s.Status = models.StepStatusPending
				s.Error = ""
				s.AppendLog("resumed: reset to pending")
			}
		}
		wf.Status = models.WorkflowStatusRunning
		for _, s := range readySet(wf) {
			toEnqueue = append(toEnqueue, s.ID)
		}
		wf.RecomputeProgress()
		return nil
	})
	if err != nil {
		return err
	}
	for _, stepID := range toEnqueue {
		if e.queue.Contains(id, stepID) {
			continue
		}
		if err := e.queue.Add(models.NewJobTicket(id, stepID)); err != nil {
			return err
		}
	}
	return nil
}

// IngestExternalData creates a pre-COMPLETED synthetic step carrying the
// payload as its outputs and re-evaluates successors (SPEC_FULL.md
// SUPPLEMENTED FEATURES, spec §6 `POST /api/workflows/{id}/external-data`).
func (e *Engine) IngestExternalData(id models.WorkflowID, name string, payload map[string]interface{}) (*models.Step, error) {
	var created *models.Step
	var toEnqueue []models.StepID

	_, err := e.store.Update(id, func(wf *models.Workflow) error {
		s := &models.Step{
			ID:      models.NewStepID(),
			Name:    name,
			Action:  "external_data",
			Status:  models.StepStatusCompleted,
			Outputs: payload,
		}
		wf.Steps = append(wf.Steps, s)
		created = s

		for _, ready := range readySet(wf) {
			ready.Status = models.StepStatusWaitingForDependency
			toEnqueue = append(toEnqueue, ready.ID)
		}
		wf.RecomputeProgress()
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, stepID := range toEnqueue {
		if e.queue.Contains(id, stepID) {
			continue
		}
		if err := e.queue.Add(models.NewJobTicket(id, stepID)); err != nil {
			return created, err
		}
	}
	return created, nil
}

// ExternalData returns every external-data step a workflow has accumulated
// (spec §6 `GET /api/workflows/{id}/external-data`).
func (e *Engine) ExternalData(id models.WorkflowID) ([]*models.Step, error) {
	wf, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	var out []*models.Step
	for _, s := range wf.Steps {
		if s.Action == "external_data" {
			out = append(out, s)
		}
	}
	return out, nil
}

// readySet mirrors worker.readySet; duplicated rather than imported to
// keep httpapi from depending on worker (spec's layering keeps the edge a
// peer of the worker, both sitting on store/queue, not on each other).
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
