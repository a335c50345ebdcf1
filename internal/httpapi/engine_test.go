package httpapi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/workflow-engine/internal/logger"
	"github.com/buildbeaver/workflow-engine/internal/models"
	"github.com/buildbeaver/workflow-engine/internal/queue"
	"github.com/buildbeaver/workflow-engine/internal/store"
)

func testFactory() logger.LogFactory {
	return logger.NewFactory(logger.ParseLevel("error"))
}

func newTestEngine(t *testing.T) (*Engine, *store.FileStore, *queue.FileQueue) {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir(), testFactory())
	require.NoError(t, err)
	q, err := queue.NewFileQueue(t.TempDir()+"/queue.json", testFactory())
	require.NoError(t, err)
	templates := NewTemplateRegistry()
	for _, tmpl := range DefaultTemplates() {
		require.NoError(t, templates.Register(tmpl))
	}
	return NewEngine(s, q, templates, testFactory()), s, q
}

func newTestStep(action string, deps ...models.StepID) *models.Step {
	return &models.Step{ID: models.NewStepID(), Name: action, Action: action, Dependencies: deps}
}

func TestEngineCreateEnqueuesRootSteps(t *testing.T) {
	e, _, q := newTestEngine(t)

	a := newTestStep("noop")
	b := newTestStep("noop", a.ID)
	wf := &models.Workflow{ID: models.NewWorkflowID(), Name: "wf", Steps: []*models.Step{a, b}}

	require.NoError(t, e.Create(wf))
	require.Equal(t, 1, q.Size())
	require.True(t, q.Contains(wf.ID, a.ID))
	require.False(t, q.Contains(wf.ID, b.ID))
}

func TestEngineCreateRejectsDuplicateID(t *testing.T) {
	e, _, _ := newTestEngine(t)

	wf := &models.Workflow{ID: models.NewWorkflowID(), Name: "wf", Steps: []*models.Step{newTestStep("noop")}}
	require.NoError(t, e.Create(wf))

	dup := &models.Workflow{ID: wf.ID, Name: "wf2", Steps: []*models.Step{newTestStep("noop")}}
	err := e.Create(dup)
	require.Error(t, err)
}

func TestEngineCreateFromTemplateInstantiatesDAG(t *testing.T) {
	e, _, q := newTestEngine(t)

	wf, err := e.CreateFromTemplate("etl", "nightly-etl", map[string]interface{}{"source_url": "https://example.com"})
	require.NoError(t, err)
	require.Len(t, wf.Steps, 3)
	require.Equal(t, 1, q.Size())
}

func TestEngineCreateFromTemplateUnknownNameFails(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.CreateFromTemplate("does-not-exist", "x", nil)
	require.Error(t, err)
}

// TestEngineStopMarksRunningStepStopped covers half of S5: Stop reaches a
// RUNNING step and marks it STOPPED so the worker's finishStep will discard
// the in-flight adapter's eventual outcome.
func TestEngineStopMarksRunningStepStopped(t *testing.T) {
	e, s, _ := newTestEngine(t)

	a := newTestStep("noop")
	a.Status = models.StepStatusRunning
	wf := &models.Workflow{ID: models.NewWorkflowID(), Name: "wf", Status: models.WorkflowStatusRunning, Steps: []*models.Step{a}}
	require.NoError(t, s.Write(wf.ID, wf))

	require.NoError(t, e.Stop(wf.ID))

	final, err := s.Get(wf.ID)
	require.NoError(t, err)
	require.Equal(t, models.WorkflowStatusStopped, final.Status)
	require.Equal(t, models.StepStatusStopped, final.StepByID(a.ID).Status)
}

// TestEngineResumeRevertsStoppedSteps covers the rest of S5: Resume reverts
// STOPPED steps to PENDING and re-enqueues whatever is immediately ready.
func TestEngineResumeRevertsStoppedSteps(t *testing.T) {
	e, s, q := newTestEngine(t)

	a := newTestStep("noop")
	a.Status = models.StepStatusStopped
	b := newTestStep("noop", a.ID)
	b.Status = models.StepStatusStopped
	wf := &models.Workflow{ID: models.NewWorkflowID(), Name: "wf", Status: models.WorkflowStatusStopped, Steps: []*models.Step{a, b}}
	require.NoError(t, s.Write(wf.ID, wf))

	require.NoError(t, e.Resume(wf.ID))

	final, err := s.Get(wf.ID)
	require.NoError(t, err)
	require.Equal(t, models.StepStatusPending, final.StepByID(a.ID).Status)
	require.Equal(t, models.StepStatusPending, final.StepByID(b.ID).Status)
	require.True(t, q.Contains(wf.ID, a.ID))
	require.False(t, q.Contains(wf.ID, b.ID))
}

func TestEngineIngestExternalDataCreatesCompletedStep(t *testing.T) {
	e, _, q := newTestEngine(t)

	root := newTestStep("noop")
	wf := &models.Workflow{ID: models.NewWorkflowID(), Name: "wf", Steps: []*models.Step{root}}
	require.NoError(t, e.Create(wf))
	q.Next() // drain the initial root ticket so we can see what ingest enqueues

	_, err := e.IngestExternalData(wf.ID, "webhook", map[string]interface{}{"event": "payment.completed"})
	require.NoError(t, err)

	data, err := e.ExternalData(wf.ID)
	require.NoError(t, err)
	require.Len(t, data, 1)
	require.Equal(t, models.StepStatusCompleted, data[0].Status)
	require.Equal(t, "payment.completed", data[0].Outputs["event"])
}

// TestEngineIngestExternalDataFlipsSuccessorToWaitingForDependency covers a
// successor that becomes ready as a direct result of the ingested step
// completing its dependencies: its ticket is enqueued and its status moves
// to WAITING_FOR_DEPENDENCY in the same update, never left PENDING with a
// ticket already queued.
func TestEngineIngestExternalDataFlipsSuccessorToWaitingForDependency(t *testing.T) {
	e, s, q := newTestEngine(t)

	// successor depends on an already-COMPLETED step rather than the
	// ingested one itself, since the ingested step's ID isn't known until
	// after IngestExternalData runs; readySet only cares that deps are met.
	dep := newTestStep("noop")
	dep.Status = models.StepStatusCompleted
	successor := newTestStep("noop", dep.ID)
	wf := &models.Workflow{ID: models.NewWorkflowID(), Name: "wf", Steps: []*models.Step{dep, successor}}
	require.NoError(t, s.Write(wf.ID, wf))

	_, err := e.IngestExternalData(wf.ID, "webhook", map[string]interface{}{"event": "payment.completed"})
	require.NoError(t, err)

	final, err := s.Get(wf.ID)
	require.NoError(t, err)
	require.Equal(t, models.StepStatusWaitingForDependency, final.StepByID(successor.ID).Status)
	require.True(t, q.Contains(wf.ID, successor.ID))
}
