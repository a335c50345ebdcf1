package recovery

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

func newHarness(t *testing.T) (*store.FileStore, *queue.FileQueue) {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir(), testFactory())
	require.NoError(t, err)
	q, err := queue.NewFileQueue(t.TempDir()+"/queue.json", testFactory())
	require.NoError(t, err)
	return s, q
}

func TestRecoveryResetsRunningStepToPending(t *testing.T) {
	s, q := newHarness(t)

	id := models.NewWorkflowID()
	a := &models.Step{ID: models.NewStepID(), Name: "a", Action: "noop", Status: models.StepStatusRunning}
	wf := &models.Workflow{ID: id, Name: "wf", Status: models.WorkflowStatusRunning, Steps: []*models.Step{a}}
	require.NoError(t, s.Write(id, wf))

	m := New(s, q, testFactory())
	report, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, 1, report.StepsReset)
	require.Equal(t, 1, report.WorkflowsReset)

	reloaded, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, models.WorkflowStatusPending, reloaded.Status)
	require.Equal(t, models.StepStatusWaitingForDependency, reloaded.StepByID(a.ID).Status)
	require.True(t, q.Contains(id, a.ID))
}

func TestRecoveryLeavesTerminalWorkflowsAlone(t *testing.T) {
	s, q := newHarness(t)

	id := models.NewWorkflowID()
	a := &models.Step{
		ID: models.NewStepID(), Name: "a", Action: "noop",
		Status: models.StepStatusCompleted, Outputs: map[string]interface{}{"x": 1},
	}
	wf := &models.Workflow{ID: id, Name: "wf", Status: models.WorkflowStatusCompleted, Steps: []*models.Step{a}}
	require.NoError(t, s.Write(id, wf))

	m := New(s, q, testFactory())
	report, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, 0, report.StepsReset)
	require.Equal(t, 0, report.WorkflowsReset)
}

// TestRecoveryIsIdempotent exercises a step blocked on a failed dependency:
// it can never become ready, so once reset to PENDING a second pass finds
// nothing left to touch.
func TestRecoveryIsIdempotent(t *testing.T) {
	s, q := newHarness(t)

	id := models.NewWorkflowID()
	a := &models.Step{ID: models.NewStepID(), Name: "a", Action: "noop", Status: models.StepStatusFailed, Error: "boom"}
	b := &models.Step{
		ID: models.NewStepID(), Name: "b", Action: "noop",
		Status: models.StepStatusWaitingForDependency, Dependencies: []models.StepID{a.ID},
	}
	wf := &models.Workflow{ID: id, Name: "wf", Status: models.WorkflowStatusRunning, Steps: []*models.Step{a, b}}
	require.NoError(t, s.Write(id, wf))

	m := New(s, q, testFactory())
	first, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, 1, first.StepsReset)
	require.Equal(t, 0, q.Size())

	second, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, 0, second.StepsReset)
	require.Equal(t, 0, q.Size())
}

// TestRecoveryFlipsReadyStepToWaitingForDependency confirms a step that
// becomes ready as a result of recovery has its ticket enqueued and its
// status flipped to WAITING_FOR_DEPENDENCY together, never left PENDING
// with a ticket already queued.
func TestRecoveryFlipsReadyStepToWaitingForDependency(t *testing.T) {
	s, q := newHarness(t)

	id := models.NewWorkflowID()
	a := &models.Step{ID: models.NewStepID(), Name: "a", Action: "noop", Status: models.StepStatusWaitingForDependency}
	wf := &models.Workflow{ID: id, Name: "wf", Status: models.WorkflowStatusRunning, Steps: []*models.Step{a}}
	require.NoError(t, s.Write(id, wf))

	m := New(s, q, testFactory())
	_, err := m.Run()
	require.NoError(t, err)

	reloaded, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, models.StepStatusWaitingForDependency, reloaded.StepByID(a.ID).Status)
	require.True(t, q.Contains(id, a.ID))
	require.Equal(t, 1, q.Size())
}

func TestRecoveryDropsTicketsForMissingWorkflows(t *testing.T) {
	s, q := newHarness(t)
	require.NoError(t, q.Add(models.NewJobTicket(models.NewWorkflowID(), models.NewStepID())))

	m := New(s, q, testFactory())
	report, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, 1, report.TicketsDropped)
	require.Equal(t, 0, q.Size())
}

func TestRecoveryDropsTicketsForTerminalSteps(t *testing.T) {
	s, q := newHarness(t)

	id := models.NewWorkflowID()
	a := &models.Step{
		ID: models.NewStepID(), Name: "a", Action: "noop",
		Status: models.StepStatusCompleted, Outputs: map[string]interface{}{"x": 1},
	}
	wf := &models.Workflow{ID: id, Name: "wf", Status: models.WorkflowStatusCompleted, Steps: []*models.Step{a}}
	require.NoError(t, s.Write(id, wf))
	require.NoError(t, q.Add(models.NewJobTicket(id, a.ID)))

	m := New(s, q, testFactory())
	report, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, 1, report.TicketsDropped)
	require.Equal(t, 0, q.Size())
}
