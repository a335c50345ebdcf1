package worker

import "github.com/buildbeaver/workflow-engine/internal/models"

// dependentsOf builds a reverse adjacency map: for each step ID, the steps
// that directly depend on it. Used to walk forward through the DAG when
// cascading a stop_workflow failure (spec §4.4 step 9, §8 property 7).
func dependentsOf(steps []*models.Step) map[models.StepID][]models.StepID {
	dependents := make(map[models.StepID][]models.StepID, len(steps))
	for _, s := range steps {
		for _, dep := range s.Dependencies {
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}
	return dependents
}

// cascadeStop walks every transitive successor of failedStepID and, if it
// is still PENDING or WAITING_FOR_DEPENDENCY, marks it STOPPED (spec §4.4
// step 9, §8 property 7).
func cascadeStop(wf *models.Workflow, failedStepID models.StepID) {
	dependents := dependentsOf(wf.Steps)
	byID := make(map[models.StepID]*models.Step, len(wf.Steps))
	for _, s := range wf.Steps {
		byID[s.ID] = s
	}

	visited := make(map[models.StepID]bool)
	queue := append([]models.StepID(nil), dependents[failedStepID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		s, ok := byID[id]
		if !ok {
			continue
		}
		if s.Status == models.StepStatusPending || s.Status == models.StepStatusWaitingForDependency {
			s.Status = models.StepStatusStopped
			s.AppendLog("stopped: upstream step failed with on_failure=stop_workflow")
		}
		queue = append(queue, dependents[id]...)
	}
}

// dependenciesSatisfied reports whether every dependency of step is COMPLETED.
func dependenciesSatisfied(wf *models.Workflow, step *models.Step) bool {
	for _, depID := range step.Dependencies {
		dep := wf.StepByID(depID)
		if dep == nil || dep.Status != models.StepStatusCompleted {
			return false
		}
	}
	return true
}

// readySet returns every PENDING step whose dependencies are now all
// COMPLETED (spec §4.4 step 10).
func readySet(wf *models.Workflow) []*models.Step {
	var ready []*models.Step
	for _, s := range wf.Steps {
		if s.Status == models.StepStatusPending && dependenciesSatisfied(wf, s) {
			ready = append(ready, s)
		}
	}
	return ready
}
