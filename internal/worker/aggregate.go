package worker

import "github.com/buildbeaver/workflow-engine/internal/models"

// recomputeAggregates rebuilds the workflow-level metrics, cost breakdown
// and progress, and determines terminal status, per spec §4.4 step 11 and
// §3's terminal-coherence invariant.
func recomputeAggregates(wf *models.Workflow) {
	var totalTokens int64
	var totalCost float64
	breakdown := models.CostBreakdown{}

	pendingCount := 0
	anyFailure := false

	for _, s := range wf.Steps {
		if s.ExecMetrics != nil {
			totalTokens += s.ExecMetrics.Tokens
			totalCost += s.ExecMetrics.Cost
			if s.ExecMetrics.Model != "" {
				breakdown[s.ExecMetrics.Model] += s.ExecMetrics.Cost
			}
		}
		switch s.Status {
		case models.StepStatusPending, models.StepStatusRunning, models.StepStatusWaitingForDependency:
			pendingCount++
		}
		if s.Status == models.StepStatusFailed {
			anyFailure = true
		}
	}

	if totalTokens > 0 || totalCost > 0 {
		wf.Metrics = &models.Metrics{TotalTokens: totalTokens, TotalCost: totalCost}
	}
	if len(breakdown) > 0 {
		wf.CostBreak = breakdown
	}

	if pendingCount == 0 {
		if anyFailure {
			wf.Status = models.WorkflowStatusFailed
		} else {
			wf.Status = models.WorkflowStatusCompleted
		}
	}

	wf.RecomputeProgress()
}
