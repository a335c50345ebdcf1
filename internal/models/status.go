package models

// WorkflowStatus reflects the aggregate lifecycle of a Workflow (spec §3, §4.4 step 11).
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "PENDING"
	WorkflowStatusRunning   WorkflowStatus = "RUNNING"
	WorkflowStatusCompleted WorkflowStatus = "COMPLETED"
	WorkflowStatusFailed    WorkflowStatus = "FAILED"
	WorkflowStatusStopped   WorkflowStatus = "STOPPED"
)

var workflowStatuses = map[WorkflowStatus]struct{}{
	WorkflowStatusPending:   {},
	WorkflowStatusRunning:   {},
	WorkflowStatusCompleted: {},
	WorkflowStatusFailed:    {},
	WorkflowStatusStopped:   {},
}

func (s WorkflowStatus) Valid() bool {
	_, ok := workflowStatuses[s]
	return ok
}

func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusStopped
}

// StepStatus reflects where a Step is in its per-step state machine (spec §4.4).
type StepStatus string

const (
	StepStatusPending                StepStatus = "PENDING"
	StepStatusWaitingForDependency   StepStatus = "WAITING_FOR_DEPENDENCY"
	StepStatusRunning                StepStatus = "RUNNING"
	StepStatusCompleted              StepStatus = "COMPLETED"
	StepStatusFailed                 StepStatus = "FAILED"
	StepStatusStopped                StepStatus = "STOPPED"
)

var stepStatuses = map[StepStatus]struct{}{
	StepStatusPending:              {},
	StepStatusWaitingForDependency: {},
	StepStatusRunning:              {},
	StepStatusCompleted:            {},
	StepStatusFailed:               {},
	StepStatusStopped:              {},
}

func (s StepStatus) Valid() bool {
	_, ok := stepStatuses[s]
	return ok
}

// Terminal returns true for statuses immune to dequeue (glossary: Terminal state).
func (s StepStatus) Terminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusStopped
}

// OnFailurePolicy determines whether a step failure cascades to its successors.
type OnFailurePolicy string

const (
	OnFailureStopWorkflow OnFailurePolicy = "stop_workflow"
	OnFailureContinue     OnFailurePolicy = "continue"
)

func (p OnFailurePolicy) Valid() bool {
	return p == OnFailureStopWorkflow || p == OnFailureContinue
}
