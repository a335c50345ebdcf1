package models

// JobTicket is a pair of (workflow, step) identifiers representing pending
// work on the Job Queue (spec §3, glossary: Ticket). The queue may hold
// duplicates; the Worker's idempotency gate is the authoritative
// deduplicator (spec §4.2).
type JobTicket struct {
	WorkflowID      WorkflowID `json:"workflow_id"`
	StepID          StepID     `json:"node_id"`
	RedeliveryCount int        `json:"redelivery_count,omitempty"`
}

func NewJobTicket(workflowID WorkflowID, stepID StepID) JobTicket {
	return JobTicket{WorkflowID: workflowID, StepID: stepID}
}

// Same reports whether two tickets refer to the same (workflow, step) pair,
// ignoring RedeliveryCount — used for duplicate suppression (spec §4.2).
func (t JobTicket) Same(other JobTicket) bool {
	return t.WorkflowID == other.WorkflowID && t.StepID == other.StepID
}
