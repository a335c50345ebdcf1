package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ResourceKind identifies the type of resource an ID belongs to, so that
// IDs from different resource types can never be confused for one another.
type ResourceKind string

const (
	WorkflowResourceKind ResourceKind = "workflow"
	StepResourceKind     ResourceKind = "step"
)

// ResourceID is a kind-tagged, globally unique identifier. The kind is
// kept alongside the id; String and MarshalJSON emit the bare id only.
type ResourceID struct {
	kind ResourceKind
	id   string
}

func NewResourceID(kind ResourceKind) ResourceID {
	return ResourceID{kind: kind, id: uuid.New().String()}
}

func ParseResourceID(kind ResourceKind, str string) (ResourceID, error) {
	if str == "" {
		return ResourceID{}, fmt.Errorf("error id must not be empty")
	}
	return ResourceID{kind: kind, id: str}, nil
}

func (r ResourceID) Valid() bool {
	return r.id != ""
}

func (r ResourceID) Kind() ResourceKind {
	return r.kind
}

func (r ResourceID) String() string {
	return r.id
}

func (r ResourceID) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.id)
}

func (r *ResourceID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("error unmarshalling resource id: %w", err)
	}
	r.id = s
	return nil
}

func (r ResourceID) Value() (driver.Value, error) {
	return r.id, nil
}

// WorkflowID uniquely identifies a Workflow.
type WorkflowID struct {
	ResourceID
}

func NewWorkflowID() WorkflowID {
	return WorkflowID{ResourceID: NewResourceID(WorkflowResourceKind)}
}

func WorkflowIDFromString(id string) WorkflowID {
	rid, _ := ParseResourceID(WorkflowResourceKind, id)
	return WorkflowID{ResourceID: rid}
}

// StepID uniquely identifies a Step within its parent Workflow.
type StepID struct {
	ResourceID
}

func NewStepID() StepID {
	return StepID{ResourceID: NewResourceID(StepResourceKind)}
}

func StepIDFromString(id string) StepID {
	rid, _ := ParseResourceID(StepResourceKind, id)
	return StepID{ResourceID: rid}
}

func (w WorkflowID) MarshalJSON() ([]byte, error) {
	return w.ResourceID.MarshalJSON()
}

func (w *WorkflowID) UnmarshalJSON(data []byte) error {
	if err := w.ResourceID.UnmarshalJSON(data); err != nil {
		return err
	}
	w.kind = WorkflowResourceKind
	return nil
}

func (s StepID) MarshalJSON() ([]byte, error) {
	return s.ResourceID.MarshalJSON()
}

func (s *StepID) UnmarshalJSON(data []byte) error {
	if err := s.ResourceID.UnmarshalJSON(data); err != nil {
		return err
	}
	s.kind = StepResourceKind
	return nil
}

