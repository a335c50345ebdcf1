package httpapi

import (
	"fmt"

	"github.com/buildbeaver/workflow-engine/internal/models"
)

// Template is a named, parameterized workflow shape the edge can
// instantiate on demand (spec §6 `POST /api/workflows/from-template`). The
// spec leaves the template format unstated; this is the Open Question
// decision: a template is a fixed DAG shape plus a step-name -> param-key
// substitution list, resolved against the caller-supplied params at
// instantiation time.
type Template struct {
	Name  string
	Steps []TemplateStep
}

// TemplateStep is one node of a Template's DAG, referring to its
// dependencies by name rather than ID since IDs don't exist until instantiation.
type TemplateStep struct {
	Name         string
	Action       string
	DependsOn    []string
	OnFailure    models.OnFailurePolicy
	ParamSources []string // keys looked up in the caller's params and copied into the step's Params under the same key
}

// Instantiate builds a fresh Workflow from the template, minting new step
// IDs and resolving name-based dependencies into ID-based ones.
func (t *Template) Instantiate(workflowName string, params map[string]interface{}) *models.Workflow {
	idByName := make(map[string]models.StepID, len(t.Steps))
	for _, ts := range t.Steps {
		idByName[ts.Name] = models.NewStepID()
	}

	steps := make([]*models.Step, 0, len(t.Steps))
	for _, ts := range t.Steps {
		deps := make([]models.StepID, 0, len(ts.DependsOn))
		for _, dep := range ts.DependsOn {
			deps = append(deps, idByName[dep])
		}
		stepParams := map[string]interface{}{}
		for _, key := range ts.ParamSources {
			if v, ok := params[key]; ok {
				stepParams[key] = v
			}
		}
		steps = append(steps, &models.Step{
			ID:           idByName[ts.Name],
			Name:         ts.Name,
			Action:       ts.Action,
			Status:       models.StepStatusPending,
			Dependencies: deps,
			Params:       stepParams,
			OnFailure:    ts.OnFailure,
		})
	}

	return &models.Workflow{
		ID:     models.NewWorkflowID(),
		Name:   workflowName,
		Status: models.WorkflowStatusPending,
		Steps:  steps,
	}
}

// TemplateRegistry is a fixed, in-memory lookup of named templates,
// grounded on the adapter.Registry pattern (name -> behavior, populated at
// startup, read-only thereafter).
type TemplateRegistry struct {
	templates map[string]*Template
}

func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{templates: make(map[string]*Template)}
}

func (r *TemplateRegistry) Register(t *Template) error {
	if t.Name == "" {
		return fmt.Errorf("error template name must be set")
	}
	r.templates[t.Name] = t
	return nil
}

func (r *TemplateRegistry) Lookup(name string) (*Template, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// DefaultTemplates returns the built-in templates shipped with the core:
// a linear extract-transform-load chain, the same shape as spec §8's
// linear scenario.
func DefaultTemplates() []*Template {
	return []*Template{
		{
			Name: "etl",
			Steps: []TemplateStep{
				{Name: "extract", Action: "http.fetch", ParamSources: []string{"source_url"}},
				{Name: "transform", Action: "openai.chat", DependsOn: []string{"extract"}, ParamSources: []string{"prompt"}},
				{Name: "load", Action: "http.fetch", DependsOn: []string{"transform"}, ParamSources: []string{"destination_url"}},
			},
		},
	}
}
