package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/buildbeaver/workflow-engine/internal/gerror"
	"github.com/buildbeaver/workflow-engine/internal/logger"
	"github.com/buildbeaver/workflow-engine/internal/models"
)

// WorkflowAPI implements the handlers for every /api/workflows route
// (spec §6), grounded on the *API handler types (e.g. BuildAPI, JobAPI)
// that each wrap one services.* dependency and embed APIBase.
type WorkflowAPI struct {
	apiBase
	engine *Engine
}

func NewWorkflowAPI(engine *Engine, logFactory logger.LogFactory) *WorkflowAPI {
	return &WorkflowAPI{apiBase: apiBase{Log: logFactory("WorkflowAPI")}, engine: engine}
}

func (a *WorkflowAPI) List(w http.ResponseWriter, r *http.Request) {
	workflows, err := a.engine.List()
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.OK(w, r, workflows)
}

func (a *WorkflowAPI) Get(w http.ResponseWriter, r *http.Request) {
	id := workflowIDFromRequest(r)
	wf, err := a.engine.Get(id)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.OK(w, r, wf)
}

func (a *WorkflowAPI) Create(w http.ResponseWriter, r *http.Request) {
	var wf models.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		a.Error(w, r, gerror.NewErrValidation("error decoding workflow: "+err.Error()))
		return
	}
	if err := a.engine.Create(&wf); err != nil {
		a.Error(w, r, err)
		return
	}
	a.Created(w, r, &wf)
}

type createFromTemplateRequest struct {
	Template string                 `json:"template"`
	Name     string                 `json:"name"`
	Params   map[string]interface{} `json:"params"`
}

func (a *WorkflowAPI) CreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req createFromTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.Error(w, r, gerror.NewErrValidation("error decoding request: "+err.Error()))
		return
	}
	if req.Template == "" {
		a.Error(w, r, gerror.NewErrValidation("error template must be set"))
		return
	}
	if req.Name == "" {
		req.Name = req.Template
	}
	wf, err := a.engine.CreateFromTemplate(req.Template, req.Name, req.Params)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.Created(w, r, wf)
}

func (a *WorkflowAPI) Stop(w http.ResponseWriter, r *http.Request) {
	id := workflowIDFromRequest(r)
	if err := a.engine.Stop(id); err != nil {
		a.Error(w, r, err)
		return
	}
	a.Accepted(w, r, map[string]string{"status": "stopping"})
}

func (a *WorkflowAPI) Resume(w http.ResponseWriter, r *http.Request) {
	id := workflowIDFromRequest(r)
	if err := a.engine.Resume(id); err != nil {
		a.Error(w, r, err)
		return
	}
	a.Accepted(w, r, map[string]string{"status": "resuming"})
}

type externalDataRequest struct {
	Name    string                 `json:"name"`
	Payload map[string]interface{} `json:"payload"`
}

func (a *WorkflowAPI) IngestExternalData(w http.ResponseWriter, r *http.Request) {
	id := workflowIDFromRequest(r)
	var req externalDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.Error(w, r, gerror.NewErrValidation("error decoding request: "+err.Error()))
		return
	}
	if req.Name == "" {
		a.Error(w, r, gerror.NewErrValidation("error name must be set"))
		return
	}
	step, err := a.engine.IngestExternalData(id, req.Name, req.Payload)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.Created(w, r, step)
}

func (a *WorkflowAPI) GetExternalData(w http.ResponseWriter, r *http.Request) {
	id := workflowIDFromRequest(r)
	steps, err := a.engine.ExternalData(id)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.OK(w, r, steps)
}

// HealthAPI implements GET /api/health.
type HealthAPI struct {
	apiBase
}

func NewHealthAPI(logFactory logger.LogFactory) *HealthAPI {
	return &HealthAPI{apiBase: apiBase{Log: logFactory("HealthAPI")}}
}

func (a *HealthAPI) Get(w http.ResponseWriter, r *http.Request) {
	a.OK(w, r, map[string]string{"status": "ok"})
}

func workflowIDFromRequest(r *http.Request) models.WorkflowID {
	return models.WorkflowIDFromString(chi.URLParam(r, "workflow_id"))
}
