package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
	"github.com/pkg/errors"

	"github.com/buildbeaver/workflow-engine/internal/gerror"
	"github.com/buildbeaver/workflow-engine/internal/logger"
)

// ErrorDocument is the standard error body every handler renders on
// failure (spec §7: the edge turns a gerror.Error into a status code and a
// message, never leaking internal details to external audiences).
type ErrorDocument struct {
	Code    gerror.Code `json:"code"`
	Message string      `json:"message"`
}

// apiBase holds the rendering helpers every handler group embeds, grounded
// on APIBase's JSON/Error methods over go-chi/render.StatusCtxKey,
// trimmed of authn/authz since the core has none of its own.
type apiBase struct {
	logger.Log
}

// JSON marshals v with HTML-escaping, matching APIBase.JSON.
func (a *apiBase) JSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		a.Error(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if status, ok := r.Context().Value(render.StatusCtxKey).(int); ok {
		w.WriteHeader(status)
	}
	w.Write(buf.Bytes())
}

// Error logs the error and writes it as a sanitized ErrorDocument, mapping
// any gerror.Error to its HTTP status; anything else becomes a 500 (spec §7e).
func (a *apiBase) Error(w http.ResponseWriter, r *http.Request, err error) {
	a.Warnf("error handling request: %v", err)

	var gErr gerror.Error
	if !errors.As(err, &gErr) || gErr.Audience() != gerror.AudienceExternal {
		gErr = gerror.NewErrInternal()
	}
	doc := &ErrorDocument{Code: gErr.Code(), Message: gErr.Message()}
	r = r.WithContext(context.WithValue(r.Context(), render.StatusCtxKey, gErr.HTTPStatusCode()))
	a.JSON(w, r, doc)
}

// OK writes v with a 200 status.
func (a *apiBase) OK(w http.ResponseWriter, r *http.Request, v interface{}) {
	r = r.WithContext(context.WithValue(r.Context(), render.StatusCtxKey, http.StatusOK))
	a.JSON(w, r, v)
}

// Created writes v with a 201 status.
func (a *apiBase) Created(w http.ResponseWriter, r *http.Request, v interface{}) {
	r = r.WithContext(context.WithValue(r.Context(), render.StatusCtxKey, http.StatusCreated))
	a.JSON(w, r, v)
}

// Accepted writes v with a 202 status, used for fire-and-forget mutations
// like stop/resume where the effect is applied asynchronously by the worker.
func (a *apiBase) Accepted(w http.ResponseWriter, r *http.Request, v interface{}) {
	r = r.WithContext(context.WithValue(r.Context(), render.StatusCtxKey, http.StatusAccepted))
	a.JSON(w, r, v)
}
