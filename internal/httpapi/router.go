package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/buildbeaver/workflow-engine/internal/logger"
)

// NewRouter builds the full chi.Router for the HTTP Edge (spec §6),
// grounded on AppAPIRouter's chain of standard chi middleware, a
// permissive CORS policy scoped under /api, and one chi.Route block per
// resource.
func NewRouter(workflow *WorkflowAPI, health *HealthAPI, logFactory logger.LogFactory) chi.Router {
	log := logFactory("Router")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))

		r.Get("/health", health.Get)

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", workflow.List)
			r.Post("/", workflow.Create)
			r.Post("/from-template", workflow.CreateFromTemplate)

			r.Route("/{workflow_id}", func(r chi.Router) {
				r.Get("/", workflow.Get)
				r.Post("/stop", workflow.Stop)
				r.Post("/resume", workflow.Resume)
				r.Route("/external-data", func(r chi.Router) {
					r.Get("/", workflow.GetExternalData)
					r.Post("/", workflow.IngestExternalData)
				})
			})
		})
	})
	return r
}

// requestLogger is a minimal chi-style middleware logging every request's
// method, path, and duration at debug level through this package's logger
// rather than chi's own logrus-free default logger.
func requestLogger(log logger.Log) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.WithFields(logger.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			}).Debugf("handled request")
		})
	}
}
