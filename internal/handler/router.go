package handler

import (
	"net/http"

	"github.com/dandantas/renewer/pkg/middleware"
)

// Router handles HTTP routing
type Router struct {
	renewalHandler    *RenewalHandler
	healthHandler     *HealthHandler
	automationHandler *AutomationHandler
	corsConfig        middleware.CORSConfig
}

// NewRouter creates a new router
func NewRouter(
	renewalHandler *RenewalHandler,
	healthHandler *HealthHandler,
	automationHandler *AutomationHandler,
	corsConfig middleware.CORSConfig,
) *Router {
	return &Router{
		renewalHandler:    renewalHandler,
		healthHandler:     healthHandler,
		automationHandler: automationHandler,
		corsConfig:        corsConfig,
	}
}

// Handler returns the configured HTTP handler with middleware
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("GET /health", rt.healthHandler.Health)
	mux.HandleFunc("GET /ready", rt.healthHandler.Ready)

	// Renewal queue
	mux.HandleFunc("GET /api/v1/renewals/queue", rt.renewalHandler.Queue)
	mux.HandleFunc("DELETE /api/v1/renewals/queue", rt.renewalHandler.ClearQueue)
	mux.HandleFunc("POST /api/v1/renewals/{system_id}/force", rt.renewalHandler.ForceRenew)

	// Durable task handoff
	mux.HandleFunc("GET /api/v1/renewals/tasks", rt.renewalHandler.ListTasks)
	mux.HandleFunc("POST /api/v1/renewals/tasks/claim", rt.renewalHandler.ClaimTask)
	mux.HandleFunc("POST /api/v1/renewals/tasks/{id}/complete", rt.renewalHandler.CompleteTask)

	// Portal session
	mux.HandleFunc("POST /api/v1/automation/challenge/reset", rt.automationHandler.ResetChallenge)

	// Apply middleware (CORS first to handle preflight requests)
	handler := middleware.CORS(rt.corsConfig)(mux)
	handler = middleware.Recovery(handler)
	handler = middleware.Logging(handler)
	handler = middleware.TraceID(handler)

	return handler
}
