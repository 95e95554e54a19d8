package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/redlinehq/redline/internal/config"
	"github.com/redlinehq/redline/internal/observability"
	"github.com/redlinehq/redline/internal/revision"
	"github.com/redlinehq/redline/internal/token"
	"github.com/redlinehq/redline/internal/workflow"

	"go.uber.org/zap"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Engine       *workflow.Engine
	Gate         *token.Gate
	Revisions    *revision.Service
	Checks       observability.ReadinessChecks
	Authenticate func(http.Handler) http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics bypass authentication.
// Shared-link routes carry their credential in the URL, so they skip the
// session authenticator and resolve the token gate inside the handler.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(Recovery(deps.Logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if deps.Config.Observability.Tracing.Enabled {
		r.Use(observability.TracingMiddleware)
	}
	if deps.Config.Observability.Metrics.Enabled && deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Checks))
	if deps.Config.Observability.Metrics.Enabled {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	h := &handler{
		engine:    deps.Engine,
		gate:      deps.Gate,
		revisions: deps.Revisions,
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	// Owner routes: session-authenticated, always Party A.
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(deps.Logger))

		r.Post("/api/documents", h.createDraft)
		r.Get("/api/documents/{documentId}", h.getDocument)
		r.Patch("/api/documents/{documentId}", h.editDraft)
		r.Post("/api/documents/{documentId}/share", h.share)
		r.Post("/api/documents/{documentId}/submit", h.ownerSubmit)
		r.Post("/api/documents/{documentId}/request-changes", h.requestChanges)
		r.Post("/api/documents/{documentId}/approve", h.approve)
		r.Post("/api/documents/{documentId}/void", h.void)
		r.Get("/api/documents/{documentId}/revisions", h.listRevisions)
		r.Get("/api/documents/{documentId}/render", h.renderDocument)
		r.Post("/api/revisions/{revisionId}/comments", h.addComment)
	})

	// Shared-link routes: the token in the path is the credential.
	r.Group(func(r chi.Router) {
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(deps.Logger))

		r.Get("/api/shared/{token}", h.sharedView)
		r.Post("/api/shared/{token}/submit", h.sharedSubmit)
		r.Post("/api/shared/{token}/sign", h.sharedSign)
	})

	return r
}
