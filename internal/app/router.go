package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/salesdesk/salesdesk/internal/admin"
	"github.com/salesdesk/salesdesk/internal/auth"
	"github.com/salesdesk/salesdesk/internal/authz"
	"github.com/salesdesk/salesdesk/internal/clients"
	"github.com/salesdesk/salesdesk/internal/observability"
	"github.com/salesdesk/salesdesk/internal/platform/httpx"
	"github.com/salesdesk/salesdesk/internal/sales"
	"github.com/salesdesk/salesdesk/internal/shared"
	"github.com/salesdesk/salesdesk/internal/view"
	"github.com/salesdesk/salesdesk/jobs"
	"github.com/salesdesk/salesdesk/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics

	Resolver authz.Resolver
	Guard    authz.Guard

	AuthHandler    *auth.Handler
	ClientsHandler *clients.Handler
	SalesHandler   *sales.Handler
	AdminHandler   *admin.Handler
	ReportHandler  *report.Handler
	JobHandler     *jobs.Handler

	Dashboard Dashboard
}

// NewRouter constructs the chi.Router with SalesDesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.ReportHandler != nil {
		r.Route("/report", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	staticMaxAge := time.Hour
	if params.Config != nil && params.Config.StaticMaxAge > 0 {
		staticMaxAge = params.Config.StaticMaxAge
	}
	mountStatic(r, params.Logger, staticMaxAge)

	// Everything below sees the authorization state of its session.
	r.Group(func(r chi.Router) {
		r.Use(params.Resolver.Middleware)

		pages := pageHandler{
			logger:    params.Logger,
			templates: params.Templates,
			csrf:      params.CSRFManager,
			dashboard: params.Dashboard,
		}
		r.With(params.Guard.Authenticated()).Get("/", pages.home)
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.ClientsHandler != nil {
			r.Route("/clients", params.ClientsHandler.MountRoutes)
		}
		if params.SalesHandler != nil {
			r.Route("/sales", params.SalesHandler.MountRoutes)
		}
		if params.AdminHandler != nil {
			r.Route("/admin", params.AdminHandler.MountRoutes)
		}
		r.Route("/api", authz.APIHandler{Guard: params.Guard}.MountRoutes)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
		})
	})

	return r
}
