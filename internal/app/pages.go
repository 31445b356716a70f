package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/salesdesk/salesdesk/internal/authz"
	"github.com/salesdesk/salesdesk/internal/clients"
	"github.com/salesdesk/salesdesk/internal/sales"
	"github.com/salesdesk/salesdesk/internal/shared"
	"github.com/salesdesk/salesdesk/internal/view"
)

// Dashboard supplies the counters of the landing page.
type Dashboard interface {
	Stats(ctx context.Context, st authz.State) (DashboardStats, error)
}

// DashboardStats holds the landing page counters. Counters the caller may
// not view stay zero.
type DashboardStats struct {
	ClientCount int
	OpenSales   int
}

// ServiceDashboard counts through the client and sales services, so the
// counters obey the same capability checks as the list pages.
type ServiceDashboard struct {
	Clients *clients.Service
	Sales   *sales.Service
}

// Stats implements Dashboard.
func (d ServiceDashboard) Stats(ctx context.Context, st authz.State) (DashboardStats, error) {
	var stats DashboardStats
	if d.Clients != nil && st.Can(authz.ViewClients) {
		_, page, err := d.Clients.List(ctx, st, 1)
		if err != nil {
			return stats, err
		}
		stats.ClientCount = page.Total
	}
	if d.Sales != nil && st.Can(authz.ViewSales) {
		_, page, err := d.Sales.List(ctx, st, sales.StatusOpen, 1)
		if err != nil {
			return stats, err
		}
		stats.OpenSales = page.Total
	}
	return stats, nil
}

type pageHandler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	dashboard Dashboard
}

func (p pageHandler) home(w http.ResponseWriter, r *http.Request) {
	var stats DashboardStats
	if p.dashboard != nil {
		var err error
		stats, err = p.dashboard.Stats(r.Context(), authz.FromRequest(r))
		if err != nil {
			p.logger.Error("load dashboard stats", slog.Any("error", err))
		}
	}
	if err := p.templates.Render(w, "pages/home.html", view.Page(r, p.csrf, "Dashboard", stats)); err != nil {
		p.logger.Error("render home", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// LoadingPage renders the placeholder shown while a session's authorization
// record is still being fetched. The page refreshes itself.
func LoadingPage(templates *view.Engine, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		if err := templates.Render(w, "pages/loading.html", view.TemplateData{Title: "Loading"}); err != nil {
			logger.Error("render loading page", slog.Any("error", err))
			http.Error(w, "Loading…", http.StatusServiceUnavailable)
		}
	})
}
