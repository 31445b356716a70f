package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/salesdesk/salesdesk/internal/authz"
	"github.com/salesdesk/salesdesk/internal/shared"
	"github.com/salesdesk/salesdesk/internal/view"
)

const usersPath = "/admin/users"

// Handler serves the admin management view.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     authz.Guard
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard authz.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, guard: guard}
}

// MountRoutes registers admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Authenticated())
		r.Use(h.requireAdmin)
		r.Get("/users", h.list)
		r.Post("/users/{id}/admin", h.setAdmin)
		r.Post("/users/{id}/capabilities/{capability}", h.setCapability)
	})
}

// requireAdmin sends non-admins back to the landing page.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if st := authz.FromRequest(r); !st.IsAdmin {
			shared.RedirectWithFlash(w, r, "/", shared.FlashError, (&authz.DeniedError{}).Notice())
			return
		}
		next.ServeHTTP(w, r)
	})
}

type memberRow struct {
	Member
	Self bool
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	st := authz.FromRequest(r)
	members, err := h.service.Members(r.Context(), st)
	if err != nil {
		h.fail(w, r, "/", err)
		return
	}
	rows := make([]memberRow, 0, len(members))
	for _, m := range members {
		rows = append(rows, memberRow{Member: m, Self: m.IdentityID == st.IdentityID})
	}
	if err := h.templates.Render(w, "pages/admin_users.html", view.Page(r, h.csrf, "User permissions", map[string]any{"Members": rows})); err != nil {
		h.logger.Error("template render failed", slog.String("template", "pages/admin_users.html"), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) setAdmin(w http.ResponseWriter, r *http.Request) {
	value, ok := formValue(r)
	if !ok {
		shared.RedirectWithFlash(w, r, usersPath, shared.FlashError, "Invalid request.")
		return
	}
	target := chi.URLParam(r, "id")
	rec, err := h.service.SetAdmin(r.Context(), authz.FromRequest(r), target, value)
	if err != nil {
		h.fail(w, r, usersPath, err)
		return
	}
	msg := "Admin access removed."
	if rec.IsAdmin {
		msg = "Admin access granted."
	}
	shared.RedirectWithFlash(w, r, usersPath, shared.FlashSuccess, msg)
}

func (h *Handler) setCapability(w http.ResponseWriter, r *http.Request) {
	value, ok := formValue(r)
	if !ok {
		shared.RedirectWithFlash(w, r, usersPath, shared.FlashError, "Invalid request.")
		return
	}
	c, err := authz.ParseCapability(chi.URLParam(r, "capability"))
	if err != nil {
		h.fail(w, r, usersPath, err)
		return
	}
	target := chi.URLParam(r, "id")
	rec, err := h.service.SetCapability(r.Context(), authz.FromRequest(r), target, c, value)
	if err != nil {
		h.fail(w, r, usersPath, err)
		return
	}
	verb := "revoked"
	if rec.Capabilities.Has(c) {
		verb = "granted"
	}
	shared.RedirectWithFlash(w, r, usersPath, shared.FlashSuccess,
		"Permission to "+string(c.Action())+" "+string(c.Category())+" "+verb+".")
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, back string, err error) {
	var denied *authz.DeniedError
	switch {
	case errors.As(err, &denied):
		shared.RedirectWithFlash(w, r, "/", shared.FlashError, denied.Notice())
	case errors.Is(err, authz.ErrNoRecord):
		shared.RedirectWithFlash(w, r, back, shared.FlashError, "That user has no authorization record.")
	case errors.Is(err, authz.ErrUnknownCapability):
		shared.RedirectWithFlash(w, r, back, shared.FlashError, "Unknown permission.")
	default:
		h.logger.Error("admin request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		shared.RedirectWithFlash(w, r, back, shared.FlashError, "The change could not be saved. Try again.")
	}
}

// formValue reads the explicit target value of a toggle.
func formValue(r *http.Request) (bool, bool) {
	if err := r.ParseForm(); err != nil {
		return false, false
	}
	v, err := strconv.ParseBool(r.PostFormValue("value"))
	if err != nil {
		return false, false
	}
	return v, true
}
