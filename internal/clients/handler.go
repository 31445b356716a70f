package clients

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/salesdesk/salesdesk/internal/authz"
	"github.com/salesdesk/salesdesk/internal/shared"
	"github.com/salesdesk/salesdesk/internal/view"
)

// Handler serves the client pages.
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

// MountRoutes registers client routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ViewClients))
		r.Get("/", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.CreateClients))
		r.Get("/new", h.showNew)
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.EditClients))
		r.Get("/{id}/edit", h.showEdit)
		r.Post("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.DeleteClients))
		r.Post("/{id}/delete", h.delete)
	})
}

type formErrors map[string]string

type formPage struct {
	ClientID string
	Form     Input
	Errors   formErrors
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	st := authz.FromRequest(r)
	items, page, err := h.service.List(r.Context(), st, shared.PageFromQuery(r.URL.Query()))
	if err != nil {
		h.fail(w, r, "/", err)
		return
	}
	h.render(w, r, "pages/clients_list.html", "Clients", map[string]any{
		"Clients":    items,
		"Pagination": page,
	}, http.StatusOK)
}

func (h *Handler) showNew(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/client_form.html", "New client", formPage{Errors: formErrors{}}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := inputFromForm(r)
	_, err := h.service.Create(r.Context(), authz.FromRequest(r), in)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			h.render(w, r, "pages/client_form.html", "New client", formPage{Form: in, Errors: verr.Fields}, http.StatusBadRequest)
			return
		}
		h.fail(w, r, "/clients", err)
		return
	}
	shared.RedirectWithFlash(w, r, "/clients", shared.FlashSuccess, "Client created.")
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.service.GetForEdit(r.Context(), authz.FromRequest(r), id)
	if err != nil {
		h.fail(w, r, "/clients", err)
		return
	}
	h.render(w, r, "pages/client_form.html", "Edit client", formPage{ClientID: c.ID, Form: InputOf(c), Errors: formErrors{}}, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := inputFromForm(r)
	_, err := h.service.Update(r.Context(), authz.FromRequest(r), id, in)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			h.render(w, r, "pages/client_form.html", "Edit client", formPage{ClientID: id, Form: in, Errors: verr.Fields}, http.StatusBadRequest)
			return
		}
		h.fail(w, r, "/clients", err)
		return
	}
	shared.RedirectWithFlash(w, r, "/clients", shared.FlashSuccess, "Client updated.")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), authz.FromRequest(r), id); err != nil {
		h.fail(w, r, "/clients", err)
		return
	}
	shared.RedirectWithFlash(w, r, "/clients", shared.FlashSuccess, "Client deleted.")
}

// fail turns a service error into a flash message on the page at back.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, back string, err error) {
	var denied *authz.DeniedError
	switch {
	case errors.As(err, &denied):
		shared.RedirectWithFlash(w, r, back, shared.FlashError, denied.Notice())
	case errors.Is(err, ErrNotFound):
		shared.RedirectWithFlash(w, r, "/clients", shared.FlashWarning, "That client no longer exists.")
	case errors.Is(err, ErrInUse):
		shared.RedirectWithFlash(w, r, back, shared.FlashWarning, "This client has sales and cannot be deleted.")
	default:
		h.logger.Error("client request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		shared.RedirectWithFlash(w, r, back, shared.FlashError, shared.UserSafeMessage(err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, tmpl, title string, data any, status int) {
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, tmpl, view.Page(r, h.csrf, title, data)); err != nil {
		h.logger.Error("template render failed", slog.String("template", tmpl), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func inputFromForm(r *http.Request) Input {
	return Input{
		Name:      r.PostFormValue("name"),
		Email:     r.PostFormValue("email"),
		Phone:     r.PostFormValue("phone"),
		Instagram: r.PostFormValue("instagram"),
		Notes:     r.PostFormValue("notes"),
	}
}
