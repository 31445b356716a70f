package sales

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/salesdesk/salesdesk/internal/authz"
	"github.com/salesdesk/salesdesk/internal/clients"
	"github.com/salesdesk/salesdesk/internal/shared"
	"github.com/salesdesk/salesdesk/internal/view"
)

// ClientLister supplies the client picker of the new-sale form.
type ClientLister interface {
	Options(ctx context.Context, st authz.State) ([]clients.Option, error)
}

// PDFRenderer converts an HTML document to PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Handler serves the sales pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	clients   ClientLister
	pdf       PDFRenderer
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     authz.Guard
	now       func() time.Time
}

// NewHandler builds Handler instance.
func NewHandler(
	logger *slog.Logger,
	service *Service,
	clientLister ClientLister,
	pdf PDFRenderer,
	templates *view.Engine,
	csrf *shared.CSRFManager,
	guard authz.Guard,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		clients:   clientLister,
		pdf:       pdf,
		templates: templates,
		csrf:      csrf,
		guard:     guard,
		now:       time.Now,
	}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.CreateSales))
		r.Get("/new", h.showNew)
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.ViewSales))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Get("/{id}/receipt", h.receipt)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.EditSales))
		r.Post("/{id}/complete", h.complete)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(authz.DeleteSales))
		r.Post("/{id}/delete", h.delete)
	})
}

type formErrors map[string]string

type saleForm struct {
	ClientID  string
	SaleDate  string
	Instagram string
	Notes     string
}

type formPage struct {
	Form    saleForm
	Clients []clients.Option
	Errors  formErrors
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status := ParseStatus(r.URL.Query().Get("status"))
	items, page, err := h.service.List(r.Context(), authz.FromRequest(r), status, shared.PageFromQuery(r.URL.Query()))
	if err != nil {
		h.fail(w, r, "/", err)
		return
	}
	h.render(w, r, "pages/sales_list.html", "Sales", map[string]any{
		"Sales":      items,
		"Status":     string(status),
		"Pagination": page,
	}, http.StatusOK)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	sale, err := h.service.Get(r.Context(), authz.FromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "/sales", err)
		return
	}
	h.render(w, r, "pages/sale_detail.html", "Sale", map[string]any{"Sale": sale}, http.StatusOK)
}

func (h *Handler) showNew(w http.ResponseWriter, r *http.Request) {
	form := saleForm{SaleDate: h.now().Format(DateLayout), ClientID: r.URL.Query().Get("client")}
	h.renderForm(w, r, form, formErrors{}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := saleForm{
		ClientID:  r.PostFormValue("client_id"),
		SaleDate:  r.PostFormValue("sale_date"),
		Instagram: r.PostFormValue("instagram"),
		Notes:     r.PostFormValue("notes"),
	}
	in := Input{ClientID: form.ClientID, Instagram: form.Instagram, Notes: form.Notes}
	if d, err := time.Parse(DateLayout, form.SaleDate); err == nil {
		in.SaleDate = d
	}
	sale, err := h.service.Create(r.Context(), authz.FromRequest(r), in)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			h.renderForm(w, r, form, verr.Fields, http.StatusBadRequest)
			return
		}
		h.fail(w, r, "/sales", err)
		return
	}
	shared.RedirectWithFlash(w, r, "/sales/"+sale.ID, shared.FlashSuccess, "Sale recorded.")
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	back := backTo(r, "/sales/"+id)
	if _, err := h.service.Complete(r.Context(), authz.FromRequest(r), id); err != nil {
		h.fail(w, r, back, err)
		return
	}
	shared.RedirectWithFlash(w, r, back, shared.FlashSuccess, "Sale marked as completed.")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), authz.FromRequest(r), id); err != nil {
		h.fail(w, r, backTo(r, "/sales"), err)
		return
	}
	shared.RedirectWithFlash(w, r, "/sales", shared.FlashSuccess, "Sale deleted.")
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sale, err := h.service.Get(r.Context(), authz.FromRequest(r), id)
	if err != nil {
		h.fail(w, r, "/sales", err)
		return
	}
	html, err := h.templates.RenderString("pages/sale_receipt.html", map[string]any{
		"Sale":        sale,
		"GeneratedAt": h.now().UTC(),
	})
	if err != nil {
		h.logger.Error("render receipt html", slog.String("sale_id", id), slog.Any("error", err))
		shared.RedirectWithFlash(w, r, "/sales/"+id, shared.FlashError, "The receipt could not be generated.")
		return
	}
	pdf, err := h.pdf.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("render receipt pdf", slog.String("sale_id", id), slog.Any("error", err))
		shared.RedirectWithFlash(w, r, "/sales/"+id, shared.FlashError, "The receipt service is unavailable. Try again later.")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="receipt-`+sale.ID+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// fail turns a service error into a flash message on the page at back.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, back string, err error) {
	var denied *authz.DeniedError
	switch {
	case errors.As(err, &denied):
		shared.RedirectWithFlash(w, r, back, shared.FlashError, denied.Notice())
	case errors.Is(err, ErrNotFound):
		shared.RedirectWithFlash(w, r, "/sales", shared.FlashWarning, "That sale no longer exists.")
	case errors.Is(err, ErrAlreadyCompleted):
		shared.RedirectWithFlash(w, r, back, shared.FlashWarning, "This sale is already completed.")
	default:
		h.logger.Error("sale request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		shared.RedirectWithFlash(w, r, back, shared.FlashError, shared.UserSafeMessage(err))
	}
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, form saleForm, errs formErrors, status int) {
	options, err := h.clients.Options(r.Context(), authz.FromRequest(r))
	if err != nil {
		h.logger.Error("load client options", slog.Any("error", err))
	}
	h.render(w, r, "pages/sale_form.html", "New sale", formPage{Form: form, Clients: options, Errors: errs}, status)
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

// backTo returns the posted "back" path when it is a local path.
func backTo(r *http.Request, fallback string) string {
	back := r.PostFormValue("back")
	if len(back) > 1 && back[0] == '/' && back[1] != '/' && back[1] != '\\' {
		return back
	}
	return fallback
}
