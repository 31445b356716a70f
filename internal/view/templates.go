package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/salesdesk/salesdesk/internal/authz"
	"github.com/salesdesk/salesdesk/internal/shared"
	"github.com/salesdesk/salesdesk/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates. Authz is the
// request's authorization snapshot; layouts use it to build navigation.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Authz       authz.State
	Data        any
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	tpl, err := template.New("root").Funcs(funcMap()).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"formatDay": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		},
		"can": func(st authz.State, c authz.Capability) bool {
			return st.Can(c)
		},
		// trigger presents a gated control; mode is "disable" or "hide".
		"trigger": func(st authz.State, c authz.Capability, mode string) authz.Trigger {
			m := authz.DisableDenied
			if mode == "hide" {
				m = authz.HideDenied
			}
			return authz.Present(st, c, m)
		},
		"categories":    authz.Categories,
		"inCategory":    authz.InCategory,
		"actionLabel":   authz.ActionLabel,
		"categoryLabel": authz.CategoryLabel,
	}
}

// Render executes a named template with TemplateData. The page is rendered
// into a buffer first so a template error never leaves a half-written page.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

// RenderString executes a template into a string, for documents that are
// handed to another renderer such as the PDF service.
func (e *Engine) RenderString(name string, data any) (string, error) {
	if e == nil {
		return "", fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Page builds TemplateData for r, consuming the pending flash message.
func Page(r *http.Request, csrf *shared.CSRFManager, title string, data any) TemplateData {
	sess := shared.SessionFromContext(r.Context())
	var token string
	if csrf != nil {
		token, _ = csrf.EnsureToken(r.Context(), sess)
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	st, _ := authz.StateFromContext(r.Context())
	return TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Authz:       st,
		Data:        data,
	}
}
