package authz

import (
	"log/slog"
	"net/http"

	"github.com/salesdesk/salesdesk/internal/shared"
)

// Outcome is the route guard decision.
type Outcome int

const (
	OutcomeLoading Outcome = iota
	OutcomeUnauthenticated
	OutcomeForbidden
	OutcomeAuthorized
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoading:
		return "loading"
	case OutcomeUnauthenticated:
		return "unauthenticated"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeAuthorized:
		return "authorized"
	}
	return "unknown"
}

// GuardInput is everything the route guard decides on.
type GuardInput struct {
	SessionLoading bool
	IdentityID     string
	Authz          State
	// Required is the capability the route needs; empty means authentication
	// alone suffices.
	Required Capability
}

// Decide is the route guard decision. It is a pure function of its input.
func Decide(in GuardInput) Outcome {
	if in.SessionLoading || in.Authz.Loading {
		return OutcomeLoading
	}
	if in.IdentityID == "" {
		return OutcomeUnauthenticated
	}
	// State resolved for another identity has not caught up with the session.
	if in.Authz.IdentityID != in.IdentityID {
		return OutcomeLoading
	}
	if in.Required != "" && !in.Authz.Can(in.Required) {
		return OutcomeForbidden
	}
	return OutcomeAuthorized
}

// IdentityFunc extracts the session identity of a request. loading reports
// that the session itself is still being resolved.
type IdentityFunc func(r *http.Request) (identityID string, loading bool)

// Guard applies Decide to HTTP routes.
type Guard struct {
	Identity    IdentityFunc
	LoginPath   string
	LandingPath string
	// Loading renders the loading indicator; nothing else is written while
	// authorization is unresolved.
	Loading http.Handler
	Logger  *slog.Logger
	Metrics *Metrics
}

// Authenticated requires a logged-in identity.
func (g Guard) Authenticated() func(http.Handler) http.Handler {
	return g.Require("")
}

// Require gates the wrapped handler behind authentication and, when c is not
// empty, the capability c.
func (g Guard) Require(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, sessionLoading := g.identity(r)
			state := FromRequest(r)
			outcome := Decide(GuardInput{
				SessionLoading: sessionLoading,
				IdentityID:     identity,
				Authz:          state,
				Required:       c,
			})
			g.Metrics.observeDecision(outcome)
			switch outcome {
			case OutcomeLoading:
				w.Header().Set("Cache-Control", "no-store")
				g.loading().ServeHTTP(w, r)
			case OutcomeUnauthenticated:
				http.Redirect(w, r, g.loginPath(), http.StatusSeeOther)
			case OutcomeForbidden:
				if g.Logger != nil {
					g.Logger.Debug("authz route forbidden", slog.String("path", r.URL.Path), slog.String("capability", string(c)))
				}
				if r.Method == http.MethodGet || r.Method == http.MethodHead {
					http.Redirect(w, r, g.landingPath(), http.StatusSeeOther)
					return
				}
				denied := &DeniedError{Capability: c}
				shared.RedirectWithFlash(w, r, g.landingPath(), shared.FlashError, denied.Notice())
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func (g Guard) identity(r *http.Request) (string, bool) {
	if g.Identity == nil {
		return "", false
	}
	return g.Identity(r)
}

func (g Guard) loginPath() string {
	if g.LoginPath == "" {
		return "/auth/login"
	}
	return g.LoginPath
}

func (g Guard) landingPath() string {
	if g.LandingPath == "" {
		return "/"
	}
	return g.LandingPath
}

func (g Guard) loading() http.Handler {
	if g.Loading != nil {
		return g.Loading
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<!doctype html><html><head><meta http-equiv="refresh" content="1"></head><body><p>Loading…</p></body></html>`))
	})
}
