package authz

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/salesdesk/salesdesk/internal/platform/httpx"
	"github.com/salesdesk/salesdesk/internal/shared"
)

// SessionIdentity reads the identity from the request session. Sessions are
// loaded synchronously by the session middleware, so they are never loading
// once a handler runs.
func SessionIdentity(r *http.Request) (string, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return "", false
	}
	return sess.User(), false
}

// Resolver feeds the session identity into the session's Store and places the
// resulting State in the request context.
type Resolver struct {
	Registry *Registry
	// SettleWait bounds how long a request waits for a pending fetch before
	// the guard renders the loading page. The fetch itself keeps running.
	SettleWait time.Duration
	Logger     *slog.Logger
}

// Middleware implements the resolver as chi middleware.
func (res Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess := shared.SessionFromContext(ctx)
		if sess == nil || res.Registry == nil {
			next.ServeHTTP(w, r.WithContext(ContextWithState(ctx, State{})))
			return
		}
		identity := sess.User()
		if identity == "" {
			// Anonymous sessions get no store. One left from a logout is
			// cleared so a pending fetch cannot land.
			if store, ok := res.Registry.Lookup(sess.ID); ok {
				store.SetIdentity(ctx, "")
			}
			next.ServeHTTP(w, r.WithContext(ContextWithState(ctx, State{})))
			return
		}
		store := res.Registry.Store(sess.ID)
		store.SetIdentity(ctx, identity)
		st := store.State()
		if st.Loading && res.SettleWait > 0 {
			waitCtx, cancel := context.WithTimeout(ctx, res.SettleWait)
			st = store.Wait(waitCtx)
			cancel()
		}
		next.ServeHTTP(w, r.WithContext(ContextWithState(ctx, st)))
	})
}

// APIHandler exposes the caller's authorization state as JSON.
type APIHandler struct {
	Guard Guard
}

type capabilityView struct {
	Name     Capability `json:"name"`
	Category Category   `json:"category"`
	Action   Action     `json:"action"`
	Granted  bool       `json:"granted"`
}

type stateView struct {
	State
	Catalog []capabilityView `json:"catalog"`
}

// MountRoutes registers the API routes.
func (h APIHandler) MountRoutes(r chi.Router) {
	r.Get("/me/authorization", h.me)
}

func (h APIHandler) me(w http.ResponseWriter, r *http.Request) {
	identity, _ := h.Guard.identity(r)
	st := FromRequest(r)
	switch Decide(GuardInput{IdentityID: identity, Authz: st}) {
	case OutcomeUnauthenticated:
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	case OutcomeLoading:
		httpx.Accepted(w, time.Second, st)
		return
	}
	view := stateView{State: st}
	for _, c := range All() {
		view.Catalog = append(view.Catalog, capabilityView{
			Name:     c,
			Category: c.Category(),
			Action:   c.Action(),
			Granted:  st.Can(c),
		})
	}
	httpx.JSON(w, http.StatusOK, view)
}
