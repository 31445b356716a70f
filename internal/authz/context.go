package authz

import (
	"context"
	"net/http"
)

type stateContextKey struct{}

// ContextWithState stores the resolved state in ctx.
func ContextWithState(ctx context.Context, st State) context.Context {
	return context.WithValue(ctx, stateContextKey{}, st)
}

// StateFromContext extracts the resolved state from ctx.
func StateFromContext(ctx context.Context) (State, bool) {
	st, ok := ctx.Value(stateContextKey{}).(State)
	return st, ok
}

// FromRequest returns the state placed by Resolver. Reading it on a route not
// covered by Resolver is a wiring error and panics.
func FromRequest(r *http.Request) State {
	st, ok := StateFromContext(r.Context())
	if !ok {
		panic("authz: state read outside the resolver middleware")
	}
	return st
}
