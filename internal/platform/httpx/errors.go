// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors understood by RespondError. Callers wrap them with context.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("service unavailable")
)

var problems = []struct {
	err    error
	status int
	title  string
}{
	{ErrNotFound, http.StatusNotFound, "Not Found"},
	{ErrForbidden, http.StatusForbidden, "Forbidden"},
	{ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{ErrUnavailable, http.StatusServiceUnavailable, "Unavailable"},
}

// RespondError writes err as an RFC7807 problem. Errors that wrap none of the
// sentinels become a 500 without detail.
func RespondError(w http.ResponseWriter, err error) {
	for _, p := range problems {
		if errors.Is(err, p.err) {
			Problem(w, p.status, p.title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
