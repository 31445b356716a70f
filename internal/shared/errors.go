package shared

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeError carries a message that may be shown to end users.
type UserSafeError struct {
	Message string
	Err     error
}

func (e *UserSafeError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *UserSafeError) Unwrap() error { return e.Err }

// NewUserSafeError wraps err with a user-facing message.
func NewUserSafeError(message string, err error) error {
	return &UserSafeError{Message: message, Err: err}
}

// UserSafeMessage converts err into text that is safe to render. Internal
// errors collapse into a generic message.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var safe *UserSafeError
	if errors.As(err, &safe) && strings.TrimSpace(safe.Message) != "" {
		return safe.Message
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	}
	return "Something went wrong. Please try again."
}
