package authz

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrDenied is matched by every *DeniedError.
var ErrDenied = errors.New("authz: permission denied")

// DeniedError reports a mutation refused before reaching the data layer.
type DeniedError struct {
	// Capability is empty when the admin flag was required.
	Capability Capability
}

func (e *DeniedError) Error() string {
	if e.Capability == "" {
		return "authz: admin required"
	}
	return "authz: missing capability " + string(e.Capability)
}

// Is makes errors.Is(err, ErrDenied) hold.
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// Notice is the user-facing denial message.
func (e *DeniedError) Notice() string {
	if e.Capability == "" {
		return "Only administrators can do that."
	}
	return fmt.Sprintf("You do not have permission to %s %s.", e.Capability.Action(), e.Capability.Category())
}

// Authorize re-checks c immediately before a mutation runs. States that are
// loading or failed to load grant nothing.
func Authorize(st State, c Capability) error {
	if st.Loading || !st.Can(c) {
		return &DeniedError{Capability: c}
	}
	return nil
}

// AuthorizeAdmin requires the admin flag.
func AuthorizeAdmin(st State) error {
	if st.Loading || !st.IsAdmin {
		return &DeniedError{}
	}
	return nil
}

// Mode chooses how a trigger renders when its capability is missing.
type Mode int

const (
	// DisableDenied renders a denied trigger visibly disabled.
	DisableDenied Mode = iota
	// HideDenied omits a denied trigger, used for "create" affordances.
	HideDenied
)

// Trigger is the render decision for one action trigger.
type Trigger struct {
	Capability Capability
	Visible    bool
	Enabled    bool
	Label      string
	Title      string
}

// Present decides how the trigger for c renders under st.
func Present(st State, c Capability, mode Mode) Trigger {
	t := Trigger{Capability: c, Label: ActionLabel(c)}
	if Authorize(st, c) == nil {
		t.Visible = true
		t.Enabled = true
		t.Title = t.Label
		return t
	}
	t.Visible = mode != HideDenied
	t.Title = "No permission to " + strings.ToLower(t.Label)
	return t
}

// ActionLabel is the display label of a capability's action, e.g. "Edit".
func ActionLabel(c Capability) string {
	return title(string(c.Action()))
}

// CategoryLabel is the display label of a category, e.g. "Clients".
func CategoryLabel(cat Category) string {
	return title(string(cat))
}

// Casers keep state between calls, so each call gets its own.
func title(s string) string {
	return cases.Title(language.English).String(s)
}
