package authz

import (
	"errors"
	"time"
)

var (
	// ErrNoRecord indicates the target identity has no authorization record.
	ErrNoRecord = errors.New("authz: no authorization record")
	// ErrUnknownCapability indicates a name outside the closed capability set.
	ErrUnknownCapability = errors.New("authz: unknown capability")
)

// Record is the persisted authorization record of one identity.
type Record struct {
	IdentityID   string        `json:"identity_id"`
	IsAdmin      bool          `json:"is_admin"`
	Capabilities CapabilitySet `json:"capabilities"`
	CreatedAt    time.Time     `json:"created_at"`
}

// State is the derived authorization state exposed to guards and actions.
// The zero value is the logged-out default: settled, not admin, nothing
// granted.
type State struct {
	IdentityID   string        `json:"identity_id,omitempty"`
	Loading      bool          `json:"loading"`
	IsAdmin      bool          `json:"is_admin"`
	Capabilities CapabilitySet `json:"capabilities"`
	Err          string        `json:"error,omitempty"`
}

// Can reports whether the state grants c. Loading and failed states never
// grant anything because their capability set is the zero value.
func (s State) Can(c Capability) bool {
	return s.Capabilities.Has(c)
}

func loadingState(identityID string) State {
	return State{IdentityID: identityID, Loading: true}
}

func stateFromRecord(identityID string, rec Record) State {
	return State{
		IdentityID:   identityID,
		IsAdmin:      rec.IsAdmin,
		Capabilities: rec.Capabilities,
	}
}
