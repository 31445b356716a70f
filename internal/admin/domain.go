package admin

import (
	"time"

	"github.com/salesdesk/salesdesk/internal/authz"
)

// Member is one authorization record joined with the user it belongs to.
type Member struct {
	IdentityID   string
	Email        string
	Name         string
	IsAdmin      bool
	Capabilities authz.CapabilitySet
	CreatedAt    time.Time
}
