package authz

import (
	"encoding/json"
	"fmt"
)

// Capability names one boolean permission from the closed capability set.
type Capability string

// The closed capability set.
const (
	ViewClients   Capability = "view-clients"
	CreateClients Capability = "create-clients"
	EditClients   Capability = "edit-clients"
	DeleteClients Capability = "delete-clients"
	ViewSales     Capability = "view-sales"
	CreateSales   Capability = "create-sales"
	EditSales     Capability = "edit-sales"
	DeleteSales   Capability = "delete-sales"
)

// Category groups capabilities by the resource kind they govern.
type Category string

const (
	CategoryClients Category = "clients"
	CategorySales   Category = "sales"
)

// Action is the verb a capability grants on its category.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

type capabilityInfo struct {
	capability Capability
	category   Category
	action     Action
}

// capabilityTable is the single source of truth for the capability set and
// its display order.
var capabilityTable = []capabilityInfo{
	{ViewClients, CategoryClients, ActionView},
	{CreateClients, CategoryClients, ActionCreate},
	{EditClients, CategoryClients, ActionEdit},
	{DeleteClients, CategoryClients, ActionDelete},
	{ViewSales, CategorySales, ActionView},
	{CreateSales, CategorySales, ActionCreate},
	{EditSales, CategorySales, ActionEdit},
	{DeleteSales, CategorySales, ActionDelete},
}

// Categories lists the capability categories in display order.
func Categories() []Category {
	return []Category{CategoryClients, CategorySales}
}

// All returns every capability in the closed set.
func All() []Capability {
	out := make([]Capability, 0, len(capabilityTable))
	for _, info := range capabilityTable {
		out = append(out, info.capability)
	}
	return out
}

// InCategory returns the capabilities belonging to cat.
func InCategory(cat Category) []Capability {
	var out []Capability
	for _, info := range capabilityTable {
		if info.category == cat {
			out = append(out, info.capability)
		}
	}
	return out
}

func lookup(c Capability) (capabilityInfo, bool) {
	for _, info := range capabilityTable {
		if info.capability == c {
			return info, true
		}
	}
	return capabilityInfo{}, false
}

// Valid reports whether c is part of the closed set.
func (c Capability) Valid() bool {
	_, ok := lookup(c)
	return ok
}

// Category returns the category of c, or "" for unknown capabilities.
func (c Capability) Category() Category {
	info, _ := lookup(c)
	return info.category
}

// Action returns the action of c, or "" for unknown capabilities.
func (c Capability) Action() Action {
	info, _ := lookup(c)
	return info.action
}

// ParseCapability validates a capability name.
func ParseCapability(raw string) (Capability, error) {
	c := Capability(raw)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, raw)
	}
	return c, nil
}

// CapabilitySet is the fixed-shape capability mapping. Every capability of the
// closed set is a field, so a partial set cannot be represented. The zero value
// denies everything.
type CapabilitySet struct {
	ViewClients   bool `json:"view-clients"`
	CreateClients bool `json:"create-clients"`
	EditClients   bool `json:"edit-clients"`
	DeleteClients bool `json:"delete-clients"`
	ViewSales     bool `json:"view-sales"`
	CreateSales   bool `json:"create-sales"`
	EditSales     bool `json:"edit-sales"`
	DeleteSales   bool `json:"delete-sales"`
}

func (s *CapabilitySet) field(c Capability) *bool {
	switch c {
	case ViewClients:
		return &s.ViewClients
	case CreateClients:
		return &s.CreateClients
	case EditClients:
		return &s.EditClients
	case DeleteClients:
		return &s.DeleteClients
	case ViewSales:
		return &s.ViewSales
	case CreateSales:
		return &s.CreateSales
	case EditSales:
		return &s.EditSales
	case DeleteSales:
		return &s.DeleteSales
	}
	return nil
}

// Has reports whether c is granted. Unknown capabilities are never granted.
func (s CapabilitySet) Has(c Capability) bool {
	if f := s.field(c); f != nil {
		return *f
	}
	return false
}

// With returns a copy of s with c set to granted.
func (s CapabilitySet) With(c Capability, granted bool) CapabilitySet {
	if f := s.field(c); f != nil {
		*f = granted
	}
	return s
}

// Granted lists the granted capabilities in table order.
func (s CapabilitySet) Granted() []Capability {
	var out []Capability
	for _, info := range capabilityTable {
		if s.Has(info.capability) {
			out = append(out, info.capability)
		}
	}
	return out
}

// CapabilitySetOf builds a set granting exactly caps.
func CapabilitySetOf(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s = s.With(c, true)
	}
	return s
}

// UnmarshalJSON decodes a stored capability document. Keys outside the closed
// set are ignored and missing keys stay false.
func (s *CapabilitySet) UnmarshalJSON(data []byte) error {
	var raw map[string]bool
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("authz: decode capabilities: %w", err)
	}
	var out CapabilitySet
	for name, granted := range raw {
		out = out.With(Capability(name), granted)
	}
	*s = out
	return nil
}
