package user

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

type (
	Module string
	Action string
)

// Modules
const (
	ModuleStudents      Module = "Students"
	ModulePayments      Module = "Payments"
	ModuleFeeAssignment Module = "Fee Assignment"
	ModuleUpgrading     Module = "Upgrading"
	ModuleUsers         Module = "Users"
)

// Actions
const (
	ActionView   Action = "View"
	ActionAdd    Action = "Add"
	ActionEdit   Action = "Edit"
	ActionDelete Action = "Delete"
)

var (
	Modules = []Module{ModuleStudents, ModulePayments, ModuleFeeAssignment, ModuleUpgrading, ModuleUsers}
	Actions = []Action{ActionView, ActionAdd, ActionEdit, ActionDelete}

	// AllCapabilities is every (module, action) pair.
	AllCapabilities = allCapabilities()
)

// Capability is the right to perform an action in a module.
type Capability struct {
	Module Module
	Action Action
}

func (c Capability) String() string { return string(c.Module) + ":" + string(c.Action) }

func (c Capability) IsValid() bool {
	return isModule(c.Module) && isAction(c.Action)
}

func isModule(m Module) bool {
	for _, mod := range Modules {
		if m == mod {
			return true
		}
	}
	return false
}

func isAction(a Action) bool {
	for _, act := range Actions {
		if a == act {
			return true
		}
	}
	return false
}

func allCapabilities() CapabilitySet {
	set := make(CapabilitySet, len(Modules)*len(Actions))
	for _, m := range Modules {
		for _, a := range Actions {
			set[Capability{Module: m, Action: a}] = struct{}{}
		}
	}
	return set
}

// CapabilitySet is a set of capabilities. Its JSON form is {"<module>": {"<action>": true}}.
type CapabilitySet map[Capability]struct{}

func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Contains reports whether every capability of other is in s.
func (s CapabilitySet) Contains(other CapabilitySet) bool {
	for c := range other {
		if !s.Has(c) {
			return false
		}
	}
	return true
}

// Invalid returns the capabilities that are not known (module, action) pairs, sorted.
func (s CapabilitySet) Invalid() []string {
	var invalid []string
	for c := range s {
		if !c.IsValid() {
			invalid = append(invalid, c.String())
		}
	}
	sort.Strings(invalid)
	return invalid
}

func (s CapabilitySet) MarshalJSON() ([]byte, error) {
	m := make(map[Module]map[Action]bool)
	for c := range s {
		if m[c.Module] == nil {
			m[c.Module] = make(map[Action]bool)
		}
		m[c.Module][c.Action] = true
	}
	return json.Marshal(m)
}

// UnmarshalJSON keeps the actions set to true. Unknown pairs are kept so that validation can report them.
func (s *CapabilitySet) UnmarshalJSON(data []byte) error {
	var m map[Module]map[Action]bool
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	set := make(CapabilitySet)
	for mod, actions := range m {
		for act, granted := range actions {
			if granted {
				set[Capability{Module: mod, Action: act}] = struct{}{}
			}
		}
	}
	*s = set
	return nil
}

// AccessKind names the variants of Access.
type AccessKind string

const (
	AccessSuperAdmin AccessKind = "super_admin"
	AccessRoleBased  AccessKind = "role_based"
)

// Access is what a user may do: either SuperAdmin or RoleBased.
type Access interface {
	Kind() AccessKind
	Allows(c Capability) bool
	// Capabilities is the effective set of capabilities.
	Capabilities() CapabilitySet
	sealed()
}

// SuperAdmin may do everything, whatever grants it may have had.
type SuperAdmin struct{}

// RoleBased may do exactly what it was granted.
type RoleBased struct {
	Grants CapabilitySet
}

var (
	_ Access = SuperAdmin{}
	_ Access = RoleBased{}
)

func (SuperAdmin) Kind() AccessKind { return AccessSuperAdmin }
func (SuperAdmin) Allows(Capability) bool { return true }
func (SuperAdmin) Capabilities() CapabilitySet { return AllCapabilities }
func (SuperAdmin) sealed() {}

func (rb RoleBased) Kind() AccessKind { return AccessRoleBased }
func (rb RoleBased) Allows(c Capability) bool { return rb.Grants.Has(c) }
func (rb RoleBased) Capabilities() CapabilitySet { return rb.Grants }
func (rb RoleBased) sealed() {}

func IsSuperAdmin(a Access) bool {
	_, ok := a.(SuperAdmin)
	return ok
}

// CanGrant reports whether actor may give target to someone: super admin access only comes from
// super admins, and nobody grants a capability they do not hold.
func CanGrant(actor, target Access) bool {
	if actor == nil || target == nil {
		return false
	}
	if IsSuperAdmin(actor) {
		return true
	}
	if IsSuperAdmin(target) {
		return false
	}
	return actor.Capabilities().Contains(target.Capabilities())
}

// AccessSpec is the JSON/storage form of Access.
type AccessSpec struct {
	Kind   AccessKind    `json:"kind" validate:"required,oneof=super_admin role_based"`
	Grants CapabilitySet `json:"grants,omitempty" validate:"capabilities"`
}

func SpecOf(a Access) AccessSpec {
	switch acc := a.(type) {
	case SuperAdmin:
		return AccessSpec{Kind: AccessSuperAdmin}
	case RoleBased:
		grants := acc.Grants
		if grants == nil {
			grants = CapabilitySet{}
		}
		return AccessSpec{Kind: AccessRoleBased, Grants: grants}
	}
	return AccessSpec{Kind: AccessRoleBased, Grants: CapabilitySet{}}
}

func (spec AccessSpec) Access() (Access, error) {
	switch spec.Kind {
	case AccessSuperAdmin:
		return SuperAdmin{}, nil
	case AccessRoleBased:
		grants := spec.Grants
		if grants == nil {
			grants = CapabilitySet{}
		}
		if invalid := grants.Invalid(); len(invalid) > 0 {
			return nil, errors.Errorf("unknown capabilities: %v", invalid)
		}
		return RoleBased{Grants: grants}, nil
	}
	return nil, errors.Errorf("unknown access kind %q", spec.Kind)
}
