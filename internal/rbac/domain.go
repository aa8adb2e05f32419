package rbac

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/bookkeeping/internal/ledger"
)

// Role represents a high-level permission grouping.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleSpectator  Role = "spectator"
	RoleMember     Role = "member"
)

// ParseRole normalises a stored role name.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch r {
	case RoleAdmin, RoleAccountant, RoleSpectator, RoleMember:
		return r, nil
	default:
		return "", fmt.Errorf("rbac: unknown role %q", raw)
	}
}

// Action is a domain action a principal may attempt.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionClose  Action = "close"
	ActionDelete Action = "delete"
	ActionAdmin  Action = "admin"
)

// Actions lists every action in display order.
func Actions() []Action {
	return []Action{ActionRead, ActionCreate, ActionEdit, ActionClose, ActionDelete, ActionAdmin}
}

// Principal describes the acting user.
type Principal struct {
	UserID int64
	Roles  []Role
}

// Has reports whether the principal carries role.
func (p Principal) Has(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Elevated reports whether the principal may change ledger data.
func (p Principal) Elevated() bool {
	return p.Has(RoleAdmin) || p.Has(RoleAccountant)
}

// Request is the subject of an authorization decision. EntityID names the target;
// for create actions ParentID names where the new entity goes. Soft marks a delete
// that only moves the entity to or from the trash. Reverse selects the undoing
// direction of close and trash: reopen and untrash.
type Request struct {
	Action   Action
	Kind     ledger.Kind
	EntityID int64
	ParentID int64
	Soft     bool
	Reverse  bool
}

// Decision is the outcome of Decide. Reason is nil when Allowed.
type Decision struct {
	Allowed bool
	Reason  error
}

// Err returns the denial reason, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return d.Reason
}

// Denial reasons. Both wrap ledger.ErrNotAllowed like the lifecycle guards do.
var (
	ErrRoleRequired = fmt.Errorf("%w: role does not permit this action", ledger.ErrNotAllowed)
	ErrNotSpectator = fmt.Errorf("%w: not a spectator", ledger.ErrNotAllowed)
	ErrNoRule       = fmt.Errorf("%w: no rule for this action", ledger.ErrNotAllowed)
)
