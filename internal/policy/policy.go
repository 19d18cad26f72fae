// Package policy maps (role, action) pairs to allow/deny decisions. It is a
// pure lookup: services consult it before any mutation, on top of the route
// level role middleware.
package policy

import (
	"budgetflow/internal/model"

	"github.com/google/uuid"
)

// Action identifies a role-gated command.
type Action string

const (
	ActionCreateRequest   Action = "requests.create"
	ActionListAllRequests Action = "requests.read_all"
	ActionDecideRequest   Action = "requests.decide" // approve, reject, delete, transfer proof
	ActionManageAccounts  Action = "users.manage"
)

// Identity is the resolved acting subject, produced by the auth middleware
// and passed explicitly into every command. The zero value is anonymous.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

// IsAdmin reports whether the subject holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == model.RoleAdmin
}

var grants = map[string]map[Action]bool{
	model.RoleAdmin: {
		ActionCreateRequest:   true,
		ActionListAllRequests: true,
		ActionDecideRequest:   true,
		ActionManageAccounts:  true,
	},
	model.RoleEmployee: {
		ActionCreateRequest: true,
	},
}

// Allow reports whether the given role may perform the action. Unknown roles
// are denied everything.
func Allow(role string, action Action) bool {
	return grants[role][action]
}
