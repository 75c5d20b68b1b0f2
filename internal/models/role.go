package models

import "strings"

// Role is a global access-control role.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleEvaluator Role = "EVALUATOR"
)

// ParseRole resolves a role name case-insensitively.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleEvaluator:
		return RoleEvaluator, true
	}
	return "", false
}

// RoleMembership answers a role lookup.
type RoleMembership struct {
	Role    Role   `json:"role"`
	Account string `json:"account"`
	Member  bool   `json:"member"`
}
