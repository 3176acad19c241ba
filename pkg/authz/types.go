package authz

import (
	"fmt"
	"time"
)

// Role is the access level a user can hold on a resource.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// Level returns the role's rank for comparisons. Unknown roles rank
// below viewer so malformed data never widens access.
func (r Role) Level() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// Valid checks if the role is a known value
func (r Role) Valid() bool {
	return r.Level() > 0
}

// AtLeast reports whether the role is at least as powerful as other
func (r Role) AtLeast(other Role) bool {
	return r.Level() >= other.Level()
}

// ParseRole converts a string to a Role
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// MaxRole returns the more powerful of two roles
func MaxRole(a, b Role) Role {
	if b.Level() > a.Level() {
		return b
	}
	return a
}

// GranteeType identifies who a permission rule applies to.
type GranteeType string

const (
	GranteeUser GranteeType = "user"
	GranteeTeam GranteeType = "team"
)

// Valid checks if the grantee type is a known value
func (g GranteeType) Valid() bool {
	return g == GranteeUser || g == GranteeTeam
}

// RuleType distinguishes grants from denies.
type RuleType string

const (
	RuleGrant RuleType = "grant"
	RuleDeny  RuleType = "deny"
)

// Valid checks if the rule type is a known value
func (rt RuleType) Valid() bool {
	return rt == RuleGrant || rt == RuleDeny
}

// PermissionRule is a single grant or deny row attached directly to a
// resource. At most one rule exists per (resource, grantee) pair.
type PermissionRule struct {
	ID           int64       `json:"id"`
	ResourceType string      `json:"resourceType"`
	ResourceID   int64       `json:"resourceId"`
	GranteeType  GranteeType `json:"granteeType"`
	GranteeID    int64       `json:"granteeId"`
	Type         RuleType    `json:"type"`
	Role         Role        `json:"role"`
	CreatedBy    int64       `json:"createdBy"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// Decision is the outcome of resolving a user's access to a resource.
// When Allowed is false, Role is empty.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Role    Role   `json:"role,omitempty"`
	Reason  string `json:"reason"`
}

// Decision reasons, stable for API consumers and audit records.
const (
	ReasonResourceNotFound   = "resource_not_found"
	ReasonResourceDeleted    = "resource_deleted"
	ReasonOrphaned           = "orphaned"
	ReasonSuperAdmin         = "super_admin"
	ReasonDenied             = "explicit_deny"
	ReasonOwner              = "team_ownership"
	ReasonDirectGrant        = "direct_grant"
	ReasonInherited          = "inherited_grant"
	ReasonInheritedOwner     = "inherited_ownership"
	ReasonInheritanceStopped = "inheritance_stopped"
	ReasonNoGrant            = "no_grant"
)

// Deny returns a negative decision with the given reason
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Allow returns a positive decision with the given role and reason
func Allow(role Role, reason string) Decision {
	return Decision{Allowed: true, Role: role, Reason: reason}
}
