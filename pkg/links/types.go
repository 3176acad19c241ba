package links

import (
	"time"

	"github.com/foliohq/folio/pkg/authz"
	"github.com/foliohq/folio/pkg/workspace"
)

// PublicLink is a shareable token granting viewer access to one
// resource, recursively for folders.
type PublicLink struct {
	ID             int64                  `json:"id"`
	Token          string                 `json:"token"`
	ResourceType   workspace.ResourceType `json:"resourceType"`
	ResourceID     int64                  `json:"resourceId"`
	OrganizationID int64                  `json:"organizationId"`
	CreatedBy      int64                  `json:"createdBy"`
	CreatedAt      time.Time              `json:"createdAt"`
	DisabledAt     *time.Time             `json:"disabledAt,omitempty"`
}

// Disabled reports whether the link has been turned off
func (l *PublicLink) Disabled() bool {
	return l.DisabledAt != nil
}

// Validation is the outcome of checking a token against a resource.
// Role is always viewer on success and AllowsAI is always false; a
// link can never escalate past that regardless of grant state.
type Validation struct {
	HasAccess bool       `json:"hasAccess"`
	Role      authz.Role `json:"role,omitempty"`
	AllowsAI  bool       `json:"allowsAi"`
	Reason    string     `json:"reason"`
}

// Validation reasons.
const (
	ReasonUnknownToken     = "unknown_token"
	ReasonLinkDisabled     = "link_disabled"
	ReasonResourceNotFound = "resource_not_found"
	ReasonOutsideLink      = "outside_link_scope"
	ReasonLinkAccess       = "public_link"
)

func denied(reason string) Validation {
	return Validation{HasAccess: false, AllowsAI: false, Reason: reason}
}

func granted() Validation {
	return Validation{HasAccess: true, Role: authz.RoleViewer, AllowsAI: false, Reason: ReasonLinkAccess}
}
