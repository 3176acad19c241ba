package audit

import (
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypePermissionGrant  EventType = "authz.permission_grant"
	EventTypePermissionRevoke EventType = "authz.permission_revoke"
	EventTypeAccessDenied     EventType = "authz.access_denied"

	// Workspace events
	EventTypeResourceCreate EventType = "workspace.resource_create"
	EventTypeOwnerReassign  EventType = "workspace.owner_reassign"
	EventTypeResourceDelete EventType = "workspace.resource_delete"

	// Public link events
	EventTypeLinkCreate  EventType = "link.create"
	EventTypeLinkDisable EventType = "link.disable"
	EventTypeLinkPurge   EventType = "link.purge"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID         *int64 `json:"user_id,omitempty"`
	OrganizationID *int64 `json:"organization_id,omitempty"`

	// Resource information
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event with the timestamp set
func NewEvent(eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
	}
}

// WithActor sets the acting user and organization
func (e *Event) WithActor(userID, orgID int64) *Event {
	e.UserID = &userID
	e.OrganizationID = &orgID
	return e
}

// WithResource sets the target resource
func (e *Event) WithResource(resourceType, resourceID string) *Event {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithMessage sets the human-readable message
func (e *Event) WithMessage(message string) *Event {
	e.Message = message
	return e
}

// WithMetadata attaches structured details
func (e *Event) WithMetadata(metadata map[string]interface{}) *Event {
	e.Metadata = metadata
	return e
}
