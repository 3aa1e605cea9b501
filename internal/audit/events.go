package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event.
type EventType string

// Event types.
const (
	EventTypeAuthentication EventType = "authentication"
	EventTypeAdministrative EventType = "administrative"
	EventTypeSecurity       EventType = "security"
)

// Action represents the action being audited.
type Action string

// Actions.
const (
	ActionKeyGenerate       Action = "key_generate"
	ActionKeyRevoke         Action = "key_revoke"
	ActionAuthenticate      Action = "authenticate"
	ActionRateLimitExceeded Action = "rate_limit_exceeded"
)

// Outcome represents the outcome of an audited action.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeError   Outcome = "error"
	OutcomeDenied  Outcome = "denied"
)

// Event represents an audit event. It never carries a raw credential.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Action    Action    `json:"action"`
	Outcome   Outcome   `json:"outcome"`

	// Subject is the credential acting or being acted upon.
	Subject *Subject `json:"subject,omitempty"`

	// Resource is the operation being accessed.
	Resource *Resource `json:"resource,omitempty"`

	// Reason is the internal failure classification.
	Reason string `json:"reason,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
	TraceID  string                 `json:"trace_id,omitempty"`
}

// Subject represents the credential involved in an event.
type Subject struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	IPAddress   string   `json:"ip_address,omitempty"`
	UserAgent   string   `json:"user_agent,omitempty"`
	AuthMethod  string   `json:"auth_method,omitempty"`
}

// Resource represents the operation being accessed.
type Resource struct {
	Path       string `json:"path,omitempty"`
	Method     string `json:"method,omitempty"`
	Permission string `json:"permission,omitempty"`
}

// NewEvent creates a new audit event with default values.
func NewEvent(eventType EventType, action Action, outcome Outcome) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Action:    action,
		Outcome:   outcome,
	}
}

// WithSubject sets the subject.
func (e *Event) WithSubject(subject *Subject) *Event {
	e.Subject = subject
	return e
}

// WithResource sets the resource.
func (e *Event) WithResource(resource *Resource) *Event {
	e.Resource = resource
	return e
}

// WithReason sets the failure reason.
func (e *Event) WithReason(reason string) *Event {
	e.Reason = reason
	return e
}

// WithMetadata adds metadata to the event.
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// KeyGeneratedEvent creates the event for a newly issued credential.
func KeyGeneratedEvent(id, name string, permissions []string) *Event {
	return NewEvent(EventTypeAdministrative, ActionKeyGenerate, OutcomeSuccess).
		WithSubject(&Subject{ID: id, Name: name, Permissions: permissions})
}

// KeyRevokedEvent creates the event for a revocation.
func KeyRevokedEvent(id string, outcome Outcome) *Event {
	return NewEvent(EventTypeAdministrative, ActionKeyRevoke, outcome).
		WithSubject(&Subject{ID: id})
}

// AuthenticationEvent creates an authentication audit event.
func AuthenticationEvent(outcome Outcome, subject *Subject, resource *Resource) *Event {
	return NewEvent(EventTypeAuthentication, ActionAuthenticate, outcome).
		WithSubject(subject).
		WithResource(resource)
}
