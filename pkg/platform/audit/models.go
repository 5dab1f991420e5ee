// Package audit captures who did what to which registry entity. Events are
// written through the transactional outbox so that a registration and its
// audit trail commit or roll back together; a background worker publishes
// the outbox to Kafka and a consumer materializes events for querying.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance:
	// registration decisions, identity changes, data removal.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to monitoring and forensics:
	// failed logins, key revocations, rate limit violations.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// ActorType identifies the kind of principal behind an event.
type ActorType string

const (
	ActorAdmin      ActorType = "admin"
	ActorRegistrant ActorType = "registrant"
	ActorAPIClient  ActorType = "api_client"
	ActorSystem     ActorType = "system"
)

// Event is emitted from domain logic to capture key actions. Before and
// After hold JSON snapshots of the entity around state transitions so a
// reviewer can see exactly what an approval or edit changed.
type Event struct {
	ID         uuid.UUID
	Category   EventCategory
	OccurredAt time.Time
	EntityType string
	EntityID   string
	Action     string
	ActorType  ActorType
	ActorID    string
	Before     json.RawMessage
	After      json.RawMessage
	RequestID  string
}

type AuditEvent string

const (
	// Registration lifecycle
	EventUserRegistered        AuditEvent = "user_registered"
	EventUserApproved          AuditEvent = "user_approved"
	EventUserRejected          AuditEvent = "user_rejected"
	EventOrgRegistered         AuditEvent = "organization_registered"
	EventOrgApproved           AuditEvent = "organization_approved"
	EventOrgRejected           AuditEvent = "organization_rejected"
	EventEmailVerified         AuditEvent = "email_verified"
	EventContactAdded          AuditEvent = "contact_added"
	EventPrimaryContactChanged AuditEvent = "primary_contact_changed"
	EventMemberAdded           AuditEvent = "member_added"

	// Admin and API credentials
	EventAdminLogin       AuditEvent = "admin_login"
	EventAdminLoginFailed AuditEvent = "admin_login_failed"
	EventAPIKeyCreated    AuditEvent = "api_key_created"
	EventAPIKeyRevoked    AuditEvent = "api_key_revoked"

	// Lookup surface
	EventLookupPerformed   AuditEvent = "lookup_performed"
	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
	EventRateLimitReset    AuditEvent = "rate_limit_reset"

	// Notifications
	EventNotificationSent   AuditEvent = "notification_sent"
	EventNotificationFailed AuditEvent = "notification_failed"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventUserRegistered:        CategoryCompliance,
	EventUserApproved:          CategoryCompliance,
	EventUserRejected:          CategoryCompliance,
	EventOrgRegistered:         CategoryCompliance,
	EventOrgApproved:           CategoryCompliance,
	EventOrgRejected:           CategoryCompliance,
	EventEmailVerified:         CategoryCompliance,
	EventContactAdded:          CategoryCompliance,
	EventPrimaryContactChanged: CategoryCompliance,
	EventMemberAdded:           CategoryCompliance,

	EventAdminLoginFailed:  CategorySecurity,
	EventAPIKeyCreated:     CategorySecurity,
	EventAPIKeyRevoked:     CategorySecurity,
	EventRateLimitExceeded: CategorySecurity,
	EventRateLimitReset:    CategorySecurity,

	EventAdminLogin:         CategoryOperations,
	EventLookupPerformed:    CategoryOperations,
	EventNotificationSent:   CategoryOperations,
	EventNotificationFailed: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events. Append goes through the outbox on the
// Postgres implementation; AppendWithID writes the queryable
// materialization and is used by the Kafka consumer.
type Store interface {
	Append(ctx context.Context, event Event) error
	AppendWithID(ctx context.Context, eventID uuid.UUID, event Event) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
