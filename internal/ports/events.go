package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventPublisher defines the interface for domain event publishing
type EventPublisher interface {
	// Publish publishes a domain event
	Publish(ctx context.Context, event Event) error
}

// Event represents a domain event
type Event struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Aggregate   string                 `json:"aggregate"`
	AggregateID string                 `json:"aggregateId"`
	TenantID    string                 `json:"tenantId,omitempty"`
	ActorID     string                 `json:"actorId,omitempty"`
	Data        map[string]interface{} `json:"data"`
	Version     int                    `json:"version"`
	CreatedAt   int64                  `json:"createdAt"`
}

// Event Types
const (
	EventTypeProductCreated       = "product_created"
	EventTypeProductUpdated       = "product_updated"
	EventTypeProductDeleted       = "product_deleted"
	EventTypeReviewerAssigned     = "reviewer_assigned"
	EventTypeWorkflowTransitioned = "workflow_transitioned"
	EventTypeBulkUpdated          = "bulk_updated"
	EventTypeUserCreated          = "user_created"
	EventTypeUserRoleChanged      = "user_role_changed"
	EventTypeUserDeleted          = "user_deleted"
	EventTypeTamperDetected       = "audit_tamper_detected"
)

// Aggregate names
const (
	AggregateProduct = "product"
	AggregateUser    = "user"
	AggregateAudit   = "audit"
)

// NewEvent creates a new domain event
func NewEvent(eventType, aggregate, aggregateID string, data map[string]interface{}, version int) *Event {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		Aggregate:   aggregate,
		AggregateID: aggregateID,
		Data:        data,
		Version:     version,
		CreatedAt:   time.Now().UTC().UnixMilli(),
	}
}

// WithActor stamps the acting user and tenant on the event
func (e *Event) WithActor(actorID, tenantID string) *Event {
	e.ActorID = actorID
	e.TenantID = tenantID
	return e
}
