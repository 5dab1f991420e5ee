// Package consumer materializes Kafka audit messages into the queryable
// audit_events table.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "dataregistry/pkg/platform/audit"
	"dataregistry/internal/platform/kafka"
)

// Materializer writes the audit event with a consumer-supplied ID so
// redelivery stays idempotent.
type Materializer interface {
	AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error
}

type Handler struct {
	store  Materializer
	logger *slog.Logger
}

func NewHandler(store Materializer, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// message mirrors the outbox payload format.
type message struct {
	ID         string          `json:"ID"`
	Category   string          `json:"Category"`
	OccurredAt string          `json:"OccurredAt"`
	EntityType string          `json:"EntityType"`
	EntityID   string          `json:"EntityID"`
	Action     string          `json:"Action"`
	ActorType  string          `json:"ActorType"`
	ActorID    string          `json:"ActorID"`
	Before     json.RawMessage `json:"Before"`
	After      json.RawMessage `json:"After"`
	RequestID  string          `json:"RequestID"`
}

// Handle decodes one Kafka message and persists it. Undecodable messages
// are logged and acknowledged rather than retried forever.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var m message
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		h.logger.Error("drop undecodable audit message", "topic", msg.Topic, "error", err)
		return nil
	}

	eventID, err := uuid.Parse(m.ID)
	if err != nil {
		h.logger.Error("drop audit message with bad event id", "id", m.ID, "error", err)
		return nil
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, m.OccurredAt)
	if err != nil {
		occurredAt = time.Now()
	}

	event := audit.Event{
		ID:         eventID,
		Category:   audit.EventCategory(m.Category),
		OccurredAt: occurredAt,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		Action:     m.Action,
		ActorType:  audit.ActorType(m.ActorType),
		ActorID:    m.ActorID,
		Before:     m.Before,
		After:      m.After,
		RequestID:  m.RequestID,
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if err := h.store.AppendWithID(ctx, eventID, event); err != nil {
		return fmt.Errorf("materialize audit event %s: %w", eventID, err)
	}
	return nil
}
