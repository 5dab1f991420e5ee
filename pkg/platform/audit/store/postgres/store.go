package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "dataregistry/pkg/platform/audit"
	txcontext "dataregistry/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Append writes to the outbox table inside the caller's transaction; the
// outbox worker publishes entries to Kafka, and the consumer materializes
// them into audit_events via AppendWithID.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka. Field names
// match audit.Event so the consumer can deserialize directly.
type outboxPayload struct {
	ID         string          `json:"ID"`
	Category   string          `json:"Category"`
	OccurredAt string          `json:"OccurredAt"`
	EntityType string          `json:"EntityType"`
	EntityID   string          `json:"EntityID"`
	Action     string          `json:"Action"`
	ActorType  string          `json:"ActorType"`
	ActorID    string          `json:"ActorID,omitempty"`
	Before     json.RawMessage `json:"Before,omitempty"`
	After      json.RawMessage `json:"After,omitempty"`
	RequestID  string          `json:"RequestID,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
// It joins any transaction found on the context.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	payload := outboxPayload{
		ID:         event.ID.String(),
		Category:   string(event.Category),
		OccurredAt: event.OccurredAt.Format(time.RFC3339Nano),
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Action:     event.Action,
		ActorType:  string(event.ActorType),
		ActorID:    event.ActorID,
		Before:     event.Before,
		After:      event.After,
		RequestID:  event.RequestID,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		event.EntityType,
		event.EntityID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// AppendWithID inserts an audit event into the audit_events table with a
// specific ID. Idempotent via ON CONFLICT DO NOTHING so the consumer can
// safely reprocess a partition.
func (s *Store) AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, occurred_at, entity_type, entity_id, action,
			actor_type, actor_id, before_state, after_state, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		eventID,
		string(event.Category),
		event.OccurredAt,
		event.EntityType,
		event.EntityID,
		event.Action,
		string(event.ActorType),
		nullable(event.ActorID),
		nullableJSON(event.Before),
		nullableJSON(event.After),
		nullable(event.RequestID),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByEntity returns events for a specific entity, newest first.
func (s *Store) ListByEntity(ctx context.Context, entityType, entityID string) ([]audit.Event, error) {
	query := selectEvents + `
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY occurred_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events across all entities.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := selectEvents + `
		ORDER BY occurred_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

const selectEvents = `
	SELECT id, category, occurred_at, entity_type, entity_id, action,
		   actor_type, actor_id, before_state, after_state, request_id
	FROM audit_events
`

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event     audit.Event
			category  string
			actorType string
			actorID   sql.NullString
			before    []byte
			after     []byte
			requestID sql.NullString
		)
		err := rows.Scan(
			&event.ID,
			&category,
			&event.OccurredAt,
			&event.EntityType,
			&event.EntityID,
			&event.Action,
			&actorType,
			&actorID,
			&before,
			&after,
			&requestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.ActorType = audit.ActorType(actorType)
		event.ActorID = actorID.String
		event.Before = before
		event.After = after
		event.RequestID = requestID.String
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// OutboxEntry is one unpublished row awaiting delivery to Kafka.
type OutboxEntry struct {
	ID        uuid.UUID
	EventType string
	Payload   []byte
}

// ListPending returns up to limit unpublished outbox entries, oldest
// first, so the worker preserves emission order.
func (s *Store) ListPending(ctx context.Context, limit int) ([]OutboxEntry, error) {
	query := `
		SELECT id, event_type, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		if err := rows.Scan(&entry.ID, &entry.EventType, &entry.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps the given outbox entries as delivered.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE outbox
		SET published_at = now()
		WHERE id = ANY($1)
	`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
