// Package worker relays unpublished outbox entries to Kafka.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dataregistry/pkg/platform/audit/store/postgres"
)

// Producer is the Kafka surface the worker needs.
type Producer interface {
	Publish(ctx context.Context, key, value []byte) error
}

// OutboxSource lists and acknowledges pending outbox rows.
type OutboxSource interface {
	ListPending(ctx context.Context, limit int) ([]postgres.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Worker polls the outbox and publishes each entry to Kafka. Entries are
// only marked published after a successful produce, so delivery is
// at-least-once and the consumer deduplicates on event ID.
type Worker struct {
	source   OutboxSource
	producer Producer
	logger   *slog.Logger

	interval  time.Duration
	batchSize int
}

func New(source OutboxSource, producer Producer, logger *slog.Logger) *Worker {
	return &Worker{
		source:    source,
		producer:  producer,
		logger:    logger,
		interval:  time.Second,
		batchSize: 100,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.publishBatch(ctx); err != nil {
				w.logger.Error("outbox publish failed", "error", err)
			}
		}
	}
}

func (w *Worker) publishBatch(ctx context.Context) error {
	entries, err := w.source.ListPending(ctx, w.batchSize)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	published := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		key := []byte(entry.ID.String())
		if err := w.producer.Publish(ctx, key, entry.Payload); err != nil {
			// Stop at the first failure so ordering survives; the
			// remainder of the batch is retried next tick.
			w.logger.Warn("publish outbox entry failed",
				"entry_id", entry.ID,
				"event_type", entry.EventType,
				"error", err,
			)
			break
		}
		published = append(published, entry.ID)
	}
	return w.source.MarkPublished(ctx, published)
}
