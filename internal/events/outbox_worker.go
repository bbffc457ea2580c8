// Package events moves registration domain events between the outbox and
// Kafka, and consumes payment events from the payment collaborator.
package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

// OutboxWorker publishes outbox rows written by committed transactions.
// Delivery is at-least-once.
type OutboxWorker struct {
	logger    *zap.Logger
	outbox    ports.OutboxRepository
	publisher ports.EventPublisher
	interval  time.Duration
	batchSize int
}

func NewOutboxWorker(logger *zap.Logger, outbox ports.OutboxRepository, publisher ports.EventPublisher, interval time.Duration, batchSize int) *OutboxWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxWorker{
		logger: logger, outbox: outbox, publisher: publisher, interval: interval, batchSize: batchSize,
	}
}

func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("outbox iteration failed",
				zap.String("module", "events.outbox_worker"),
				zap.String("operation", "process_once"),
				zap.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce publishes one batch. A failed publish is recorded on the row
// and retried on a later pass.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) error {
	records, err := w.outbox.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, rec := range records {
		if err := w.publisher.Publish(ctx, rec.EventType, rec.Payload, rec.PartitionKey); err != nil {
			w.logger.Warn("outbox publish failed",
				zap.String("outbox_id", rec.ID),
				zap.String("event_type", rec.EventType),
				zap.Int("retry_count", rec.RetryCount),
				zap.Error(err),
			)
			_ = w.outbox.MarkFailed(ctx, rec.ID, err.Error(), now)
			continue
		}
		if err := w.outbox.MarkPublished(ctx, rec.ID, now); err != nil {
			return err
		}
	}
	return nil
}
