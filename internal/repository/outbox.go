package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

// FetchUnpublished returns up to limit unpublished outbox rows, oldest first.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]ports.OutboxRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, event_type, partition_key, payload, retry_count, created_at
		 FROM registration_outbox
		 WHERE published_at IS NULL
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ports.OutboxRecord, error) {
		var r ports.OutboxRecord
		err := row.Scan(&r.ID, &r.EventType, &r.PartitionKey, &r.Payload, &r.RetryCount, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan outbox: %w", err)
	}
	return recs, nil
}

func (s *Store) MarkPublished(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.Exec(ctx,
		`UPDATE registration_outbox SET published_at = $2 WHERE id = $1`, id, at,
	); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id string, errMsg string, at time.Time) error {
	if _, err := s.db.Exec(ctx,
		`UPDATE registration_outbox
		 SET retry_count = retry_count + 1, last_error = $2, last_error_at = $3
		 WHERE id = $1`,
		id, errMsg, at,
	); err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}
