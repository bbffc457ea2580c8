package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/race-registration/internal/model"
)

// GetEvent returns an event with its questions in display order.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	err := s.db.QueryRow(ctx,
		`SELECT id, name, status, registration_start, registration_end, event_date
		 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Name, &e.Status, &e.RegistrationWindow.Start, &e.RegistrationWindow.End, &e.EventDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, text, is_required
		 FROM event_questions
		 WHERE event_id = $1
		 ORDER BY position, id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.IsRequired); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		e.Questions = append(e.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return &e, nil
}

// GetEventStatus returns the current status of an event.
func (s *Store) GetEventStatus(ctx context.Context, id string) (model.EventStatus, error) {
	var status model.EventStatus
	err := s.db.QueryRow(ctx, `SELECT status FROM events WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", model.ErrEventNotFound
		}
		return "", fmt.Errorf("get event status: %w", err)
	}
	return status, nil
}

// GetModality returns a single modality or model.ErrModalityNotFound.
func (s *Store) GetModality(ctx context.Context, id string) (*model.Modality, error) {
	var m model.Modality
	err := s.db.QueryRow(ctx,
		`SELECT id, event_id, name, is_active, price, max_participants, current_participants
		 FROM modalities WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.EventID, &m.Name, &m.IsActive, &m.Price, &m.MaxParticipants, &m.CurrentParticipants)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrModalityNotFound
		}
		return nil, fmt.Errorf("get modality: %w", err)
	}
	return &m, nil
}

// GetKitItem returns a kit item with all its sizes.
func (s *Store) GetKitItem(ctx context.Context, id string) (*model.KitItem, error) {
	var k model.KitItem
	err := s.db.QueryRow(ctx,
		`SELECT id, event_id, name FROM kit_items WHERE id = $1`,
		id,
	).Scan(&k.ID, &k.EventID, &k.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrKitItemNotFound
		}
		return nil, fmt.Errorf("get kit item: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT size, stock FROM kit_item_sizes WHERE kit_item_id = $1 ORDER BY size`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list kit sizes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st model.SizeStock
		if err := rows.Scan(&st.Size, &st.Stock); err != nil {
			return nil, fmt.Errorf("scan kit size: %w", err)
		}
		k.Sizes = append(k.Sizes, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list kit sizes: %w", err)
	}
	return &k, nil
}

// GetUser returns a user or model.ErrUserNotFound.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(ctx,
		`SELECT id, name, email, is_active, invited_by FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.IsActive, &u.InvitedByID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// HasCapturedPayment reports whether any payment of the registration was captured.
func (s *Store) HasCapturedPayment(ctx context.Context, registrationID string) (bool, error) {
	return hasCapturedPayment(ctx, s.db, registrationID)
}

func hasCapturedPayment(ctx context.Context, q querier, registrationID string) (bool, error) {
	var paid bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM payments
		     WHERE registration_id = $1 AND status IN ('CAPTURED', 'PAID')
		 )`,
		registrationID,
	).Scan(&paid)
	if err != nil {
		return false, fmt.Errorf("check payments: %w", err)
	}
	return paid, nil
}
