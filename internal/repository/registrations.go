package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/race-registration/internal/model"
)

const registrationColumns = `id, event_id, user_id, invited_by_id, status, terms_accepted, rules_accepted,
	total_amount, service_fee, discount, final_amount, credential, created_at`

func scanRegistration(row pgx.Row, r *model.Registration) error {
	return row.Scan(
		&r.ID, &r.EventID, &r.UserID, &r.InvitedByID, &r.Status, &r.TermsAccepted, &r.RulesAccepted,
		&r.TotalAmount, &r.ServiceFee, &r.Discount, &r.FinalAmount, &r.Credential, &r.CreatedAt,
	)
}

// GetRegistration returns a registration with its modality links, kit links and answers.
func (s *Store) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	var r model.Registration
	err := scanRegistration(s.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id), &r)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}

	r.Modalities, err = listModalityLinks(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	r.KitItems, err = listKitItemLinks(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT registration_id, question_id, answer
		 FROM question_answers WHERE registration_id = $1 ORDER BY question_id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	r.Answers, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.QuestionAnswer, error) {
		var a model.QuestionAnswer
		err := row.Scan(&a.RegistrationID, &a.QuestionID, &a.Answer)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan answers: %w", err)
	}
	return &r, nil
}

// ListByEvent returns all registrations for a given event.
func (s *Store) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var r model.Registration
		if err := scanRegistration(rows, &r); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, r)
	}
	return regs, rows.Err()
}

// HasActiveRegistration reports whether the user holds a non-cancelled registration for the event.
func (s *Store) HasActiveRegistration(ctx context.Context, eventID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM registrations
		     WHERE event_id = $1 AND user_id = $2 AND status <> 'CANCELLED'
		 )`,
		eventID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return exists, nil
}

// ListMissingCredentials returns live registrations still waiting for a credential, oldest first.
func (s *Store) ListMissingCredentials(ctx context.Context, limit int) ([]model.Registration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE credential IS NULL AND status <> 'CANCELLED'
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list missing credentials: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var r model.Registration
		if err := scanRegistration(rows, &r); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, r)
	}
	return regs, rows.Err()
}

// AttachCredential stores the credential unless one is already attached.
func (s *Store) AttachCredential(ctx context.Context, registrationID, credential string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE registrations
		 SET credential = $2, updated_at = now()
		 WHERE id = $1 AND credential IS NULL`,
		registrationID, credential,
	)
	if err != nil {
		return fmt.Errorf("attach credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM registrations WHERE id = $1)`, registrationID).Scan(&exists); err != nil {
			return fmt.Errorf("attach credential: %w", err)
		}
		if !exists {
			return model.ErrRegistrationNotFound
		}
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func listModalityLinks(ctx context.Context, q querier, registrationID string) ([]model.RegistrationModality, error) {
	rows, err := q.Query(ctx,
		`SELECT registration_id, modality_id
		 FROM registration_modalities WHERE registration_id = $1 ORDER BY modality_id`,
		registrationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list modality links: %w", err)
	}
	links, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RegistrationModality, error) {
		var l model.RegistrationModality
		err := row.Scan(&l.RegistrationID, &l.ModalityID)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan modality links: %w", err)
	}
	return links, nil
}

func listKitItemLinks(ctx context.Context, q querier, registrationID string) ([]model.RegistrationKitItem, error) {
	rows, err := q.Query(ctx,
		`SELECT registration_id, kit_item_id, size, quantity
		 FROM registration_kit_items WHERE registration_id = $1 ORDER BY kit_item_id, size`,
		registrationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list kit links: %w", err)
	}
	links, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RegistrationKitItem, error) {
		var l model.RegistrationKitItem
		err := row.Scan(&l.RegistrationID, &l.KitItemID, &l.Size, &l.Quantity)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan kit links: %w", err)
	}
	return links, nil
}
