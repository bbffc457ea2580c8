package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/race-registration/internal/model"
	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

// Tx is the transactional half of the store. Every method runs on the
// same pgx.Tx and commits or rolls back with it.
type Tx struct {
	tx pgx.Tx
}

var _ ports.Tx = (*Tx)(nil)

// InsertRegistration inserts the registration row. The partial unique
// index on (event_id, user_id) is the race-proof duplicate guard.
func (t *Tx) InsertRegistration(ctx context.Context, r *model.Registration) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO registrations
		     (id, event_id, user_id, invited_by_id, status, terms_accepted, rules_accepted,
		      total_amount, service_fee, discount, final_amount, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		r.ID, r.EventID, r.UserID, r.InvitedByID, r.Status, r.TermsAccepted, r.RulesAccepted,
		r.TotalAmount, r.ServiceFee, r.Discount, r.FinalAmount, r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "registrations_event_user_active") {
			return model.ErrDuplicate
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (t *Tx) InsertModalityLink(ctx context.Context, l model.RegistrationModality) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO registration_modalities (registration_id, modality_id) VALUES ($1, $2)`,
		l.RegistrationID, l.ModalityID,
	)
	if err != nil {
		return fmt.Errorf("insert modality link: %w", err)
	}
	return nil
}

func (t *Tx) InsertKitItemLink(ctx context.Context, l model.RegistrationKitItem) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO registration_kit_items (registration_id, kit_item_id, size, quantity)
		 VALUES ($1, $2, $3, $4)`,
		l.RegistrationID, l.KitItemID, l.Size, l.Quantity,
	)
	if err != nil {
		return fmt.Errorf("insert kit link: %w", err)
	}
	return nil
}

// InsertAnswers batches all answer inserts into one round trip.
func (t *Tx) InsertAnswers(ctx context.Context, answers []model.QuestionAnswer) error {
	batch := &pgx.Batch{}
	for _, a := range answers {
		batch.Queue(
			`INSERT INTO question_answers (registration_id, question_id, answer) VALUES ($1, $2, $3)`,
			a.RegistrationID, a.QuestionID, a.Answer,
		)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert answers: %w", err)
	}
	return nil
}

// CreateInvitedUser creates an inactive placeholder user for someone
// registered by invitedBy.
func (t *Tx) CreateInvitedUser(ctx context.Context, invitedBy string, p model.UserProfile) (string, error) {
	id := uuid.NewString()
	_, err := t.tx.Exec(ctx,
		`INSERT INTO users (id, name, email, document, phone, is_active, invited_by)
		 VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
		id, p.Name, p.Email, p.Document, p.Phone, invitedBy,
	)
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return "", model.ErrEmailTaken
		}
		return "", fmt.Errorf("create invited user: %w", err)
	}
	return id, nil
}

// IncrementParticipants takes one slot only while the modality is below its ceiling.
func (t *Tx) IncrementParticipants(ctx context.Context, modalityID string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE modalities
		 SET current_participants = current_participants + 1
		 WHERE id = $1
		   AND (max_participants IS NULL OR current_participants < max_participants)`,
		modalityID,
	)
	if err != nil {
		return fmt.Errorf("increment participants: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return t.missingOr(ctx, `SELECT EXISTS (SELECT 1 FROM modalities WHERE id = $1)`,
			model.ErrModalityNotFound, model.ErrModalityFull, modalityID)
	}
	return nil
}

// DecrementParticipants releases one slot, floored at zero.
func (t *Tx) DecrementParticipants(ctx context.Context, modalityID string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE modalities
		 SET current_participants = GREATEST(current_participants - 1, 0)
		 WHERE id = $1`,
		modalityID,
	)
	if err != nil {
		return fmt.Errorf("decrement participants: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrModalityNotFound
	}
	return nil
}

// AdjustStock applies delta to one size only if the result stays >= 0.
func (t *Tx) AdjustStock(ctx context.Context, kitItemID, size string, delta int) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE kit_item_sizes
		 SET stock = stock + $3
		 WHERE kit_item_id = $1 AND size = $2 AND stock + $3 >= 0`,
		kitItemID, size, delta,
	)
	if err != nil {
		if isCheckViolation(err) {
			return model.ErrInsufficientStock
		}
		return fmt.Errorf("adjust stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return t.missingOr(ctx,
			`SELECT EXISTS (SELECT 1 FROM kit_item_sizes WHERE kit_item_id = $1 AND size = $2)`,
			model.ErrUnknownSize, model.ErrInsufficientStock, kitItemID, size)
	}
	return nil
}

// missingOr runs an EXISTS probe after a conditional update touched no rows
// and returns missing when the row is absent, otherwise bounded.
func (t *Tx) missingOr(ctx context.Context, probe string, missing, bounded error, args ...any) error {
	var exists bool
	if err := t.tx.QueryRow(ctx, probe, args...).Scan(&exists); err != nil {
		return fmt.Errorf("probe row: %w", err)
	}
	if !exists {
		return missing
	}
	return bounded
}

// TransitionStatus is a compare-and-set on the registration status.
func (t *Tx) TransitionStatus(ctx context.Context, id string, from, to model.RegistrationStatus) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE registrations
		 SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		if isUniqueViolation(err, "registrations_event_user_active") {
			return false, model.ErrDuplicate
		}
		return false, fmt.Errorf("transition status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelUnpaid folds the captured-payment check into the status CAS so a
// capture can never slip in between the check and the cancel.
func (t *Tx) CancelUnpaid(ctx context.Context, id string) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE registrations r
		 SET status = 'CANCELLED', updated_at = now()
		 WHERE r.id = $1 AND r.status = 'PENDING'
		   AND NOT EXISTS (
		       SELECT 1 FROM payments p
		       WHERE p.registration_id = r.id AND p.status IN ('CAPTURED', 'PAID')
		   )`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("cancel registration: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *Tx) HasCapturedPayment(ctx context.Context, registrationID string) (bool, error) {
	return hasCapturedPayment(ctx, t.tx, registrationID)
}

func (t *Tx) ListModalityLinks(ctx context.Context, registrationID string) ([]model.RegistrationModality, error) {
	return listModalityLinks(ctx, t.tx, registrationID)
}

func (t *Tx) ListKitItemLinks(ctx context.Context, registrationID string) ([]model.RegistrationKitItem, error) {
	return listKitItemLinks(ctx, t.tx, registrationID)
}

func (t *Tx) EnqueueOutbox(ctx context.Context, e ports.OutboxEvent) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO registration_outbox (id, event_type, partition_key, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.EventType, e.PartitionKey, e.Payload, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox: %w", err)
	}
	return nil
}
