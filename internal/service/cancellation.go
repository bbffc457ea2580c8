package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/race-registration/internal/model"
	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

// errLostTransition signals that the status CAS found the row in another state.
var errLostTransition = errors.New("status transition lost")

// CancelRegistration cancels a pending registration and releases the
// capacity (and, when configured, the kit stock) it reserved.
//
// The PENDING -> CANCELLED compare-and-set runs in the same transaction as
// the compensation, so a repeated or concurrent cancel can never release a
// slot twice. The set only succeeds while no payment is captured.
func (s *RegistrationService) CancelRegistration(ctx context.Context, registrationID, actorUserID string) (_ *model.Registration, err error) {
	ctx, span := s.tracer.Start(ctx, "registration.cancel")
	span.SetAttributes(attribute.String("registration.id", registrationID))
	defer func() { endSpan(span, err) }()

	if registrationID == "" {
		return nil, model.Invalid("registration id is required")
	}
	reg, err := s.store.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if !reg.OwnedOrInvitedBy(actorUserID) {
		return nil, model.ErrNotOwner
	}
	if err := cancellable(reg.Status); err != nil {
		return nil, err
	}
	// Fast rejection only; CancelUnpaid below re-checks the payment
	// atomically with the status change.
	paid, err := s.store.HasCapturedPayment(ctx, registrationID)
	if err != nil {
		return nil, fmt.Errorf("check payment: %w", err)
	}
	if paid {
		return nil, model.ErrRegistrationPaid
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		ok, err := tx.CancelUnpaid(ctx, registrationID)
		if err != nil {
			return err
		}
		if !ok {
			paid, err := tx.HasCapturedPayment(ctx, registrationID)
			if err != nil {
				return fmt.Errorf("check payment: %w", err)
			}
			if paid {
				return model.ErrRegistrationPaid
			}
			return errLostTransition
		}

		links, err := tx.ListModalityLinks(ctx, registrationID)
		if err != nil {
			return err
		}
		sort.Slice(links, func(i, j int) bool { return links[i].ModalityID < links[j].ModalityID })
		for _, l := range links {
			if err := tx.DecrementParticipants(ctx, l.ModalityID); err != nil {
				return err
			}
		}

		if s.cfg.RestockKitOnCancel {
			kits, err := tx.ListKitItemLinks(ctx, registrationID)
			if err != nil {
				return err
			}
			sort.Slice(kits, func(i, j int) bool {
				if kits[i].KitItemID != kits[j].KitItemID {
					return kits[i].KitItemID < kits[j].KitItemID
				}
				return kits[i].Size < kits[j].Size
			})
			for _, k := range kits {
				if err := tx.AdjustStock(ctx, k.KitItemID, k.Size, k.Quantity); err != nil {
					return err
				}
			}
		}

		evt, err := s.outboxEvent(EventRegistrationCancelled, reg, model.RegistrationCancelled)
		if err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, evt)
	})
	if errors.Is(err, errLostTransition) {
		// Someone else moved the registration first; report what they did.
		current, getErr := s.store.GetRegistration(ctx, registrationID)
		if getErr != nil {
			return nil, getErr
		}
		if cErr := cancellable(current.Status); cErr != nil {
			return nil, cErr
		}
		return nil, model.ErrNotPending
	}
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel registration: %w", err)
	}

	s.logger.Info("registration cancelled",
		zap.String("registration_id", registrationID),
		zap.String("actor_id", actorUserID),
	)
	reg.Status = model.RegistrationCancelled
	return reg, nil
}

func cancellable(status model.RegistrationStatus) error {
	switch status {
	case model.RegistrationCancelled:
		return model.ErrAlreadyCancelled
	case model.RegistrationConfirmed:
		return model.ErrRegistrationPaid
	}
	return nil
}
