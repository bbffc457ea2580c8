// Package service implements the registration engine: validation, atomic
// reservation of modality capacity and kit stock, price quoting,
// cancellation with compensation, and confirmation.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/race-registration/internal/model"
	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

// Domain event types written to the outbox.
const (
	EventRegistrationCreated   = "registration.created"
	EventRegistrationCancelled = "registration.cancelled"
	EventRegistrationConfirmed = "registration.confirmed"
)

// Config holds the business knobs of the engine.
type Config struct {
	// FeeBasisPoints is the service fee rate; 500 is 5%.
	FeeBasisPoints int64
	// RestockKitOnCancel returns reserved kit stock when a registration is cancelled.
	RestockKitOnCancel bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{FeeBasisPoints: 500, RestockKitOnCancel: true}
}

// Deps are the collaborators of RegistrationService. Credentials, Logger,
// Tracer and Now are optional.
type Deps struct {
	Store       ports.Store
	Credentials ports.CredentialGenerator
	Logger      *zap.Logger
	Tracer      trace.Tracer
	Now         func() time.Time
}

// RegistrationService orchestrates registration creation, cancellation and confirmation.
type RegistrationService struct {
	store       ports.Store
	credentials ports.CredentialGenerator
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
	cfg         Config
}

// NewRegistrationService constructs a RegistrationService with its dependencies.
func NewRegistrationService(deps Deps, cfg Config) *RegistrationService {
	s := &RegistrationService{
		store:       deps.Store,
		credentials: deps.Credentials,
		logger:      deps.Logger,
		tracer:      deps.Tracer,
		now:         deps.Now,
		cfg:         cfg,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("registration")
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

type registrationEvent struct {
	RegistrationID string                   `json:"registration_id"`
	EventID        string                   `json:"event_id"`
	UserID         string                   `json:"user_id"`
	InvitedByID    *string                  `json:"invited_by_id,omitempty"`
	Status         model.RegistrationStatus `json:"status"`
	FinalAmount    int64                    `json:"final_amount"`
	OccurredAt     time.Time                `json:"occurred_at"`
}

func (s *RegistrationService) outboxEvent(eventType string, reg *model.Registration, status model.RegistrationStatus) (ports.OutboxEvent, error) {
	at := s.now()
	payload, err := json.Marshal(registrationEvent{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
		InvitedByID:    reg.InvitedByID,
		Status:         status,
		FinalAmount:    reg.FinalAmount,
		OccurredAt:     at,
	})
	if err != nil {
		return ports.OutboxEvent{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return ports.OutboxEvent{
		ID:           uuid.NewString(),
		EventType:    eventType,
		PartitionKey: reg.EventID,
		Payload:      payload,
		OccurredAt:   at,
	}, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetRegistration returns a registration with its links and answers.
// Only the registrant or their inviter may read it.
func (s *RegistrationService) GetRegistration(ctx context.Context, id, actorUserID string) (*model.Registration, error) {
	if id == "" {
		return nil, model.Invalid("registration id is required")
	}
	reg, err := s.store.GetRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if !reg.OwnedOrInvitedBy(actorUserID) {
		return nil, model.ErrNotOwner
	}
	return reg, nil
}

// ListEventRegistrations returns the registrations of an event that the
// actor owns or invited. Other participants' rows are never listed.
func (s *RegistrationService) ListEventRegistrations(ctx context.Context, eventID, actorUserID string) ([]model.Registration, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	all, err := s.store.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	visible := make([]model.Registration, 0, len(all))
	for i := range all {
		if all[i].OwnedOrInvitedBy(actorUserID) {
			visible = append(visible, all[i])
		}
	}
	return visible, nil
}

// ConfirmRegistration moves a PENDING registration to CONFIRMED once its
// payment has been captured.
func (s *RegistrationService) ConfirmRegistration(ctx context.Context, id string) (err error) {
	ctx, span := s.tracer.Start(ctx, "registration.confirm")
	defer func() { endSpan(span, err) }()

	reg, err := s.store.GetRegistration(ctx, id)
	if err != nil {
		return err
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		ok, err := tx.TransitionStatus(ctx, id, model.RegistrationPending, model.RegistrationConfirmed)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrNotPending
		}
		evt, err := s.outboxEvent(EventRegistrationConfirmed, reg, model.RegistrationConfirmed)
		if err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, evt)
	})
	if err != nil {
		return err
	}
	s.logger.Info("registration confirmed", zap.String("registration_id", id))
	return nil
}

// isDomainError reports whether err carries one of the domain error kinds.
func isDomainError(err error) bool {
	return errors.Is(err, model.ErrValidation) ||
		errors.Is(err, model.ErrNotFound) ||
		errors.Is(err, model.ErrConflict) ||
		errors.Is(err, model.ErrAccessDenied)
}
