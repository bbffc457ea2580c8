// Package ports declares the storage and collaborator contracts consumed by
// the registration engine. The pgx repository and the in-memory store both
// satisfy them.
package ports

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/race-registration/internal/model"
)

// EventDirectory looks up events with their questions.
type EventDirectory interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	// GetEventStatus is a single-column read used to revalidate cached events.
	GetEventStatus(ctx context.Context, id string) (model.EventStatus, error)
}

// ModalityDirectory looks up modalities.
type ModalityDirectory interface {
	GetModality(ctx context.Context, id string) (*model.Modality, error)
}

// KitInventory looks up kit items with their per-size stock.
type KitInventory interface {
	GetKitItem(ctx context.Context, id string) (*model.KitItem, error)
}

// RegistrationReader serves read-only registration queries.
type RegistrationReader interface {
	GetRegistration(ctx context.Context, id string) (*model.Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	HasActiveRegistration(ctx context.Context, eventID, userID string) (bool, error)
	ListMissingCredentials(ctx context.Context, limit int) ([]model.Registration, error)
	AttachCredential(ctx context.Context, registrationID, credential string) error
}

// UserDirectory resolves users.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// PaymentLedger reports payment state owned by the payment collaborator.
type PaymentLedger interface {
	HasCapturedPayment(ctx context.Context, registrationID string) (bool, error)
}

// Tx is the set of writes that must commit or roll back together.
// Bounded counter mutations report model.ErrModalityFull or
// model.ErrInsufficientStock/model.ErrUnknownSize instead of persisting an
// out-of-range value.
type Tx interface {
	InsertRegistration(ctx context.Context, reg *model.Registration) error
	InsertModalityLink(ctx context.Context, link model.RegistrationModality) error
	InsertKitItemLink(ctx context.Context, link model.RegistrationKitItem) error
	InsertAnswers(ctx context.Context, answers []model.QuestionAnswer) error
	CreateInvitedUser(ctx context.Context, invitedBy string, profile model.UserProfile) (string, error)

	IncrementParticipants(ctx context.Context, modalityID string) error
	DecrementParticipants(ctx context.Context, modalityID string) error
	AdjustStock(ctx context.Context, kitItemID, size string, delta int) error

	// TransitionStatus moves id from one status to another and reports
	// whether the row was in the expected state.
	TransitionStatus(ctx context.Context, id string, from, to model.RegistrationStatus) (bool, error)
	// CancelUnpaid moves id from PENDING to CANCELLED only while no payment
	// of the registration is captured, and reports whether the row moved.
	CancelUnpaid(ctx context.Context, id string) (bool, error)
	HasCapturedPayment(ctx context.Context, registrationID string) (bool, error)
	ListModalityLinks(ctx context.Context, registrationID string) ([]model.RegistrationModality, error)
	ListKitItemLinks(ctx context.Context, registrationID string) ([]model.RegistrationKitItem, error)

	EnqueueOutbox(ctx context.Context, event OutboxEvent) error
}

// Transactor runs fn inside one all-or-nothing unit of work. A non-nil
// error from fn rolls back every write made through tx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store bundles everything the registration engine reads and writes.
type Store interface {
	EventDirectory
	ModalityDirectory
	KitInventory
	RegistrationReader
	UserDirectory
	PaymentLedger
	Transactor
}

// OutboxEvent is a domain event persisted alongside the state change it describes.
type OutboxEvent struct {
	ID           string
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord is an outbox row awaiting publication.
type OutboxRecord struct {
	ID           string
	EventType    string
	PartitionKey string
	Payload      []byte
	RetryCount   int
	CreatedAt    time.Time
}

// OutboxRepository drains the outbox.
type OutboxRepository interface {
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string, at time.Time) error
}
