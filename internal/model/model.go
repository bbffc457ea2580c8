// Package model defines the core domain types for the race registration system.
package model

import (
	"strings"
	"time"
)

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusCancelled EventStatus = "CANCELLED"
	EventStatusFinished  EventStatus = "FINISHED"
)

// RegistrationStatus is the lifecycle state of a registration.
// PENDING moves to CONFIRMED or CANCELLED; CANCELLED is terminal.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "PENDING"
	RegistrationConfirmed RegistrationStatus = "CONFIRMED"
	RegistrationCancelled RegistrationStatus = "CANCELLED"
)

// Window is an inclusive time range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Question is an event-level question asked at registration time.
type Question struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	IsRequired bool   `json:"is_required"`
}

// Event is the read-only view of an event used by the reservation engine.
type Event struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Status             EventStatus `json:"status"`
	RegistrationWindow Window      `json:"registration_window"`
	EventDate          time.Time   `json:"event_date"`
	Questions          []Question  `json:"questions"`
}

// Modality is a race category with its own price and optional capacity.
// Prices are in minor currency units.
type Modality struct {
	ID                  string `json:"id"`
	EventID             string `json:"event_id"`
	Name                string `json:"name"`
	IsActive            bool   `json:"is_active"`
	Price               int64  `json:"price"`
	MaxParticipants     *int   `json:"max_participants"`
	CurrentParticipants int    `json:"current_participants"`
}

// HasCapacity reports whether one more participant fits.
func (m *Modality) HasCapacity() bool {
	return m.MaxParticipants == nil || m.CurrentParticipants < *m.MaxParticipants
}

// SizeStock is the stock counter of one size of a kit item.
type SizeStock struct {
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

// KitItem is a physical good offered in discrete sizes.
type KitItem struct {
	ID      string      `json:"id"`
	EventID string      `json:"event_id"`
	Name    string      `json:"name"`
	Sizes   []SizeStock `json:"sizes"`
}

// Stock returns the stock of size, matched case-sensitively.
func (k *KitItem) Stock(size string) (int, bool) {
	for _, s := range k.Sizes {
		if s.Size == size {
			return s.Stock, true
		}
	}
	return 0, false
}

// Registration is a user's registration for an event.
type Registration struct {
	ID            string             `json:"id"`
	EventID       string             `json:"event_id"`
	UserID        string             `json:"user_id"`
	InvitedByID   *string            `json:"invited_by_id,omitempty"`
	Status        RegistrationStatus `json:"status"`
	TermsAccepted bool               `json:"terms_accepted"`
	RulesAccepted bool               `json:"rules_accepted"`
	TotalAmount   int64              `json:"total_amount"`
	ServiceFee    int64              `json:"service_fee"`
	Discount      int64              `json:"discount"`
	FinalAmount   int64              `json:"final_amount"`
	Credential    *string            `json:"credential,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`

	Modalities []RegistrationModality `json:"modalities,omitempty"`
	KitItems   []RegistrationKitItem  `json:"kit_items,omitempty"`
	Answers    []QuestionAnswer       `json:"answers,omitempty"`
}

// OwnedOrInvitedBy reports whether userID owns the registration or invited its owner.
func (r *Registration) OwnedOrInvitedBy(userID string) bool {
	if r.UserID == userID {
		return true
	}
	return r.InvitedByID != nil && *r.InvitedByID == userID
}

// RegistrationModality links a registration to one modality slot.
type RegistrationModality struct {
	RegistrationID string `json:"registration_id"`
	ModalityID     string `json:"modality_id"`
}

// RegistrationKitItem links a registration to reserved kit stock.
type RegistrationKitItem struct {
	RegistrationID string `json:"registration_id"`
	KitItemID      string `json:"kit_item_id"`
	Size           string `json:"size"`
	Quantity       int    `json:"quantity"`
}

// QuestionAnswer stores one answer given at registration time.
type QuestionAnswer struct {
	RegistrationID string `json:"registration_id"`
	QuestionID     string `json:"question_id"`
	Answer         string `json:"answer"`
}

// User is the minimal identity record the engine needs.
type User struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	IsActive    bool    `json:"is_active"`
	InvitedByID *string `json:"invited_by_id,omitempty"`
}

// UserProfile describes a participant registered on someone else's behalf.
type UserProfile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// InvitedUser selects who is registered when the actor registers someone else.
// Exactly one of UserID or Profile is set.
type InvitedUser struct {
	UserID  string       `json:"user_id,omitempty"`
	Profile *UserProfile `json:"profile,omitempty"`
}

// KitItemSelection asks for quantity units of one size of a kit item.
type KitItemSelection struct {
	KitItemID string `json:"kit_item_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// AnswerInput is a question answer as submitted by the client.
type AnswerInput struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// CreateRegistrationRequest is the payload for registering for an event.
type CreateRegistrationRequest struct {
	ModalityIDs   []string           `json:"modality_ids"`
	KitItems      []KitItemSelection `json:"kit_items"`
	Answers       []AnswerInput      `json:"answers"`
	TermsAccepted bool               `json:"terms_accepted"`
	RulesAccepted bool               `json:"rules_accepted"`
	InvitedUser   *InvitedUser       `json:"invited_user,omitempty"`
}

// Quote is the immutable price breakdown captured on a registration.
type Quote struct {
	TotalAmount int64 `json:"total_amount"`
	ServiceFee  int64 `json:"service_fee"`
	Discount    int64 `json:"discount"`
	FinalAmount int64 `json:"final_amount"`
}

// NewQuote computes the fee from feeBasisPoints (500 = 5%), rounding half up.
func NewQuote(total int64, feeBasisPoints int64, discount int64) Quote {
	fee := (total*feeBasisPoints + 5000) / 10000
	return Quote{
		TotalAmount: total,
		ServiceFee:  fee,
		Discount:    discount,
		FinalAmount: total + fee - discount,
	}
}

// NormalizeSize trims surrounding whitespace but keeps case.
func NormalizeSize(size string) string {
	return strings.TrimSpace(size)
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error              string   `json:"error"`
	Code               string   `json:"code,omitempty"`
	MissingQuestionIDs []string `json:"missing_question_ids,omitempty"`
}
