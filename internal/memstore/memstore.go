// Package memstore is an in-memory implementation of the registration
// store. A transaction works on a private copy of the state that replaces
// the live state only when the callback succeeds; transactions are
// serialised by a single mutex.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/race-registration/internal/model"
	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

type outboxRow struct {
	ports.OutboxRecord
	PublishedAt *time.Time
	LastError   string
}

type state struct {
	events        map[string]model.Event
	modalities    map[string]model.Modality
	kits          map[string]model.KitItem
	users         map[string]model.User
	registrations map[string]model.Registration
	modalityLinks []model.RegistrationModality
	kitLinks      []model.RegistrationKitItem
	answers       []model.QuestionAnswer
	captured      map[string]bool
	outbox        []outboxRow
}

func newState() state {
	return state{
		events:        map[string]model.Event{},
		modalities:    map[string]model.Modality{},
		kits:          map[string]model.KitItem{},
		users:         map[string]model.User{},
		registrations: map[string]model.Registration{},
		captured:      map[string]bool{},
	}
}

func (s state) clone() state {
	cp := newState()
	for k, v := range s.events {
		cp.events[k] = v
	}
	for k, v := range s.modalities {
		cp.modalities[k] = v
	}
	for k, v := range s.kits {
		v.Sizes = append([]model.SizeStock(nil), v.Sizes...)
		cp.kits[k] = v
	}
	for k, v := range s.users {
		cp.users[k] = v
	}
	for k, v := range s.registrations {
		cp.registrations[k] = v
	}
	for k, v := range s.captured {
		cp.captured[k] = v
	}
	cp.modalityLinks = append([]model.RegistrationModality(nil), s.modalityLinks...)
	cp.kitLinks = append([]model.RegistrationKitItem(nil), s.kitLinks...)
	cp.answers = append([]model.QuestionAnswer(nil), s.answers...)
	cp.outbox = append([]outboxRow(nil), s.outbox...)
	return cp
}

// Store is a concurrency-safe in-memory store.
type Store struct {
	mu sync.Mutex
	st state
}

var (
	_ ports.Store            = (*Store)(nil)
	_ ports.OutboxRepository = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// WithinTx runs fn against a private copy of the state and publishes the
// copy only if fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{st: &work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

// ── Seeding and inspection ────────────────────────────────────────────────

// PutEvent inserts or replaces an event.
func (s *Store) PutEvent(e model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.events[e.ID] = e
}

// PutModality inserts or replaces a modality.
func (s *Store) PutModality(m model.Modality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.modalities[m.ID] = m
}

// PutKitItem inserts or replaces a kit item.
func (s *Store) PutKitItem(k model.KitItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k.Sizes = append([]model.SizeStock(nil), k.Sizes...)
	s.st.kits[k.ID] = k
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[u.ID] = u
}

// CapturePayment marks the payment of a registration as captured.
func (s *Store) CapturePayment(registrationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.captured[registrationID] = true
}

// Counts summarises stored rows, for assertions.
type Counts struct {
	Registrations int
	ModalityLinks int
	KitLinks      int
	Answers       int
	Users         int
	Outbox        int
}

// Counts returns the number of rows of each kind.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Registrations: len(s.st.registrations),
		ModalityLinks: len(s.st.modalityLinks),
		KitLinks:      len(s.st.kitLinks),
		Answers:       len(s.st.answers),
		Users:         len(s.st.users),
		Outbox:        len(s.st.outbox),
	}
}

// OutboxTypes returns the event types in the outbox in insertion order.
func (s *Store) OutboxTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.st.outbox))
	for _, r := range s.st.outbox {
		out = append(out, r.EventType)
	}
	return out
}

// ── Reads ──────────────────────────────────────────────────────────────────

func (s *Store) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.events[id]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	e.Questions = append([]model.Question(nil), e.Questions...)
	return &e, nil
}

func (s *Store) GetEventStatus(_ context.Context, id string) (model.EventStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.events[id]
	if !ok {
		return "", model.ErrEventNotFound
	}
	return e.Status, nil
}

func (s *Store) GetModality(_ context.Context, id string) (*model.Modality, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.st.modalities[id]
	if !ok {
		return nil, model.ErrModalityNotFound
	}
	return &m, nil
}

func (s *Store) GetKitItem(_ context.Context, id string) (*model.KitItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.st.kits[id]
	if !ok {
		return nil, model.ErrKitItemNotFound
	}
	k.Sizes = append([]model.SizeStock(nil), k.Sizes...)
	return &k, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) HasCapturedPayment(_ context.Context, registrationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.captured[registrationID], nil
}

func (s *Store) GetRegistration(_ context.Context, id string) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.st.registrations[id]
	if !ok {
		return nil, model.ErrRegistrationNotFound
	}
	for _, l := range s.st.modalityLinks {
		if l.RegistrationID == id {
			r.Modalities = append(r.Modalities, l)
		}
	}
	for _, l := range s.st.kitLinks {
		if l.RegistrationID == id {
			r.KitItems = append(r.KitItems, l)
		}
	}
	for _, a := range s.st.answers {
		if a.RegistrationID == id {
			r.Answers = append(r.Answers, a)
		}
	}
	return &r, nil
}

func (s *Store) ListByEvent(_ context.Context, eventID string) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Registration
	for _, r := range s.st.registrations {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) HasActiveRegistration(_ context.Context, eventID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.hasActive(eventID, userID), nil
}

func (s *Store) ListMissingCredentials(_ context.Context, limit int) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Registration
	for _, r := range s.st.registrations {
		if r.Credential == nil && r.Status != model.RegistrationCancelled {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AttachCredential(_ context.Context, registrationID, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.st.registrations[registrationID]
	if !ok {
		return model.ErrRegistrationNotFound
	}
	if r.Credential == nil {
		r.Credential = &credential
		s.st.registrations[registrationID] = r
	}
	return nil
}

// ── Outbox ─────────────────────────────────────────────────────────────────

func (s *Store) FetchUnpublished(_ context.Context, limit int) ([]ports.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.OutboxRecord
	for _, r := range s.st.outbox {
		if r.PublishedAt != nil {
			continue
		}
		out = append(out, r.OutboxRecord)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.st.outbox {
		if s.st.outbox[i].ID == id {
			s.st.outbox[i].PublishedAt = &at
		}
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id string, errMsg string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.st.outbox {
		if s.st.outbox[i].ID == id {
			s.st.outbox[i].RetryCount++
			s.st.outbox[i].LastError = errMsg
		}
	}
	return nil
}

func (st *state) hasActive(eventID, userID string) bool {
	for _, r := range st.registrations {
		if r.EventID == eventID && r.UserID == userID && r.Status != model.RegistrationCancelled {
			return true
		}
	}
	return false
}

// ── Transaction ───────────────────────────────────────────────────────────

type tx struct {
	st *state
}

func (t *tx) InsertRegistration(_ context.Context, reg *model.Registration) error {
	if t.st.hasActive(reg.EventID, reg.UserID) {
		return model.ErrDuplicate
	}
	r := *reg
	r.Modalities, r.KitItems, r.Answers = nil, nil, nil
	t.st.registrations[r.ID] = r
	return nil
}

func (t *tx) InsertModalityLink(_ context.Context, link model.RegistrationModality) error {
	for _, l := range t.st.modalityLinks {
		if l == link {
			return model.Invalid("modality linked twice")
		}
	}
	t.st.modalityLinks = append(t.st.modalityLinks, link)
	return nil
}

func (t *tx) InsertKitItemLink(_ context.Context, link model.RegistrationKitItem) error {
	t.st.kitLinks = append(t.st.kitLinks, link)
	return nil
}

func (t *tx) InsertAnswers(_ context.Context, answers []model.QuestionAnswer) error {
	t.st.answers = append(t.st.answers, answers...)
	return nil
}

func (t *tx) CreateInvitedUser(_ context.Context, invitedBy string, profile model.UserProfile) (string, error) {
	email := strings.ToLower(profile.Email)
	for _, u := range t.st.users {
		if strings.ToLower(u.Email) == email {
			return "", model.ErrEmailTaken
		}
	}
	inviter := invitedBy
	u := model.User{
		ID:          uuid.NewString(),
		Name:        profile.Name,
		Email:       email,
		IsActive:    false,
		InvitedByID: &inviter,
	}
	t.st.users[u.ID] = u
	return u.ID, nil
}

func (t *tx) IncrementParticipants(_ context.Context, modalityID string) error {
	m, ok := t.st.modalities[modalityID]
	if !ok {
		return model.ErrModalityNotFound
	}
	if !m.HasCapacity() {
		return model.ErrModalityFull
	}
	m.CurrentParticipants++
	t.st.modalities[modalityID] = m
	return nil
}

func (t *tx) DecrementParticipants(_ context.Context, modalityID string) error {
	m, ok := t.st.modalities[modalityID]
	if !ok {
		return model.ErrModalityNotFound
	}
	if m.CurrentParticipants > 0 {
		m.CurrentParticipants--
	}
	t.st.modalities[modalityID] = m
	return nil
}

func (t *tx) AdjustStock(_ context.Context, kitItemID, size string, delta int) error {
	k, ok := t.st.kits[kitItemID]
	if !ok {
		return model.ErrKitItemNotFound
	}
	for i := range k.Sizes {
		if k.Sizes[i].Size != size {
			continue
		}
		if k.Sizes[i].Stock+delta < 0 {
			return model.ErrInsufficientStock
		}
		k.Sizes[i].Stock += delta
		t.st.kits[kitItemID] = k
		return nil
	}
	return model.ErrUnknownSize
}

func (t *tx) TransitionStatus(_ context.Context, id string, from, to model.RegistrationStatus) (bool, error) {
	r, ok := t.st.registrations[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	t.st.registrations[id] = r
	return true, nil
}

func (t *tx) CancelUnpaid(ctx context.Context, id string) (bool, error) {
	if t.st.captured[id] {
		return false, nil
	}
	return t.TransitionStatus(ctx, id, model.RegistrationPending, model.RegistrationCancelled)
}

func (t *tx) HasCapturedPayment(_ context.Context, registrationID string) (bool, error) {
	return t.st.captured[registrationID], nil
}

func (t *tx) ListModalityLinks(_ context.Context, registrationID string) ([]model.RegistrationModality, error) {
	var out []model.RegistrationModality
	for _, l := range t.st.modalityLinks {
		if l.RegistrationID == registrationID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (t *tx) ListKitItemLinks(_ context.Context, registrationID string) ([]model.RegistrationKitItem, error) {
	var out []model.RegistrationKitItem
	for _, l := range t.st.kitLinks {
		if l.RegistrationID == registrationID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (t *tx) EnqueueOutbox(_ context.Context, event ports.OutboxEvent) error {
	t.st.outbox = append(t.st.outbox, outboxRow{OutboxRecord: ports.OutboxRecord{
		ID:           event.ID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      event.Payload,
		CreatedAt:    event.OccurredAt,
	}})
	return nil
}
