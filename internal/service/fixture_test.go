package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/race-registration/internal/memstore"
	"github.com/Shivanand-hulikatti/race-registration/internal/model"
	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
	"github.com/Shivanand-hulikatti/race-registration/internal/service"
)

const (
	eventID   = "evt-city-run"
	otherEvt  = "evt-trail"
	qContact  = "q-emergency-contact"
	qTeam     = "q-team"
	qMedical  = "q-medical"
	mod5k     = "mod-5k"
	mod10k    = "mod-10k"
	kitShirt  = "kit-shirt"
	actorA    = "user-a"
	actorB    = "user-b"
	intruder  = "user-mallory"
	feeBps    = 500
	price10k  = 10000
	price5k   = 6000
	shirtSize = "M"
)

var baseNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

// bookingResult is the outcome of one concurrent registration attempt.
type bookingResult struct {
	UserID string
	Reg    *model.Registration
	Err    error
}

type fixture struct {
	store *memstore.Store
	svc   *service.RegistrationService
	now   time.Time
}

type fixtureOption func(*service.Deps, *service.Config)

func withCredentials(gen ports.CredentialGenerator) fixtureOption {
	return func(d *service.Deps, _ *service.Config) { d.Credentials = gen }
}

func withoutRestock() fixtureOption {
	return func(_ *service.Deps, c *service.Config) { c.RestockKitOnCancel = false }
}

func withStore(wrap func(*memstore.Store) ports.Store) fixtureOption {
	return func(d *service.Deps, _ *service.Config) { d.Store = wrap(d.Store.(*memstore.Store)) }
}

// newFixture seeds a published event with an open window, two modalities
// and a shirt kit item.
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	store := memstore.New()
	store.PutEvent(model.Event{
		ID:     eventID,
		Name:   "City Run",
		Status: model.EventStatusPublished,
		RegistrationWindow: model.Window{
			Start: baseNow.Add(-24 * time.Hour),
			End:   baseNow.Add(24 * time.Hour),
		},
		EventDate: baseNow.Add(7 * 24 * time.Hour),
		Questions: []model.Question{
			{ID: qContact, Text: "Emergency contact", IsRequired: true},
			{ID: qTeam, Text: "Team name", IsRequired: false},
		},
	})
	store.PutEvent(model.Event{
		ID:     otherEvt,
		Name:   "Trail",
		Status: model.EventStatusPublished,
		RegistrationWindow: model.Window{
			Start: baseNow.Add(-24 * time.Hour),
			End:   baseNow.Add(24 * time.Hour),
		},
		EventDate: baseNow.Add(7 * 24 * time.Hour),
	})
	store.PutModality(model.Modality{ID: mod10k, EventID: eventID, Name: "10K", IsActive: true, Price: price10k, MaxParticipants: intPtr(100)})
	store.PutModality(model.Modality{ID: mod5k, EventID: eventID, Name: "5K", IsActive: true, Price: price5k})
	store.PutKitItem(model.KitItem{ID: kitShirt, EventID: eventID, Name: "Shirt", Sizes: []model.SizeStock{
		{Size: "S", Stock: 5},
		{Size: shirtSize, Stock: 5},
	}})

	deps := service.Deps{Store: store, Now: func() time.Time { return baseNow }}
	cfg := service.Config{FeeBasisPoints: feeBps, RestockKitOnCancel: true}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}
	return &fixture{store: store, svc: service.NewRegistrationService(deps, cfg), now: baseNow}
}

// request is a valid request for the 10K with the required answer.
func request(modalities ...string) model.CreateRegistrationRequest {
	if len(modalities) == 0 {
		modalities = []string{mod10k}
	}
	return model.CreateRegistrationRequest{
		ModalityIDs:   modalities,
		TermsAccepted: true,
		RulesAccepted: true,
		Answers:       []model.AnswerInput{{QuestionID: qContact, Answer: "Jordan 555-0100"}},
	}
}

func withShirt(req model.CreateRegistrationRequest, size string, qty int) model.CreateRegistrationRequest {
	req.KitItems = append(req.KitItems, model.KitItemSelection{KitItemID: kitShirt, Size: size, Quantity: qty})
	return req
}

func (f *fixture) participants(t *testing.T, modalityID string) int {
	t.Helper()
	m, err := f.store.GetModality(context.Background(), modalityID)
	require.NoError(t, err)
	return m.CurrentParticipants
}

func (f *fixture) stock(t *testing.T, kitID, size string) int {
	t.Helper()
	k, err := f.store.GetKitItem(context.Background(), kitID)
	require.NoError(t, err)
	n, ok := k.Stock(size)
	require.True(t, ok)
	return n
}

// stockFailTx refuses every stock adjustment, after whatever the
// transaction did before it.
type stockFailTx struct{ ports.Tx }

func (stockFailTx) AdjustStock(context.Context, string, string, int) error {
	return model.ErrInsufficientStock
}

type stockFailStore struct{ *memstore.Store }

func (s stockFailStore) WithinTx(ctx context.Context, fn func(context.Context, ports.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return fn(ctx, stockFailTx{tx})
	})
}
