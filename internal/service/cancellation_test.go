package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/race-registration/internal/memstore"
	"github.com/Shivanand-hulikatti/race-registration/internal/model"
	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
	"github.com/Shivanand-hulikatti/race-registration/internal/service"
)

func TestCancelReleasesCapacityAndStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.CreateRegistration(ctx, actorA, eventID, withShirt(request(mod10k, mod5k), shirtSize, 2))
	require.NoError(t, err)
	require.Equal(t, 3, f.stock(t, kitShirt, shirtSize))

	cancelled, err := f.svc.CancelRegistration(ctx, reg.ID, actorA)
	require.NoError(t, err)
	require.Equal(t, model.RegistrationCancelled, cancelled.Status)

	require.Equal(t, 0, f.participants(t, mod10k))
	require.Equal(t, 0, f.participants(t, mod5k))
	require.Equal(t, 5, f.stock(t, kitShirt, shirtSize))

	stored, err := f.store.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, model.RegistrationCancelled, stored.Status)
	require.Equal(t, []string{service.EventRegistrationCreated, service.EventRegistrationCancelled}, f.store.OutboxTypes())
}

func TestCancelTwiceCompensatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRegistration(ctx, actorB, eventID, request())
	require.NoError(t, err)
	reg, err := f.svc.CreateRegistration(ctx, actorA, eventID, withShirt(request(), shirtSize, 1))
	require.NoError(t, err)
	require.Equal(t, 2, f.participants(t, mod10k))

	_, err = f.svc.CancelRegistration(ctx, reg.ID, actorA)
	require.NoError(t, err)

	_, err = f.svc.CancelRegistration(ctx, reg.ID, actorA)
	require.ErrorIs(t, err, model.ErrAlreadyCancelled)
	require.ErrorIs(t, err, model.ErrConflict)

	require.Equal(t, 1, f.participants(t, mod10k))
	require.Equal(t, 5, f.stock(t, kitShirt, shirtSize))
	require.Len(t, f.store.OutboxTypes(), 3)
}

func TestConcurrentCancelsReleaseOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRegistration(ctx, actorB, eventID, request())
	require.NoError(t, err)
	reg, err := f.svc.CreateRegistration(ctx, actorA, eventID, request())
	require.NoError(t, err)

	const attempts = 10
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CancelRegistration(ctx, reg.ID, actorA)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, model.ErrAlreadyCancelled)
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, f.participants(t, mod10k))
}

func TestCancelWithoutRestockKeepsStock(t *testing.T) {
	f := newFixture(t, withoutRestock())
	ctx := context.Background()

	reg, err := f.svc.CreateRegistration(ctx, actorA, eventID, withShirt(request(), shirtSize, 2))
	require.NoError(t, err)

	_, err = f.svc.CancelRegistration(ctx, reg.ID, actorA)
	require.NoError(t, err)
	require.Equal(t, 0, f.participants(t, mod10k))
	require.Equal(t, 3, f.stock(t, kitShirt, shirtSize))
}

func TestCancelRejections(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, f *fixture, regID string)
		actor   string
		want    error
	}{
		{
			name:  "stranger",
			actor: intruder,
			want:  model.ErrNotOwner,
		},
		{
			name: "payment captured",
			prepare: func(_ *testing.T, f *fixture, regID string) {
				f.store.CapturePayment(regID)
			},
			actor: actorA,
			want:  model.ErrRegistrationPaid,
		},
		{
			name: "confirmed",
			prepare: func(t *testing.T, f *fixture, regID string) {
				require.NoError(t, f.svc.ConfirmRegistration(context.Background(), regID))
			},
			actor: actorA,
			want:  model.ErrRegistrationPaid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			reg, err := f.svc.CreateRegistration(ctx, actorA, eventID, request())
			require.NoError(t, err)
			if tt.prepare != nil {
				tt.prepare(t, f, reg.ID)
			}

			_, err = f.svc.CancelRegistration(ctx, reg.ID, tt.actor)
			require.ErrorIs(t, err, tt.want)
			require.Equal(t, 1, f.participants(t, mod10k))

			stored, err := f.store.GetRegistration(ctx, reg.ID)
			require.NoError(t, err)
			require.NotEqual(t, model.RegistrationCancelled, stored.Status)
		})
	}
}

// lateCaptureStore captures the payment of *regID just before each
// transaction, after the service has read the payment state.
type lateCaptureStore struct {
	*memstore.Store
	regID *string
}

func (s lateCaptureStore) WithinTx(ctx context.Context, fn func(context.Context, ports.Tx) error) error {
	if *s.regID != "" {
		s.CapturePayment(*s.regID)
	}
	return s.Store.WithinTx(ctx, fn)
}

func TestCancelRefusesPaymentCapturedDuringCancel(t *testing.T) {
	var regID string
	f := newFixture(t, withStore(func(s *memstore.Store) ports.Store { return lateCaptureStore{s, &regID} }))
	ctx := context.Background()

	reg, err := f.svc.CreateRegistration(ctx, actorA, eventID, withShirt(request(), shirtSize, 1))
	require.NoError(t, err)
	regID = reg.ID

	_, err = f.svc.CancelRegistration(ctx, reg.ID, actorA)
	require.ErrorIs(t, err, model.ErrRegistrationPaid)

	stored, err := f.store.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, model.RegistrationPending, stored.Status)
	require.Equal(t, 1, f.participants(t, mod10k))
	require.Equal(t, 4, f.stock(t, kitShirt, shirtSize))
	require.Equal(t, []string{service.EventRegistrationCreated}, f.store.OutboxTypes())
}

func TestCancelUnknownRegistration(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CancelRegistration(context.Background(), "reg-ghost", actorA)
	require.ErrorIs(t, err, model.ErrRegistrationNotFound)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestConfirmRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.CreateRegistration(ctx, actorA, eventID, request())
	require.NoError(t, err)

	require.NoError(t, f.svc.ConfirmRegistration(ctx, reg.ID))
	stored, err := f.store.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, model.RegistrationConfirmed, stored.Status)
	require.Equal(t, []string{service.EventRegistrationCreated, service.EventRegistrationConfirmed}, f.store.OutboxTypes())

	err = f.svc.ConfirmRegistration(ctx, reg.ID)
	require.ErrorIs(t, err, model.ErrNotPending)

	err = f.svc.ConfirmRegistration(ctx, "reg-ghost")
	require.ErrorIs(t, err, model.ErrRegistrationNotFound)
}

func TestGetRegistrationAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.CreateRegistration(ctx, actorA, eventID, request())
	require.NoError(t, err)

	got, err := f.svc.GetRegistration(ctx, reg.ID, actorA)
	require.NoError(t, err)
	require.Equal(t, reg.ID, got.ID)
	require.Len(t, got.Modalities, 1)
	require.Len(t, got.Answers, 1)

	_, err = f.svc.GetRegistration(ctx, reg.ID, actorB)
	require.ErrorIs(t, err, model.ErrNotOwner)

	_, err = f.svc.GetRegistration(ctx, "", actorA)
	require.ErrorIs(t, err, model.ErrValidation)
}
