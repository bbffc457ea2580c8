package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/race-registration/internal/events"
	"github.com/Shivanand-hulikatti/race-registration/internal/memstore"
	"github.com/Shivanand-hulikatti/race-registration/internal/model"
	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

type published struct {
	eventType string
	key       string
	payload   string
}

type recordingPublisher struct {
	mu      sync.Mutex
	sent    []published
	failFor map[string]bool
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, payload []byte, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[eventType] {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, published{eventType: eventType, key: key, payload: string(payload)})
	return nil
}

func enqueue(t *testing.T, s *memstore.Store, evts ...ports.OutboxEvent) {
	t.Helper()
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		for _, e := range evts {
			if err := tx.EnqueueOutbox(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestOutboxWorkerPublishesAndRetries(t *testing.T) {
	store := memstore.New()
	enqueue(t, store,
		ports.OutboxEvent{ID: "o1", EventType: "registration.created", PartitionKey: "evt-1", Payload: []byte(`{"registration_id":"r1"}`)},
		ports.OutboxEvent{ID: "o2", EventType: "registration.cancelled", PartitionKey: "evt-1", Payload: []byte(`{"registration_id":"r2"}`)},
	)
	pub := &recordingPublisher{failFor: map[string]bool{"registration.cancelled": true}}
	worker := events.NewOutboxWorker(zap.NewNop(), store, pub, time.Minute, 10)

	require.NoError(t, worker.ProcessOnce(context.Background()))
	require.Equal(t, []published{{eventType: "registration.created", key: "evt-1", payload: `{"registration_id":"r1"}`}}, pub.sent)

	pending, err := store.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "o2", pending[0].ID)
	require.Equal(t, 1, pending[0].RetryCount)

	pub.failFor = nil
	require.NoError(t, worker.ProcessOnce(context.Background()))
	require.Len(t, pub.sent, 2)

	pending, err = store.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

type fakeConsumer struct {
	batches   [][]events.Message
	pollErr   error
	committed []string
}

func (c *fakeConsumer) Poll(context.Context, int) ([]events.Message, error) {
	if len(c.batches) == 0 {
		return nil, c.pollErr
	}
	b := c.batches[0]
	c.batches = c.batches[1:]
	return b, c.pollErr
}

func (c *fakeConsumer) Commit(_ context.Context, msgs ...events.Message) error {
	for _, m := range msgs {
		c.committed = append(c.committed, string(m.Payload))
	}
	return nil
}

type fakeConfirmer struct {
	confirmed []string
	results   map[string]error
	// failures makes the next n calls for an id fail with a transient error.
	failures map[string]int
}

func (c *fakeConfirmer) ConfirmRegistration(_ context.Context, id string) error {
	if c.failures[id] > 0 {
		c.failures[id]--
		return errors.New("connection reset")
	}
	if err, ok := c.results[id]; ok {
		return err
	}
	c.confirmed = append(c.confirmed, id)
	return nil
}

func captured(id string) events.Message {
	return events.Message{Topic: "payment.captured", Payload: []byte(`{"registration_id":"` + id + `"}`)}
}

func TestPaymentWorkerConfirmsCapturedPayments(t *testing.T) {
	consumer := &fakeConsumer{batches: [][]events.Message{{
		captured("reg-1"),
		{Topic: "payment.captured", Payload: []byte(`not json`)},
		{Topic: "payment.captured", Payload: []byte(`{}`)},
		{Topic: "payment.refunded", Payload: []byte(`{"registration_id":"reg-2"}`)},
		captured("reg-3"),
		captured("reg-4"),
	}}}
	confirmer := &fakeConfirmer{results: map[string]error{
		"reg-3": model.ErrNotPending,
		"reg-4": model.ErrRegistrationNotFound,
	}}
	worker := events.NewPaymentWorker(zap.NewNop(), consumer, confirmer, "payment.captured", time.Minute)

	require.NoError(t, worker.ProcessOnce(context.Background()))
	require.Equal(t, []string{"reg-1"}, confirmer.confirmed)
	require.Len(t, consumer.committed, 6)
}

func TestPaymentWorkerRetriesTransientFailuresBeforeCommit(t *testing.T) {
	consumer := &fakeConsumer{batches: [][]events.Message{{captured("reg-1"), captured("reg-2")}}}
	confirmer := &fakeConfirmer{failures: map[string]int{"reg-1": 2}}
	worker := events.NewPaymentWorker(zap.NewNop(), consumer, confirmer, "payment.captured", time.Minute).
		WithRetryBackoff(time.Millisecond)

	require.NoError(t, worker.ProcessOnce(context.Background()))
	require.Equal(t, []string{"reg-1", "reg-2"}, confirmer.confirmed)
	require.Equal(t, []string{`{"registration_id":"reg-1"}`, `{"registration_id":"reg-2"}`}, consumer.committed)
}

func TestPaymentWorkerLeavesFailedMessageUncommitted(t *testing.T) {
	consumer := &fakeConsumer{batches: [][]events.Message{{captured("reg-1"), captured("reg-2"), captured("reg-3")}}}
	confirmer := &fakeConfirmer{failures: map[string]int{"reg-2": 1 << 20}}
	worker := events.NewPaymentWorker(zap.NewNop(), consumer, confirmer, "payment.captured", time.Minute).
		WithRetryBackoff(time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := worker.ProcessOnce(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, []string{"reg-1"}, confirmer.confirmed)
	require.Equal(t, []string{`{"registration_id":"reg-1"}`}, consumer.committed)
}

func TestPaymentWorkerHandlesBatchBeforePollError(t *testing.T) {
	pollErr := errors.New("broker went away")
	consumer := &fakeConsumer{batches: [][]events.Message{{captured("reg-1")}}, pollErr: pollErr}
	confirmer := &fakeConfirmer{}
	worker := events.NewPaymentWorker(zap.NewNop(), consumer, confirmer, "payment.captured", time.Minute)

	require.ErrorIs(t, worker.ProcessOnce(context.Background()), pollErr)
	require.Equal(t, []string{"reg-1"}, confirmer.confirmed)
	require.Len(t, consumer.committed, 1)
}

func TestLoggingPublisherAcceptsEverything(t *testing.T) {
	pub := events.NewLoggingPublisher(zap.NewNop())
	require.NoError(t, pub.Publish(context.Background(), "registration.created", []byte(`{}`), "evt-1"))
}

func TestKafkaClientsRequireBrokers(t *testing.T) {
	_, err := events.NewKafkaPublisher(nil, nil)
	require.Error(t, err)
	_, err = events.NewKafkaConsumer(nil, "group", []string{"payment.captured"})
	require.Error(t, err)
	_, err = events.NewKafkaConsumer([]string{"localhost:9092"}, "", []string{"payment.captured"})
	require.Error(t, err)
}
