package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/race-registration/internal/model"
)

// Confirmer confirms a registration whose payment was captured.
type Confirmer interface {
	ConfirmRegistration(ctx context.Context, registrationID string) error
}

type paymentCaptured struct {
	RegistrationID string `json:"registration_id"`
}

// PaymentWorker turns payment.captured messages into confirmations.
// A message is committed only once it reached a definitive outcome, so a
// transient confirmation failure never loses a capture.
type PaymentWorker struct {
	logger     *zap.Logger
	consumer   Consumer
	confirmer  Confirmer
	topic      string
	interval   time.Duration
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewPaymentWorker(logger *zap.Logger, consumer Consumer, confirmer Confirmer, topic string, interval time.Duration) *PaymentWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &PaymentWorker{
		logger:     logger,
		consumer:   consumer,
		confirmer:  confirmer,
		topic:      topic,
		interval:   interval,
		backoff:    200 * time.Millisecond,
		maxBackoff: 5 * time.Second,
	}
}

// WithRetryBackoff sets the first delay between confirmation retries.
func (w *PaymentWorker) WithRetryBackoff(d time.Duration) *PaymentWorker {
	if d > 0 {
		w.backoff = d
		if w.maxBackoff < d {
			w.maxBackoff = d
		}
	}
	return w
}

func (w *PaymentWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("payment consumer iteration failed",
				zap.String("module", "events.payment_worker"),
				zap.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce handles one polled batch in order and commits the handled
// prefix. Messages polled before a poll error are still handled.
func (w *PaymentWorker) ProcessOnce(ctx context.Context) error {
	msgs, pollErr := w.consumer.Poll(ctx, 50)

	done := make([]Message, 0, len(msgs))
	var handleErr error
	for _, msg := range msgs {
		if handleErr = w.handle(ctx, msg); handleErr != nil {
			break
		}
		done = append(done, msg)
	}
	if len(done) > 0 {
		// Handled messages are committed even when ctx is being cancelled.
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := w.consumer.Commit(commitCtx, done...); err != nil {
			return fmt.Errorf("commit payment messages: %w", err)
		}
	}
	if handleErr != nil {
		return handleErr
	}
	return pollErr
}

// handle returns nil once msg needs no further delivery. Transient
// confirmation failures are retried until ctx ends.
func (w *PaymentWorker) handle(ctx context.Context, msg Message) error {
	if msg.Topic != w.topic {
		return nil
	}
	var evt paymentCaptured
	if err := json.Unmarshal(msg.Payload, &evt); err != nil || evt.RegistrationID == "" {
		w.logger.Warn("malformed payment event", zap.ByteString("payload", msg.Payload), zap.Error(err))
		return nil
	}

	delay := w.backoff
	for {
		err := w.confirmer.ConfirmRegistration(ctx, evt.RegistrationID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, model.ErrNotPending):
			w.logger.Info("payment for non-pending registration skipped",
				zap.String("registration_id", evt.RegistrationID))
			return nil
		case errors.Is(err, model.ErrRegistrationNotFound):
			w.logger.Warn("payment for unknown registration dropped",
				zap.String("registration_id", evt.RegistrationID))
			return nil
		}

		w.logger.Warn("confirm registration failed, retrying",
			zap.String("registration_id", evt.RegistrationID),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, w.maxBackoff)
	}
}
