package credential

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

// RetryWorker attaches credentials to registrations whose first attempt failed.
type RetryWorker struct {
	logger    *zap.Logger
	regs      ports.RegistrationReader
	gen       ports.CredentialGenerator
	interval  time.Duration
	batchSize int
}

func NewRetryWorker(logger *zap.Logger, regs ports.RegistrationReader, gen ports.CredentialGenerator, interval time.Duration, batchSize int) *RetryWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &RetryWorker{logger: logger, regs: regs, gen: gen, interval: interval, batchSize: batchSize}
}

func (w *RetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("credential retry iteration failed",
				zap.String("module", "credential.retry_worker"),
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

// ProcessOnce handles one batch and returns how many credentials were attached.
func (w *RetryWorker) ProcessOnce(ctx context.Context) (int, error) {
	regs, err := w.regs.ListMissingCredentials(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	attached := 0
	for _, r := range regs {
		cred, err := w.gen.Generate(ctx, ports.CredentialPayload{
			RegistrationID: r.ID,
			EventID:        r.EventID,
			UserID:         r.UserID,
		})
		if err != nil {
			w.logger.Warn("credential generation failed",
				zap.String("registration_id", r.ID),
				zap.Error(err),
			)
			continue
		}
		if err := w.regs.AttachCredential(ctx, r.ID, cred); err != nil {
			w.logger.Warn("credential attach failed",
				zap.String("registration_id", r.ID),
				zap.Error(err),
			)
			continue
		}
		attached++
	}
	return attached, nil
}
