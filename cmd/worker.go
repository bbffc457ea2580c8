package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/race-registration/internal/credential"
	"github.com/Shivanand-hulikatti/race-registration/internal/events"
	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the outbox publisher, credential retry and payment consumer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		return runWorkers(ctx, a)
	},
}

func runWorkers(ctx context.Context, a *app) error {
	w := a.cfg.Workers
	g, gctx := errgroup.WithContext(ctx)

	var publisher ports.EventPublisher = events.NewLoggingPublisher(a.logger)
	if len(a.cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topics)
		if err != nil {
			return err
		}
		defer kp.Close()
		publisher = kp

		consumer, err := events.NewKafkaConsumer(a.cfg.Kafka.Brokers, a.cfg.Kafka.ConsumerGroup, []string{a.cfg.Kafka.PaymentTopic})
		if err != nil {
			return err
		}
		defer consumer.Close()
		payments := events.NewPaymentWorker(a.logger, consumer, a.registrationService(), a.cfg.Kafka.PaymentTopic, w.ConsumerPollInterval)
		g.Go(func() error { return ignoreCanceled(payments.Run(gctx)) })
	} else {
		a.logger.Warn("kafka brokers not configured; publishing events to the log and not consuming payments")
	}

	outbox := events.NewOutboxWorker(a.logger, a.repo, publisher, w.OutboxPollInterval, w.OutboxBatchSize)
	g.Go(func() error { return ignoreCanceled(outbox.Run(gctx)) })

	if a.credentials != nil {
		retry := credential.NewRetryWorker(a.logger, a.repo, a.credentials, w.CredentialRetryInterval, w.CredentialBatchSize)
		g.Go(func() error { return ignoreCanceled(retry.Run(gctx)) })
	}

	a.logger.Info("workers started", zap.Bool("kafka", len(a.cfg.Kafka.Brokers) > 0), zap.Bool("credentials", a.credentials != nil))
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
