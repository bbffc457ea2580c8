package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/race-registration/internal/cache"
	"github.com/Shivanand-hulikatti/race-registration/internal/config"
	"github.com/Shivanand-hulikatti/race-registration/internal/credential"
	"github.com/Shivanand-hulikatti/race-registration/internal/database"
	"github.com/Shivanand-hulikatti/race-registration/internal/observability"
	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
	"github.com/Shivanand-hulikatti/race-registration/internal/repository"
	"github.com/Shivanand-hulikatti/race-registration/internal/service"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "registration",
	Short:         "Race event registration engine",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"YAML config file (environment variables override it)")
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd)
}

// app holds the wired dependencies shared by serve and worker.
type app struct {
	cfg         config.Config
	logger      *zap.Logger
	tracer      trace.Tracer
	pool        *pgxpool.Pool
	repo        *repository.Store
	store       ports.Store
	credentials ports.CredentialGenerator
	redis       *redis.Client
	shutdown    func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	tracer, shutdown, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("database: %w", err)
	}
	logger.Info("connected to PostgreSQL")

	a := &app{
		cfg:      cfg,
		logger:   logger,
		tracer:   tracer,
		pool:     pool,
		shutdown: shutdown,
	}
	a.repo = repository.NewStore(pool)
	a.store = cache.WithEventCache(a.repo, cfg.Cache.EventTTL)

	if err := a.wireCredentials(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// wireCredentials builds the credential generator. Without a signing key
// registrations are stored without a credential.
func (a *app) wireCredentials(ctx context.Context) error {
	if a.cfg.Credential.SigningKey == "" {
		a.logger.Warn("credential signing key not configured; credentials disabled")
		return nil
	}
	gen, err := credential.NewJWTGenerator(a.cfg.Credential.SigningKey, a.cfg.Credential.Issuer)
	if err != nil {
		return err
	}
	a.credentials = gen

	if a.cfg.Redis.URL == "" {
		return nil
	}
	client, err := credential.Connect(ctx, a.cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	a.redis = client
	a.credentials = credential.NewCachedGenerator(client, gen, a.cfg.Credential.CacheTTL)
	return nil
}

func (a *app) registrationService() *service.RegistrationService {
	return service.NewRegistrationService(service.Deps{
		Store:       a.store,
		Credentials: a.credentials,
		Logger:      a.logger,
		Tracer:      a.tracer,
	}, service.Config{
		FeeBasisPoints:     a.cfg.Registration.FeeBasisPoints,
		RestockKitOnCancel: a.cfg.Registration.RestockKitOnCancel,
	})
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.pool.Close()
	_ = a.shutdown(context.Background())
	_ = a.logger.Sync()
}
