package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/race-registration/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, int64(500), cfg.Registration.FeeBasisPoints)
	require.True(t, cfg.Registration.RestockKitOnCancel)
	require.Equal(t, 15*time.Second, cfg.Cache.EventTTL)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_port: "9000"
database:
  host: db.internal
  name: races
registration:
  fee_basis_points: 250
kafka:
  brokers: ["k1:9092"]
  topics:
    registration.created: race.registrations
cache:
  event_ttl: 30s
`), 0o600))

	t.Setenv("DB_HOST", "db.override")
	t.Setenv("REGISTRATION_RESTOCK_KIT_ON_CANCEL", "false")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "9000", cfg.HTTPPort)
	require.Equal(t, "db.override", cfg.Database.Host)
	require.Equal(t, "races", cfg.Database.Name)
	require.Equal(t, int64(250), cfg.Registration.FeeBasisPoints)
	require.False(t, cfg.Registration.RestockKitOnCancel)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "race.registrations", cfg.Kafka.Topics["registration.created"])
	require.Equal(t, 30*time.Second, cfg.Cache.EventTTL)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestMissingFileIsIgnored(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("REGISTRATION_FEE_BASIS_POINTS", "20000")
	_, err := config.Load("")
	require.Error(t, err)

	cfg := config.Defaults()
	cfg.Tracing.SampleRatio = 1.5
	require.Error(t, cfg.Validate())

	cfg = config.Defaults()
	cfg.Kafka.Brokers = []string{"k:9092"}
	cfg.Kafka.ConsumerGroup = ""
	require.Error(t, cfg.Validate())
}

func TestDatabaseURLs(t *testing.T) {
	parts := config.Database{Host: "localhost", Port: "5432", User: "postgres", Password: "pw", Name: "racereg", SSLMode: "disable"}
	require.Equal(t, "host=localhost port=5432 user=postgres password=pw dbname=racereg sslmode=disable", parts.DSN())
	require.Equal(t, "pgx5://postgres:pw@localhost:5432/racereg?sslmode=disable", parts.MigrationURL())

	db := config.Database{URL: "postgres://u:p@h:5432/db?sslmode=disable"}
	require.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", db.MigrationURL())
	require.Equal(t, db.URL, db.DSN())
}
