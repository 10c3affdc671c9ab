package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "test-secret", cfg.JWT.Secret)
	assert.Equal(t, 5*time.Second, cfg.Transition.Timeout)
	assert.Equal(t, 10, cfg.Transition.MinRejectionReason)
	assert.Equal(t, 50, cfg.Notifications.BatchSize)
	assert.Equal(t, 5, cfg.Notifications.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Notifications.DispatchTimeout)
	assert.Equal(t, "log", cfg.Notifications.Channel)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9090
database:
  driver: sqlite
  sqlite_path: /tmp/store.db
  host: db.internal
jwt:
  secret: from-file
notifications:
  batch_size: 10
  dispatch_timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("DB_HOST", "db.override")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "db.override", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, 10, cfg.Notifications.BatchSize)
	assert.Equal(t, 3*time.Second, cfg.Notifications.DispatchTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsBadChannel(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("NOTIFICATIONS_CHANNEL", "pigeon")

	_, err := load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "notifications.channel")
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestPostgresDSN(t *testing.T) {
	var cfg Config
	cfg.Database.User = "app"
	cfg.Database.Password = "pw"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.Name = "storage_db"
	cfg.Database.SSLMode = "disable"

	assert.Equal(t, "postgres://app:pw@localhost:5432/storage_db?sslmode=disable", cfg.PostgresDSN())
}

func TestFetchSecretFromR2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recovery/config/jwt_secret.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("r2-secret\n"))
	}))
	defer srv.Close()

	r2 := R2Config{
		Endpoint:        srv.URL,
		Bucket:          "recovery",
		Region:          "auto",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
	}
	require.True(t, r2.Enabled())

	assert.Equal(t, "r2-secret", FetchSecretFromR2(r2, "config/jwt_secret.txt"))
	assert.Equal(t, "", FetchSecretFromR2(r2, "config/missing.txt"))
}
