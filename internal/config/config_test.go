// Path: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadClean(t *testing.T) *Config {
	t.Helper()
	viper.Reset()
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadClean(t)

	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "arxiv", cfg.Postgres.Schema)
	assert.Equal(t, "metadata", cfg.Postgres.Table)
	assert.Equal(t, "http://export.arxiv.org/oai2", cfg.ArXiv.BaseURL)
	assert.Equal(t, 3, cfg.ArXiv.RateLimitDelay)
	assert.Equal(t, 3, cfg.ArXiv.MaxRetries)
	assert.Equal(t, 60, cfg.ArXiv.RequestTimeout)
	assert.Equal(t, 2000, cfg.ArXiv.BatchSize)
	assert.False(t, cfg.ArXiv.FollowResumption)
	assert.Equal(t, 7, cfg.Backfill.ChunkSize)
	assert.Equal(t, 5, cfg.Backfill.ChunkCooldown)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("POSTGRES_DB", "papers")
	t.Setenv("ARXIV_RATE_LIMIT_DELAY", "10")
	t.Setenv("ARXIV_FOLLOW_RESUMPTION", "true")
	t.Setenv("BACKFILL_CHUNK_SIZE", "14")

	cfg := loadClean(t)

	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Equal(t, "papers", cfg.Postgres.DB)
	assert.Equal(t, 10, cfg.ArXiv.RateLimitDelay)
	assert.True(t, cfg.ArXiv.FollowResumption)
	assert.Equal(t, 14, cfg.Backfill.ChunkSize)
}

func TestLoadSecretFiles(t *testing.T) {
	dir := t.TempDir()
	userFile := filepath.Join(dir, "postgres-u")
	passFile := filepath.Join(dir, "postgres-p")
	require.NoError(t, os.WriteFile(userFile, []byte("secret-user\n"), 0o600))
	require.NoError(t, os.WriteFile(passFile, []byte("secret-pass\n"), 0o600))

	t.Setenv("POSTGRES_USER", "plain-user")
	t.Setenv("POSTGRES_USER_FILE", userFile)
	t.Setenv("POSTGRES_PASSWORD_FILE", passFile)

	cfg := loadClean(t)

	assert.Equal(t, "secret-user", cfg.Postgres.User)
	assert.Equal(t, "secret-pass", cfg.Postgres.Password)
}

func TestLoadSecretFilesMissingAreIgnored(t *testing.T) {
	t.Setenv("POSTGRES_USER", "plain-user")
	t.Setenv("POSTGRES_USER_FILE", "/nonexistent/u")
	t.Setenv("POSTGRES_PASSWORD_FILE", "/nonexistent/p")

	cfg := loadClean(t)
	assert.Equal(t, "plain-user", cfg.Postgres.User)
}

func TestDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "localhost", Port: 5432, DB: "papers",
		User: "arxiv", Password: "pw", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 dbname=papers user=arxiv password=pw sslmode=disable",
		p.DSN())
}
