// Path: internal/config/config.go
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the harvester.
type Config struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	ArXiv    ArXivConfig    `mapstructure:"arxiv"`
	Backfill BackfillConfig `mapstructure:"backfill"`
	Log      LogConfig      `mapstructure:"log"`
}

// PostgresConfig holds the database connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DB       string `mapstructure:"db"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Schema   string `mapstructure:"schema"`
	Table    string `mapstructure:"table"`
	SSLMode  string `mapstructure:"sslmode"`

	// Docker secret files. When both are readable their contents
	// override User and Password.
	UserFile     string `mapstructure:"user_file"`
	PasswordFile string `mapstructure:"password_file"`
}

// ArXivConfig holds settings for the OAI-PMH client.
type ArXivConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	RateLimitDelay   int    `mapstructure:"rate_limit_delay"` // seconds between requests
	MaxRetries       int    `mapstructure:"max_retries"`
	RequestTimeout   int    `mapstructure:"request_timeout"` // seconds
	BatchSize        int    `mapstructure:"batch_size"`      // upsert progress-log cadence
	FollowResumption bool   `mapstructure:"follow_resumption"`
}

// BackfillConfig holds the backfill pacing knobs. The defaults match the
// original operational values: 7 dates per chunk, 5 seconds between chunks.
type BackfillConfig struct {
	ChunkSize     int `mapstructure:"chunk_size"`
	ChunkCooldown int `mapstructure:"chunk_cooldown"` // seconds
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// Load loads the configuration from file and environment variables.
func Load() (*Config, error) {
	// Set default values
	viper.SetDefault("POSTGRES.HOST", "localhost")
	viper.SetDefault("POSTGRES.PORT", 5432)
	viper.SetDefault("POSTGRES.DB", "")
	viper.SetDefault("POSTGRES.USER", "")
	viper.SetDefault("POSTGRES.PASSWORD", "")
	viper.SetDefault("POSTGRES.SCHEMA", "arxiv")
	viper.SetDefault("POSTGRES.TABLE", "metadata")
	viper.SetDefault("POSTGRES.SSLMODE", "disable")
	viper.SetDefault("POSTGRES.USER_FILE", "")
	viper.SetDefault("POSTGRES.PASSWORD_FILE", "")
	viper.SetDefault("ARXIV.BASE_URL", "http://export.arxiv.org/oai2")
	viper.SetDefault("ARXIV.RATE_LIMIT_DELAY", 3)
	viper.SetDefault("ARXIV.MAX_RETRIES", 3)
	viper.SetDefault("ARXIV.REQUEST_TIMEOUT", 60)
	viper.SetDefault("ARXIV.BATCH_SIZE", 2000)
	viper.SetDefault("ARXIV.FOLLOW_RESUMPTION", false)
	viper.SetDefault("BACKFILL.CHUNK_SIZE", 7)
	viper.SetDefault("BACKFILL.CHUNK_COOLDOWN", 5)
	viper.SetDefault("LOG.LEVEL", "info")
	viper.SetDefault("LOG.FORMAT", "text")

	// Load from config file
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err // Only return error if it's not a "file not found" error
		}
	}

	// Load from environment variables (POSTGRES_HOST, ARXIV_MAX_RETRIES, ...)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Postgres.loadSecretFiles(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadSecretFiles overrides User and Password from Docker secret files when
// both files exist. Missing files are not an error; the plain settings apply.
func (p *PostgresConfig) loadSecretFiles() error {
	if p.UserFile == "" || p.PasswordFile == "" {
		return nil
	}
	user, errU := os.ReadFile(p.UserFile)
	pass, errP := os.ReadFile(p.PasswordFile)
	if errU != nil || errP != nil {
		return nil
	}
	p.User = strings.TrimSpace(string(user))
	p.Password = strings.TrimSpace(string(pass))
	return nil
}

// DSN renders the pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.DB, p.User, p.Password, p.SSLMode)
}

// RateLimitDelayDuration returns the configured delay as a time.Duration.
func (a ArXivConfig) RateLimitDelayDuration() time.Duration {
	return time.Duration(a.RateLimitDelay) * time.Second
}

// RequestTimeoutDuration returns the per-request HTTP timeout.
func (a ArXivConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(a.RequestTimeout) * time.Second
}

// ChunkCooldownDuration returns the pause inserted between backfill chunks.
func (b BackfillConfig) ChunkCooldownDuration() time.Duration {
	return time.Duration(b.ChunkCooldown) * time.Second
}

// SetupLogger builds the process-wide slog logger from the log settings.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
