package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the news analyzer API server and worker.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Auth     AuthConfig
	Preview  PreviewConfig
	Worker   WorkerConfig
	Sweeper  SweeperConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	RequestsPerMinute int
	AllowedOrigins    []string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL       string
	JobDetail time.Duration
}

type QueueConfig struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type PreviewConfig struct {
	TTL      time.Duration
	PageSize int
}

type WorkerConfig struct {
	Concurrency    int
	MaxRetryWindow time.Duration
}

type SweeperConfig struct {
	Schedule      string
	PurgeSchedule string
	StaleAfter    time.Duration
	CancelAfter   time.Duration
	PurgeAfter    time.Duration
}

const minSecretLen = 32

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is loaded first when present; real environment
// variables take precedence over it.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("NEWSANALYZER_PORT", 8080),
			Env:               envString("NEWSANALYZER_ENV", "development"),
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
			AllowedOrigins:    envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			QueryTimeout:    envDuration("DATABASE_QUERY_TIMEOUT", 5*time.Second),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL:       os.Getenv("REDIS_URL"),
			JobDetail: envDuration("REDIS_JOB_DETAIL_TTL", 30*time.Second),
		},
		Queue: QueueConfig{
			URL:        os.Getenv("AMQP_URL"),
			Exchange:   envString("AMQP_EXCHANGE", "analyzer"),
			Queue:      envString("AMQP_QUEUE", "analyzer.jobs"),
			RoutingKey: envString("AMQP_ROUTING_KEY", "job.created"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  envDuration("JWT_TTL", 24*time.Hour),
		},
		Preview: PreviewConfig{
			TTL:      envDuration("PREVIEW_TTL", 30*time.Minute),
			PageSize: envInt("PREVIEW_PAGE_SIZE", 20),
		},
		Worker: WorkerConfig{
			Concurrency:    envInt("WORKER_CONCURRENCY", 4),
			MaxRetryWindow: envDuration("WORKER_MAX_RETRY_WINDOW", 2*time.Minute),
		},
		Sweeper: SweeperConfig{
			Schedule:      envString("SWEEPER_SCHEDULE", "@every 1m"),
			PurgeSchedule: envString("SWEEPER_PURGE_SCHEDULE", "0 3 * * *"),
			StaleAfter:    envDuration("SWEEPER_STALE_AFTER", 5*time.Minute),
			CancelAfter:   envDuration("SWEEPER_CANCEL_AFTER", 24*time.Hour),
			PurgeAfter:    envDuration("SWEEPER_PURGE_AFTER", 7*24*time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("DATABASE_QUERY_TIMEOUT must be positive, got %s", c.Database.QueryTimeout)
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Queue.URL == "" {
		return fmt.Errorf("AMQP_URL is required")
	}
	if !strings.HasPrefix(c.Queue.URL, "amqp://") && !strings.HasPrefix(c.Queue.URL, "amqps://") {
		return fmt.Errorf("AMQP_URL must start with amqp:// or amqps://, got %q", c.Queue.URL)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < minSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLen)
	}

	if c.Preview.TTL <= 0 {
		return fmt.Errorf("PREVIEW_TTL must be positive, got %s", c.Preview.TTL)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Worker.Concurrency)
	}

	if _, err := cron.ParseStandard(c.Sweeper.Schedule); err != nil {
		return fmt.Errorf("SWEEPER_SCHEDULE %q: %w", c.Sweeper.Schedule, err)
	}
	if _, err := cron.ParseStandard(c.Sweeper.PurgeSchedule); err != nil {
		return fmt.Errorf("SWEEPER_PURGE_SCHEDULE %q: %w", c.Sweeper.PurgeSchedule, err)
	}
	if c.Sweeper.StaleAfter <= 0 {
		return fmt.Errorf("SWEEPER_STALE_AFTER must be positive, got %s", c.Sweeper.StaleAfter)
	}
	if c.Sweeper.CancelAfter <= c.Sweeper.StaleAfter {
		return fmt.Errorf("SWEEPER_CANCEL_AFTER (%s) must exceed SWEEPER_STALE_AFTER (%s)",
			c.Sweeper.CancelAfter, c.Sweeper.StaleAfter)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
