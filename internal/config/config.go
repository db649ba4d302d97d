package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	NotifyTransportHTTP     = "http"
	NotifyTransportRabbitMQ = "rabbitmq"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	NotifyTransport  string `env:"NOTIFY_TRANSPORT,default=http"`
	NotifyServiceURL string `env:"NOTIFY_SERVICE_URL"`
	RabbitMQURL      string `env:"RABBITMQ_URL"`

	RateLimitPerSec   int    `env:"RATE_LIMIT_PER_SEC,default=50"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=1"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`

	FetchRetryDelayMS     int    `env:"FETCH_RETRY_DELAY_MS,default=3000"`
	RunDeadlineMin        int    `env:"RUN_DEADLINE_MIN,default=30"`
	ShutdownGraceSec      int    `env:"SHUTDOWN_GRACE_SEC,default=30"`
	PoolGraceSec          int    `env:"POOL_GRACE_SEC,default=5"`
	MemoryHighWatermarkMB uint64 `env:"MEMORY_HIGH_WATERMARK_MB,default=800"`
	MemoryHardLimitMB     uint64 `env:"MEMORY_HARD_LIMIT_MB,default=0"`
	BreakerThreshold      int    `env:"BREAKER_THRESHOLD,default=5"`
	BreakerCooldownSec    int    `env:"BREAKER_COOLDOWN_SEC,default=10"`
	ScheduleAt            string `env:"SCHEDULE_AT,default=02:00"`
	OwnerCacheTTLSec      int    `env:"OWNER_CACHE_TTL_SEC,default=600"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.NotifyTransport = strings.ToLower(strings.TrimSpace(cfg.NotifyTransport))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("invalid config: DATABASE_DSN is required")
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("invalid config: REDIS_URL is required")
	}

	switch c.NotifyTransport {
	case NotifyTransportHTTP:
		if strings.TrimSpace(c.NotifyServiceURL) == "" {
			return fmt.Errorf("invalid config: NOTIFY_SERVICE_URL is required for the http transport")
		}
	case NotifyTransportRabbitMQ:
		if strings.TrimSpace(c.RabbitMQURL) == "" {
			return fmt.Errorf("invalid config: RABBITMQ_URL is required for the rabbitmq transport")
		}
	default:
		return fmt.Errorf("invalid config: unknown NOTIFY_TRANSPORT %q", c.NotifyTransport)
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("invalid config: WORKER_CONCURRENCY must be at least 1")
	}
	if c.RateLimitPerSec < 0 {
		return fmt.Errorf("invalid config: RATE_LIMIT_PER_SEC must not be negative")
	}
	if c.MemoryHardLimitMB > 0 && c.MemoryHardLimitMB <= c.MemoryHighWatermarkMB {
		return fmt.Errorf("invalid config: MEMORY_HARD_LIMIT_MB must exceed MEMORY_HIGH_WATERMARK_MB")
	}
	if _, _, err := c.DailySchedule(); err != nil {
		return err
	}
	return nil
}

// DailySchedule parses SCHEDULE_AT ("HH:MM"). ok is false when scheduling is
// disabled by an empty value.
func (c *Config) DailySchedule() (at time.Duration, ok bool, err error) {
	raw := strings.TrimSpace(c.ScheduleAt)
	if raw == "" || raw == "off" {
		return 0, false, nil
	}

	parsed, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid config: SCHEDULE_AT %q must be HH:MM", c.ScheduleAt)
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, true, nil
}

func (c *Config) FetchRetryDelay() time.Duration {
	return time.Duration(c.FetchRetryDelayMS) * time.Millisecond
}

func (c *Config) RunDeadline() time.Duration {
	return time.Duration(c.RunDeadlineMin) * time.Minute
}

func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSec) * time.Second
}

func (c *Config) PoolGrace() time.Duration {
	return time.Duration(c.PoolGraceSec) * time.Second
}

func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSec) * time.Second
}

func (c *Config) OwnerCacheTTL() time.Duration {
	return time.Duration(c.OwnerCacheTTLSec) * time.Second
}

func (c *Config) MemoryHighWatermark() uint64 {
	return c.MemoryHighWatermarkMB << 20
}

func (c *Config) MemoryHardLimit() uint64 {
	return c.MemoryHardLimitMB << 20
}
