// Package config defines the bot's configuration and provides validation
// helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WOLFBOT_* environment variables.
type Config struct {
	Broker   BrokerConfig   `toml:"broker"`
	Strategy StrategyConfig `toml:"strategy"`
	Session  SessionConfig  `toml:"session"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// BrokerConfig holds the trading account credentials and endpoints.
type BrokerConfig struct {
	KeyID               string `toml:"key_id"`
	Secret              string `toml:"secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
	Paper               bool   `toml:"paper"`
	BaseURL             string `toml:"base_url"`
	DataURL             string `toml:"data_url"`
	StreamURL           string `toml:"stream_url"`
	Feed                string `toml:"feed"`
	// RateLimit caps REST calls per minute across every process sharing the
	// account. Zero disables it; needs redis.
	RateLimit int `toml:"rate_limit"`
}

// DataFeed returns the configured market data feed.
func (b BrokerConfig) DataFeed() domain.Feed {
	return domain.Feed(strings.ToLower(b.Feed))
}

// StrategyConfig holds the decision thresholds and watch list.
type StrategyConfig struct {
	// Watchlist is traded as given; when empty the active asset list is used.
	Watchlist          []string `toml:"watchlist"`
	MaxWatch           int      `toml:"max_watch"`
	LookbackUnit       string   `toml:"lookback_unit"`
	LookbackLength     int      `toml:"lookback_length"`
	RSILow             float64  `toml:"rsi_low"`
	RSIHigh            float64  `toml:"rsi_high"`
	HoldLimit          duration `toml:"hold_limit"`
	ProfitMin          float64  `toml:"profit_min"`
	ProfitMax          float64  `toml:"profit_max"`
	UnitQuantity       float64  `toml:"unit_quantity"`
	LiquidateUnwatched bool     `toml:"liquidate_unwatched"`
	FetchConcurrency   int      `toml:"fetch_concurrency"`
}

// Period returns the configured lookback window.
func (s StrategyConfig) Period() domain.TimePeriod {
	return domain.TimePeriod{
		Unit:   domain.TimeUnit(strings.ToLower(s.LookbackUnit)),
		Length: s.LookbackLength,
	}
}

// SessionConfig holds the scheduler timings.
type SessionConfig struct {
	TickPeriod  duration `toml:"tick_period"`
	CloseMargin duration `toml:"close_margin"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters and the keys the bot owns.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockKey    string   `toml:"lock_key"`
	LockTTL    duration `toml:"lock_ttl"`
	PriceTTL   duration `toml:"price_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramAPI       string   `toml:"telegram_api"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values the bot trades with
// when nothing is configured.
func Defaults() Config {
	return Config{
		Broker: BrokerConfig{
			Paper: true,
			Feed:  string(domain.FeedIEX),
		},
		Strategy: StrategyConfig{
			MaxWatch:           50,
			LookbackUnit:       string(domain.TimeUnitDay),
			LookbackLength:     14,
			RSILow:             30,
			RSIHigh:            70,
			HoldLimit:          duration{30 * time.Minute},
			ProfitMin:          0.9,
			ProfitMax:          1.5,
			UnitQuantity:       1,
			LiquidateUnwatched: true,
			FetchConcurrency:   8,
		},
		Session: SessionConfig{
			TickPeriod:  duration{90 * time.Second},
			CloseMargin: duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "wolfbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			LockKey:    "trader",
			LockTTL:    duration{time.Minute},
			PriceTTL:   duration{15 * time.Minute},
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "wolfbot-reports",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"day_summary", "watcher_restarted", "clock_anomaly"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Broker
	if c.Broker.KeyID == "" {
		errs = append(errs, "broker: key_id must be set")
	}
	if c.Broker.Secret == "" && c.Broker.EncryptedSecretPath == "" {
		errs = append(errs, "broker: either secret or encrypted_secret_path must be set")
	}
	if c.Broker.EncryptedSecretPath != "" && c.Broker.SecretPassword == "" {
		errs = append(errs, "broker: secret_password is required when encrypted_secret_path is set")
	}
	switch c.Broker.DataFeed() {
	case domain.FeedIEX, domain.FeedSIP:
	default:
		errs = append(errs, fmt.Sprintf("broker: feed must be iex or sip, got %q", c.Broker.Feed))
	}
	if c.Broker.RateLimit < 0 {
		errs = append(errs, "broker: rate_limit must be >= 0")
	}
	if c.Broker.RateLimit > 0 && !c.Redis.Enabled {
		errs = append(errs, "broker: rate_limit needs redis.enabled")
	}

	// Strategy
	s := c.Strategy
	if s.MaxWatch < 1 {
		errs = append(errs, "strategy: max_watch must be >= 1")
	}
	if !s.Period().Valid() {
		errs = append(errs, fmt.Sprintf("strategy: lookback %d %q is not a valid period (units: minute, hour, day)", s.LookbackLength, s.LookbackUnit))
	}
	if s.RSILow < 0 || s.RSIHigh > 100 || s.RSILow >= s.RSIHigh {
		errs = append(errs, fmt.Sprintf("strategy: need 0 <= rsi_low < rsi_high <= 100, got %v/%v", s.RSILow, s.RSIHigh))
	}
	if s.HoldLimit.Duration <= 0 {
		errs = append(errs, "strategy: hold_limit must be > 0")
	}
	if s.ProfitMin <= 0 || s.ProfitMin >= s.ProfitMax {
		errs = append(errs, fmt.Sprintf("strategy: need 0 < profit_min < profit_max, got %v/%v", s.ProfitMin, s.ProfitMax))
	}
	if s.UnitQuantity <= 0 {
		errs = append(errs, "strategy: unit_quantity must be > 0")
	}
	if s.FetchConcurrency < 1 {
		errs = append(errs, "strategy: fetch_concurrency must be >= 1")
	}

	// Session
	if c.Session.TickPeriod.Duration <= 0 {
		errs = append(errs, "session: tick_period must be > 0")
	}
	if c.Session.CloseMargin.Duration < 0 {
		errs = append(errs, "session: close_margin must be >= 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockKey != "" && c.Redis.LockTTL.Duration < 3*time.Second {
			errs = append(errs, "redis: lock_ttl must be >= 3s")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
