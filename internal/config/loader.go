package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WOLFBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from WOLFBOT_* variables that are
// set and non-empty, so secrets can be injected at deploy time.
func applyEnvOverrides(cfg *Config) {
	// ── Broker ──
	setStr(&cfg.Broker.KeyID, "WOLFBOT_BROKER_KEY_ID")
	setStr(&cfg.Broker.Secret, "WOLFBOT_BROKER_SECRET")
	setStr(&cfg.Broker.EncryptedSecretPath, "WOLFBOT_BROKER_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Broker.SecretPassword, "WOLFBOT_BROKER_SECRET_PASSWORD")
	setBool(&cfg.Broker.Paper, "WOLFBOT_BROKER_PAPER")
	setStr(&cfg.Broker.BaseURL, "WOLFBOT_BROKER_BASE_URL")
	setStr(&cfg.Broker.DataURL, "WOLFBOT_BROKER_DATA_URL")
	setStr(&cfg.Broker.StreamURL, "WOLFBOT_BROKER_STREAM_URL")
	setStr(&cfg.Broker.Feed, "WOLFBOT_BROKER_FEED")
	setInt(&cfg.Broker.RateLimit, "WOLFBOT_BROKER_RATE_LIMIT")

	// ── Strategy ──
	setStringSlice(&cfg.Strategy.Watchlist, "WOLFBOT_STRATEGY_WATCHLIST")
	setInt(&cfg.Strategy.MaxWatch, "WOLFBOT_STRATEGY_MAX_WATCH")
	setStr(&cfg.Strategy.LookbackUnit, "WOLFBOT_STRATEGY_LOOKBACK_UNIT")
	setInt(&cfg.Strategy.LookbackLength, "WOLFBOT_STRATEGY_LOOKBACK_LENGTH")
	setFloat64(&cfg.Strategy.RSILow, "WOLFBOT_STRATEGY_RSI_LOW")
	setFloat64(&cfg.Strategy.RSIHigh, "WOLFBOT_STRATEGY_RSI_HIGH")
	setDuration(&cfg.Strategy.HoldLimit, "WOLFBOT_STRATEGY_HOLD_LIMIT")
	setFloat64(&cfg.Strategy.ProfitMin, "WOLFBOT_STRATEGY_PROFIT_MIN")
	setFloat64(&cfg.Strategy.ProfitMax, "WOLFBOT_STRATEGY_PROFIT_MAX")
	setFloat64(&cfg.Strategy.UnitQuantity, "WOLFBOT_STRATEGY_UNIT_QUANTITY")
	setBool(&cfg.Strategy.LiquidateUnwatched, "WOLFBOT_STRATEGY_LIQUIDATE_UNWATCHED")
	setInt(&cfg.Strategy.FetchConcurrency, "WOLFBOT_STRATEGY_FETCH_CONCURRENCY")

	// ── Session ──
	setDuration(&cfg.Session.TickPeriod, "WOLFBOT_SESSION_TICK_PERIOD")
	setDuration(&cfg.Session.CloseMargin, "WOLFBOT_SESSION_CLOSE_MARGIN")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "WOLFBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "WOLFBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "WOLFBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "WOLFBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "WOLFBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "WOLFBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "WOLFBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "WOLFBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "WOLFBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "WOLFBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "WOLFBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "WOLFBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "WOLFBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WOLFBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WOLFBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WOLFBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WOLFBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "WOLFBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.LockKey, "WOLFBOT_REDIS_LOCK_KEY")
	setDuration(&cfg.Redis.LockTTL, "WOLFBOT_REDIS_LOCK_TTL")
	setDuration(&cfg.Redis.PriceTTL, "WOLFBOT_REDIS_PRICE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "WOLFBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "WOLFBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WOLFBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "WOLFBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WOLFBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WOLFBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WOLFBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WOLFBOT_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WOLFBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WOLFBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramAPI, "WOLFBOT_NOTIFY_TELEGRAM_API")
	setStr(&cfg.Notify.DiscordWebhookURL, "WOLFBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WOLFBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "WOLFBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present, non-empty and parses.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
