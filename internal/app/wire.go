package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/wolfbot/internal/blob/s3"
	"github.com/alanyoungcy/wolfbot/internal/cache/redis"
	"github.com/alanyoungcy/wolfbot/internal/config"
	"github.com/alanyoungcy/wolfbot/internal/domain"
	"github.com/alanyoungcy/wolfbot/internal/notify"
	"github.com/alanyoungcy/wolfbot/internal/platform/alpaca"
	"github.com/alanyoungcy/wolfbot/internal/secrets"
	"github.com/alanyoungcy/wolfbot/internal/service"
	"github.com/alanyoungcy/wolfbot/internal/store/postgres"
)

// Dependencies bundles everything the trading run needs. Optional sinks are
// nil interfaces when their backing service is disabled.
type Dependencies struct {
	Backend *alpaca.Client

	// Stores
	AuditStore  domain.AuditStore
	EquityStore domain.EquityStore

	// Caches
	PriceCache  domain.PriceCache
	SignalBus   domain.SignalBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// Blob storage
	Archiver service.ReportArchiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.EquityStore = postgres.NewEquityStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		if cfg.Redis.LockKey != "" {
			deps.LockManager = redis.NewLockManager(redisClient)
		}
		if cfg.Broker.RateLimit > 0 {
			deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Broker.RateLimit, time.Minute)
		}
	}

	// --- Broker ---
	secret, err := secrets.LoadSecret(secrets.KeyConfig{
		RawSecret:     cfg.Broker.Secret,
		EncryptedPath: cfg.Broker.EncryptedSecretPath,
		Password:      cfg.Broker.SecretPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: broker secret: %w", err)
	}
	deps.Backend = alpaca.NewClient(alpaca.Options{
		KeyID:     cfg.Broker.KeyID,
		Secret:    secret,
		BaseURL:   brokerBaseURL(cfg.Broker),
		DataURL:   cfg.Broker.DataURL,
		StreamURL: cfg.Broker.StreamURL,
		Limiter:   deps.RateLimiter,
		Logger:    logger,
	})

	// --- S3 report archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		// Archiving is best effort; an unreachable bucket only costs reports.
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "report bucket unreachable",
				slog.String("component", "wire"),
				slog.String("bucket", s3Client.Bucket()),
				slog.String("error", err.Error()),
			)
		}
		deps.Archiver = s3blob.NewReportArchiver(s3blob.NewWriter(s3Client), deps.AuditStore)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPI,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// brokerBaseURL picks the trading API root: an explicit URL wins, then the
// paper flag.
func brokerBaseURL(b config.BrokerConfig) string {
	switch {
	case b.BaseURL != "":
		return b.BaseURL
	case b.Paper:
		return alpaca.PaperURL
	default:
		return alpaca.LiveURL
	}
}
