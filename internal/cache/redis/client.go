// Package redis backs the shared state several wolfbot processes can see:
// the latest-price mirror, the fill signal channel, the single-trader lock and
// the broker request budget.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Every key carries this prefix so one Redis can serve other tools too.
const keyPrefix = "wolfbot:"

// ClientConfig mirrors the [redis] config section.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client is the connection the price cache, signal bus, lock manager and
// rate limiter share.
type Client struct {
	rdb *redis.Client
}

// New dials Redis and fails fast when it does not answer, so a bad address
// stops the bot before it trades.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Wrap uses rdb as is; tests hand it a miniredis-backed client.
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close is registered as a wiring cleanup.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying is what the cache types issue their commands on.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
