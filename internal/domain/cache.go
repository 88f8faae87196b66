package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache mirrors the latest observed prices for other processes.
type PriceCache interface {
	SetPrices(ctx context.Context, prices map[Symbol]decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, symbol Symbol) (decimal.Decimal, time.Time, error)
}

// Lock is a held distributed lock.
type Lock interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Release()
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// SignalBus publishes events for external consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Bus channels.
const (
	ChannelFills   = "wolfbot:fills"
	ChannelSession = "wolfbot:session"
)

// RateLimiter throttles calls sharing a key, across processes when backed by
// a shared store.
type RateLimiter interface {
	Wait(ctx context.Context, key string) error
}
