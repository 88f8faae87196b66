package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each symbol's
// price lives at "wolfbot:price:{ticker}" with fields "price" and "ts" (Unix
// nanoseconds) and expires after ttl so a stopped bot leaves no stale quotes.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. A zero ttl
// keeps entries forever.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(s domain.Symbol) string {
	return keyPrefix + "price:" + s.Ticker
}

// SetPrices stores every price in one pipeline, all stamped with ts.
func (pc *PriceCache) SetPrices(ctx context.Context, prices map[domain.Symbol]decimal.Decimal, ts time.Time) error {
	if len(prices) == 0 {
		return nil
	}
	stamp := strconv.FormatInt(ts.UnixNano(), 10)

	_, err := pc.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for sym, price := range prices {
			key := priceKey(sym)
			pipe.HSet(ctx, key, map[string]any{
				"price": price.String(),
				"ts":    stamp,
			})
			if pc.ttl > 0 {
				pipe.Expire(ctx, key, pc.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: set prices: %w", err)
	}
	return nil
}

// GetPrice retrieves the cached price and its timestamp. It returns
// domain.ErrNotFound when nothing is cached for the symbol.
func (pc *PriceCache) GetPrice(ctx context.Context, symbol domain.Symbol) (decimal.Decimal, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(symbol)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get price %s: %w", symbol, err)
	}

	priceStr, ok := vals["price"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse price %s: %w", symbol, err)
	}

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
