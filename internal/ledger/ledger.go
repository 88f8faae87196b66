// Package ledger holds the process-wide view of account positions, shared
// between the strategy loop and the order watcher.
package ledger

import (
	"fmt"
	"hash/maphash"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

const defaultShards = 16

type shard struct {
	mu        sync.RWMutex
	positions map[domain.Symbol]domain.Position
}

// AccountState maps symbols to positions. Writers touching different symbols
// rarely contend: the map is split into shards, each behind its own lock, and
// every mutation of a single symbol happens under that symbol's shard lock.
// It is safe for concurrent use.
type AccountState struct {
	seed   maphash.Seed
	shards []*shard
	now    func() time.Time
}

// Option configures an AccountState.
type Option func(*AccountState)

// WithShards sets the shard count. Values below one are ignored.
func WithShards(n int) Option {
	return func(a *AccountState) {
		if n > 0 {
			a.shards = newShards(n)
		}
	}
}

// WithClock overrides the time source used to stamp LastUpdate.
func WithClock(now func() time.Time) Option {
	return func(a *AccountState) {
		if now != nil {
			a.now = now
		}
	}
}

// New creates an empty AccountState.
func New(opts ...Option) *AccountState {
	a := &AccountState{
		seed:   maphash.MakeSeed(),
		shards: newShards(defaultShards),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func newShards(n int) []*shard {
	out := make([]*shard, n)
	for i := range out {
		out[i] = &shard{positions: make(map[domain.Symbol]domain.Position)}
	}
	return out
}

func (a *AccountState) shardFor(sym domain.Symbol) *shard {
	var h maphash.Hash
	h.SetSeed(a.seed)
	h.WriteString(string(sym.Class))
	h.WriteByte(0)
	h.WriteString(sym.Ticker)
	return a.shards[h.Sum64()%uint64(len(a.shards))]
}

// Seed loads a broker snapshot. Each held position is recorded with its
// current market price as the cost basis and no order in flight; existing
// entries for the same symbols are overwritten.
func (a *AccountState) Seed(snapshot []domain.BrokerPosition) {
	now := a.now()
	for _, bp := range snapshot {
		owned := bp.Quantity
		if owned.IsNegative() {
			owned = decimal.Zero
		}
		price := bp.CurrentPrice
		if price.IsZero() {
			price = bp.AvgEntryPrice
		}

		sh := a.shardFor(bp.Symbol)
		sh.mu.Lock()
		prev, ok := sh.positions[bp.Symbol]
		ts := now
		if ok && prev.LastUpdate.After(ts) {
			ts = prev.LastUpdate
		}
		sh.positions[bp.Symbol] = domain.Position{
			Owned:      owned,
			BuyInPrice: price,
			LastUpdate: ts,
		}
		sh.mu.Unlock()
	}
}

// Get returns a copy of the position for sym.
func (a *AccountState) Get(sym domain.Symbol) (domain.Position, bool) {
	sh := a.shardFor(sym)
	sh.mu.RLock()
	pos, ok := sh.positions[sym]
	sh.mu.RUnlock()
	return pos, ok
}

// UpsertFromFill applies one order-update event. A terminal event adds
// filled (signed: negative for sells) to the holding, takes price as the new
// cost basis when it is non-zero, clears the in-flight flag and refreshes
// LastUpdate. A non-terminal event only marks an order as in flight. Owned
// never drops below zero.
func (a *AccountState) UpsertFromFill(sym domain.Symbol, filled, price decimal.Decimal, terminal bool) domain.Position {
	sh := a.shardFor(sym)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	pos := sh.positions[sym]
	if !terminal {
		pos.OrderInProgress = true
		sh.positions[sym] = pos
		return pos
	}

	pos.Owned = pos.Owned.Add(filled)
	if pos.Owned.IsNegative() {
		pos.Owned = decimal.Zero
	}
	if !price.IsZero() {
		pos.BuyInPrice = price
	}
	pos.OrderInProgress = false
	if now := a.now(); now.After(pos.LastUpdate) {
		pos.LastUpdate = now
	}
	sh.positions[sym] = pos
	return pos
}

// MarkOrderSubmitted flags sym as having an order in flight, creating an
// empty entry if none exists. It must be called before the order is sent.
// It reports false when the flag was already set; the flag stays set either
// way.
func (a *AccountState) MarkOrderSubmitted(sym domain.Symbol) bool {
	sh := a.shardFor(sym)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	pos := sh.positions[sym]
	if pos.OrderInProgress {
		return false
	}
	pos.OrderInProgress = true
	sh.positions[sym] = pos
	return true
}

// ClearOrderSubmitted undoes MarkOrderSubmitted after the broker refused the
// submission, so no order exists that the watcher could ever observe.
func (a *AccountState) ClearOrderSubmitted(sym domain.Symbol) {
	sh := a.shardFor(sym)
	sh.mu.Lock()
	if pos, ok := sh.positions[sym]; ok {
		pos.OrderInProgress = false
		sh.positions[sym] = pos
	}
	sh.mu.Unlock()
}

// RemoveIfZero deletes the entry for sym when nothing is held and no order
// is in flight. It reports whether the entry was removed.
func (a *AccountState) RemoveIfZero(sym domain.Symbol) bool {
	sh := a.shardFor(sym)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	pos, ok := sh.positions[sym]
	if !ok || !pos.Owned.IsZero() || pos.OrderInProgress {
		return false
	}
	delete(sh.positions, sym)
	return true
}

// Entry is one row of a Snapshot.
type Entry struct {
	Symbol   domain.Symbol
	Position domain.Position
}

// Snapshot returns a copy of every entry, sorted by symbol. Shards are read
// one at a time, so the result is consistent per symbol but not across the
// whole ledger.
func (a *AccountState) Snapshot() []Entry {
	var out []Entry
	for _, sh := range a.shards {
		sh.mu.RLock()
		for sym, pos := range sh.positions {
			out = append(out, Entry{Symbol: sym, Position: pos})
		}
		sh.mu.RUnlock()
	}
	slices.SortFunc(out, func(x, y Entry) int {
		return domain.CompareSymbols(x.Symbol, y.Symbol)
	})
	return out
}

// Len returns the number of entries.
func (a *AccountState) Len() int {
	n := 0
	for _, sh := range a.shards {
		sh.mu.RLock()
		n += len(sh.positions)
		sh.mu.RUnlock()
	}
	return n
}

func (a *AccountState) String() string {
	var b strings.Builder
	for i, e := range a.Snapshot() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s@%s", e.Symbol, e.Position.Owned, e.Position.BuyInPrice)
		if e.Position.OrderInProgress {
			b.WriteString("*")
		}
	}
	return b.String()
}
