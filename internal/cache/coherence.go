package cache

import (
	"context"

	"go.uber.org/zap"
)

// Coherence invalidates every cache entry whose derived value depends on data
// a settlement just mutated. Invalidation is fire-and-forget: a failed delete
// is logged and swallowed, never allowed to fail a committed settlement.
// Range-scoped history keys cannot be enumerated and are left to expire.
type Coherence struct {
	cache   Cache
	version int
	logger  *zap.Logger
}

func NewCoherence(cache Cache, version int, logger *zap.Logger) *Coherence {
	return &Coherence{cache: cache, version: version, logger: logger}
}

// AfterSettlement drops the account, instrument, aggregate-listing and trade
// history entries touched by a committed settlement.
func (c *Coherence) AfterSettlement(ctx context.Context, username, ticker string) {
	c.drop(ctx,
		username,
		ticker,
		InstrumentsKey,
		TransactionsKey(username),
	)
}

// AfterAccountChange drops the entries derived from an account's record,
// used when an account is created over a stale key or deleted.
func (c *Coherence) AfterAccountChange(ctx context.Context, username string) {
	c.drop(ctx, username, TransactionsKey(username))
}

// AfterInstrumentChange drops the per-ticker entry and the aggregate listing.
func (c *Coherence) AfterInstrumentChange(ctx context.Context, ticker string) {
	c.drop(ctx, ticker, InstrumentsKey)
}

func (c *Coherence) drop(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := c.cache.Delete(ctx, key, c.version); err != nil {
			c.logger.Warn("cache invalidation failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}
}
