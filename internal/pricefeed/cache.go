package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Source is the synchronous feed surface the engines consume.
type Source interface {
	PriceUSD(ctx context.Context, token common.Address) (decimal.Decimal, error)
	Price(ctx context.Context, base, quote common.Address) (decimal.Decimal, error)
}

// Cache layers streamed ticks over a fallback source. Pair reads are
// served from the last tick while it is fresh; everything else (and a
// cold or stale cache) goes to the fallback. USD reads always pass
// through: the stream carries pair ticks only.
type Cache struct {
	fallback Source
	maxAge   time.Duration

	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewCache(fallback Source, maxAge time.Duration) *Cache {
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	return &Cache{
		fallback: fallback,
		maxAge:   maxAge,
		ticks:    make(map[string]Tick),
	}
}

// Apply stores one streamed tick.
func (c *Cache) Apply(tick Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks[Pair{Base: tick.Base, Quote: tick.Quote}.topic()] = tick
}

// Run consumes the stream until it closes or the context ends.
func (c *Cache) Run(ctx context.Context, ticks <-chan Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			c.Apply(tick)
		}
	}
}

func (c *Cache) PriceUSD(ctx context.Context, token common.Address) (decimal.Decimal, error) {
	return c.fallback.PriceUSD(ctx, token)
}

func (c *Cache) Price(ctx context.Context, base, quote common.Address) (decimal.Decimal, error) {
	c.mu.RLock()
	tick, ok := c.ticks[Pair{Base: base, Quote: quote}.topic()]
	c.mu.RUnlock()
	if ok && time.Since(time.Unix(tick.Timestamp, 0)) <= c.maxAge {
		return tick.Price, nil
	}
	return c.fallback.Price(ctx, base, quote)
}
