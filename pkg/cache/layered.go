package cache

import (
	"context"
	"time"
)

// LayeredCache reads through a memory L1 to a shared L2 and writes through both.
type LayeredCache struct {
	l1    *MemoryCache
	l2    Service
	l1TTL time.Duration
}

var _ Service = (*LayeredCache)(nil)

// LayeredOption configures Layered cache.
type LayeredOption func(*LayeredCache)

// WithL1TTL caps how long L2 values are kept in memory after a backfill.
func WithL1TTL(ttl time.Duration) LayeredOption {
	return func(c *LayeredCache) { c.l1TTL = ttl }
}

// NewLayeredCache creates a layered cache over l2, usually Redis.
func NewLayeredCache(l2 Service, memorySize int, opts ...LayeredOption) *LayeredCache {
	lc := &LayeredCache{
		l1:    NewMemoryCache(WithMemoryMaxSize(memorySize)),
		l2:    l2,
		l1TTL: time.Minute,
	}
	for _, opt := range opts {
		opt(lc)
	}
	return lc
}

func (lc *LayeredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if v, err := lc.l1.Get(ctx, key); err == nil {
		return v, nil
	}
	v, err := lc.l2.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = lc.l1.Set(ctx, key, v, lc.l1TTL)
	return v, nil
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := lc.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	l1 := lc.l1TTL
	if ttl > 0 && ttl < l1 {
		l1 = ttl
	}
	return lc.l1.Set(ctx, key, value, l1)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	_ = lc.l1.DeleteByPrefix(ctx, prefix)
	return lc.l2.DeleteByPrefix(ctx, prefix)
}

// Close closes both cache layers.
func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}
