package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	key      string
	value    []byte
	expireAt time.Time
}

// MemoryCache is an in-process LRU with per-entry expiry.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // front = most recently used
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

var _ Service = (*MemoryCache)(nil)

// NewMemoryCache creates an in-memory cache and starts its expiry sweeper.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: time.Minute,
		DefaultTTL:      time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MaxSize < 1 {
		cfg.MaxSize = 1
	}

	mc := &MemoryCache{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go mc.sweep(cfg.CleanupInterval)
	}
	return mc
}

func (mc *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	el, ok := mc.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	item := el.Value.(*memoryItem)
	if mc.now().After(item.expireAt) {
		mc.remove(el)
		return nil, ErrCacheMiss
	}
	mc.order.MoveToFront(el)
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

func (mc *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = mc.defaultTTL
	}
	buf := make([]byte, len(value))
	copy(buf, value)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if el, ok := mc.items[key]; ok {
		item := el.Value.(*memoryItem)
		item.value = buf
		item.expireAt = mc.now().Add(ttl)
		mc.order.MoveToFront(el)
		return nil
	}
	for mc.order.Len() >= mc.maxSize {
		mc.remove(mc.order.Back())
	}
	mc.items[key] = mc.order.PushFront(&memoryItem{key: key, value: buf, expireAt: mc.now().Add(ttl)})
	return nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if el, ok := mc.items[key]; ok {
			mc.remove(el)
		}
	}
	return nil
}

func (mc *MemoryCache) DeleteByPrefix(_ context.Context, prefix string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for key, el := range mc.items {
		if strings.HasPrefix(key, prefix) {
			mc.remove(el)
		}
	}
	return nil
}

// Len returns the number of entries, expired or not.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.order.Len()
}

// Close stops the sweeper.
func (mc *MemoryCache) Close() error {
	mc.stopOnce.Do(func() { close(mc.stop) })
	return nil
}

func (mc *MemoryCache) remove(el *list.Element) {
	mc.order.Remove(el)
	delete(mc.items, el.Value.(*memoryItem).key)
}

func (mc *MemoryCache) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-mc.stop:
			return
		case <-t.C:
			mc.mu.Lock()
			now := mc.now()
			for _, el := range mc.items {
				if now.After(el.Value.(*memoryItem).expireAt) {
					mc.remove(el)
				}
			}
			mc.mu.Unlock()
		}
	}
}
