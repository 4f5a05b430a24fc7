package tool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// CacheOptions configures a Cache.
type CacheOptions struct {
	// MaxEntries bounds the number of cached results.
	MaxEntries int64
	// TTL expires entries; zero keeps them until evicted.
	TTL time.Duration
}

// Cache memoises results of deterministic tools in an in-process ristretto
// cache. Only successful results are cached. Keys combine the tool name with
// the canonical JSON encoding of the arguments.
type Cache struct {
	store *ristretto.Cache[string, any]
	ttl   time.Duration
}

// NewCache creates a result cache.
func NewCache(optFns ...func(o *CacheOptions)) (*Cache, error) {
	opts := CacheOptions{MaxEntries: 10_000}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 10_000
	}

	store, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters:        opts.MaxEntries * 10,
		MaxCost:            opts.MaxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}

	return &Cache{store: store, ttl: opts.TTL}, nil
}

// Wrap returns a Tool that consults the cache before calling t.
func (c *Cache) Wrap(t Tool) Tool {
	return &cachedTool{Tool: t, cache: c}
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() {
	c.store.Close()
}

func (c *Cache) get(key string) (any, bool) {
	return c.store.Get(key)
}

func (c *Cache) set(key string, value any) {
	if c.ttl > 0 {
		c.store.SetWithTTL(key, value, 1, c.ttl)
	} else {
		c.store.Set(key, value, 1)
	}

	c.store.Wait()
}

type cachedTool struct {
	Tool
	cache *Cache
}

func (t *cachedTool) Call(ctx context.Context, args map[string]any) (any, error) {
	// encoding/json sorts map keys, so equal argument maps share a key.
	data, err := json.Marshal(args)
	if err != nil {
		return t.Tool.Call(ctx, args)
	}

	key := t.Name() + ":" + string(data)

	if v, ok := t.cache.get(key); ok {
		return v, nil
	}

	v, err := t.Tool.Call(ctx, args)
	if err != nil {
		return nil, err
	}

	t.cache.set(key, v)

	return v, nil
}
