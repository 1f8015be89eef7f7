package idempotency

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

const expiryHeaderSize = 8

// MemoryCache is a single-process cache backed by BigCache.
// BigCache evicts on one global life window, so each entry carries its own
// expiry in an 8 byte header and is treated as absent once that passes.
type MemoryCache struct {
	cache *bigcache.BigCache
	now   func() time.Time
}

// NewMemoryCache creates a cache whose global eviction window is maxTTL
func NewMemoryCache(ctx context.Context, maxTTL time.Duration) (*MemoryCache, error) {
	if maxTTL <= 0 {
		maxTTL = DefaultTTL
	}
	cfg := bigcache.DefaultConfig(maxTTL)
	cfg.Shards = 64
	cfg.CleanWindow = time.Minute
	cfg.Verbose = false

	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create bigcache: %w", err)
	}
	return &MemoryCache{cache: cache, now: time.Now}, nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, err := c.cache.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(entry) < expiryHeaderSize {
		_ = c.cache.Delete(key)
		return nil, false, nil
	}

	expiresAt := int64(binary.BigEndian.Uint64(entry[:expiryHeaderSize]))
	if c.now().UnixNano() >= expiresAt {
		_ = c.cache.Delete(key)
		return nil, false, nil
	}

	payload := make([]byte, len(entry)-expiryHeaderSize)
	copy(payload, entry[expiryHeaderSize:])
	return payload, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entry := make([]byte, expiryHeaderSize+len(payload))
	binary.BigEndian.PutUint64(entry[:expiryHeaderSize], uint64(c.now().Add(ttl).UnixNano()))
	copy(entry[expiryHeaderSize:], payload)
	return c.cache.Set(key, entry)
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	err := c.cache.Delete(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (c *MemoryCache) Close() error {
	return c.cache.Close()
}
