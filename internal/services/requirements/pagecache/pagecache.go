// Package pagecache caches rendered requirement pages in the shared KV tier.
//
// Entries are keyed by the descriptor fingerprint and expire by TTL only;
// writers never delete, so a page is at most one TTL window stale.
package pagecache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"onehub/internal/platform/logger"
	"onehub/internal/platform/store"
	"onehub/internal/services/requirements/domain"
)

const keyPrefix = "req:page:"

// DefaultTTL bounds how stale a cached page may get
const DefaultTTL = 5 * time.Minute

// Cache is a KV-backed domain.PageCachePort
type Cache struct {
	kv  store.KV
	ttl time.Duration
	log logger.Logger
}

// New builds a page cache over the shared KV; ttl <= 0 uses DefaultTTL
func New(kv store.KV, ttl time.Duration, log logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{kv: kv, ttl: ttl, log: log.With().Str("component", "pagecache").Logger()}
}

// Get returns the cached page for a fingerprint. Misses and decode failures
// both report false; a corrupt entry just ages out.
func (c *Cache) Get(ctx context.Context, fingerprint string) (domain.PageResult, bool) {
	raw, err := c.kv.Get(ctx, keyPrefix+fingerprint)
	if err != nil {
		if !errors.Is(err, store.ErrKVMiss) {
			c.log.Warn().Err(err).Str("fp", fingerprint).Msg("page cache read failed")
		}
		return domain.PageResult{}, false
	}

	var page domain.PageResult
	if err := json.Unmarshal(raw, &page); err != nil {
		c.log.Warn().Err(err).Str("fp", fingerprint).Msg("page cache entry corrupt")
		return domain.PageResult{}, false
	}
	return page, true
}

// Set stores a page best-effort; cache failures never surface to callers
func (c *Cache) Set(ctx context.Context, fingerprint string, page domain.PageResult) {
	raw, err := json.Marshal(page)
	if err != nil {
		c.log.Warn().Err(err).Str("fp", fingerprint).Msg("page cache encode failed")
		return
	}
	if err := c.kv.Set(ctx, keyPrefix+fingerprint, raw, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("fp", fingerprint).Msg("page cache write failed")
	}
}
