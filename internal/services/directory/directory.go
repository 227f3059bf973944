// Package directory resolves user ids to display names through a bounded,
// injectable cache. Each consumer owns its cache instance; nothing here is
// process-global.
package directory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"onehub/internal/platform/logger"
	"onehub/internal/platform/timeutil"
)

// ReaderPort looks up one display name at the source of truth
type ReaderPort interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Ports is the port set other modules wire against
type Ports struct {
	Reader ReaderPort
}

// Config bounds a Cache
type Config struct {
	// MaxEntries caps the cache; defaults to 1024
	MaxEntries int
	// TTL expires entries; defaults to 10m
	TTL time.Duration
}

type cacheEntry struct {
	userID   string
	name     string
	cachedAt time.Time
}

// Cache is a TTL + LRU bounded map over a ReaderPort
type Cache struct {
	reader ReaderPort
	cfg    Config
	log    logger.Logger
	now    func() time.Time

	mu    sync.Mutex
	order *list.List
	byID  map[string]*list.Element
}

// New builds a Cache around reader
func New(reader ReaderPort, cfg Config, log logger.Logger) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1024
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &Cache{
		reader: reader,
		cfg:    cfg,
		log:    log.With().Str("component", "directory").Logger(),
		now:    func() time.Time { return timeutil.Now() },
		order:  list.New(),
		byID:   map[string]*list.Element{},
	}
}

// DisplayName resolves a user id, hitting the reader only on miss or expiry
func (c *Cache) DisplayName(ctx context.Context, userID string) (string, error) {
	c.mu.Lock()
	if el, ok := c.byID[userID]; ok {
		e := el.Value.(*cacheEntry)
		if c.now().Sub(e.cachedAt) < c.cfg.TTL {
			c.order.MoveToFront(el)
			name := e.name
			c.mu.Unlock()
			return name, nil
		}
		c.order.Remove(el)
		delete(c.byID, userID)
	}
	c.mu.Unlock()

	name, err := c.reader.DisplayName(ctx, userID)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.byID[userID]; ok {
		// lost the race to another resolver; refresh in place
		el.Value.(*cacheEntry).name = name
		el.Value.(*cacheEntry).cachedAt = c.now()
		c.order.MoveToFront(el)
		return name, nil
	}
	c.byID[userID] = c.order.PushFront(&cacheEntry{userID: userID, name: name, cachedAt: c.now()})
	for c.order.Len() > c.cfg.MaxEntries {
		back := c.order.Back()
		c.order.Remove(back)
		delete(c.byID, back.Value.(*cacheEntry).userID)
	}
	return name, nil
}

// Len reports how many entries the cache holds
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
