// Package denylist caches the set of currently banned client addresses. The
// reputation service is queried at most once per TTL; between refreshes all
// membership checks are in-memory. Refresh failures keep the last good set
// (fail-open): downstream classification still applies to whatever slips
// through a stale denylist.
package denylist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Source lists all currently banned addresses. It matches
// domain.ReputationService; redeclared here so the package stands alone.
type Source interface {
	ListBannedAddresses(ctx context.Context) ([]string, error)
}

// Cache is a time-bounded denylist. Safe for concurrent use.
type Cache struct {
	source Source
	ttl    time.Duration
	logger *slog.Logger

	mu          sync.RWMutex
	banned      map[string]struct{}
	refreshedAt time.Time
}

// New builds a cache around a reputation source. The first lookup triggers
// the initial refresh.
func New(source Source, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		source: source,
		ttl:    ttl,
		logger: logger.With("component", "denylist"),
		banned: map[string]struct{}{},
	}
}

// IsBanned reports whether the address is currently banned, refreshing the
// set first when it is older than the TTL.
func (c *Cache) IsBanned(ctx context.Context, address string) bool {
	c.refreshIfStale(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.banned[address]
	return ok
}

// Refresh replaces the cached set from the reputation service.
func (c *Cache) Refresh(ctx context.Context) error {
	addresses, err := c.source.ListBannedAddresses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list banned addresses: %w", err)
	}

	banned := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		banned[a] = struct{}{}
	}

	c.mu.Lock()
	c.banned = banned
	c.refreshedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// Size returns the number of banned addresses currently cached.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.banned)
}

func (c *Cache) refreshIfStale(ctx context.Context) {
	c.mu.RLock()
	stale := time.Since(c.refreshedAt) >= c.ttl
	c.mu.RUnlock()
	if !stale {
		return
	}

	if err := c.Refresh(ctx); err != nil {
		// Proceed with the stale set; a reputation outage must not abort
		// the run.
		c.logger.Warn("denylist refresh failed, using stale set", "error", err, "age", time.Since(c.refreshedAt).Round(time.Second))
		c.mu.Lock()
		c.refreshedAt = time.Now() // back off for one TTL before retrying
		c.mu.Unlock()
	}
}
