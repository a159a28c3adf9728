// Package peercache implements a bounded, TTL-aware cache from an opaque
// peer handle to its resolved descriptor.
package peercache

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/TgCaller/TgCaller/internal/logging"
)

const ttl = 24 * time.Hour

// PeerKind classifies a resolved peer descriptor.
type PeerKind int

const (
	PeerKindUser PeerKind = iota
	PeerKindChat
	PeerKindChannel
)

// Descriptor is the resolved identity of a conference participant or chat.
type Descriptor struct {
	PeerID     string
	AccessHash int64
	Kind       PeerKind
	Title      string
	Username   string
	CachedAt   time.Time
}

// Expired reports whether the descriptor is older than the cache TTL,
// measured against now.
func (d Descriptor) Expired(now time.Time) bool {
	return now.Sub(d.CachedAt) > ttl
}

// Resolver looks up a peer descriptor out of process, e.g. via a
// TransportClient's directory call.
type Resolver interface {
	Resolve(ctx context.Context, peerID string) (Descriptor, error)
}

// Cache is a bounded LRU over peer_id -> Descriptor with a secondary
// username -> peer_id index, backed by ristretto's admission policy.
type Cache struct {
	logger   logging.Logger
	resolver Resolver
	store    *ristretto.Cache[string, Descriptor]

	mu       sync.Mutex
	byUser   map[string]string
	hits     int64
	misses   int64
	errors   int64
}

// New builds a Cache with capacity for approximately maxPeers entries.
func New(resolver Resolver, maxPeers int64, logger logging.Logger) (*Cache, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if maxPeers <= 0 {
		maxPeers = 10000
	}
	store, err := ristretto.NewCache(&ristretto.Config[string, Descriptor]{
		NumCounters: maxPeers * 10,
		MaxCost:     maxPeers,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{
		logger:   logger.Named("peer_cache"),
		resolver: resolver,
		store:    store,
		byUser:   make(map[string]string),
	}, nil
}

// Stats snapshots the cache's hit/miss/error counters.
type Stats struct {
	Hits   int64
	Misses int64
	Errors int64
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Errors: c.errors}
}

// Resolve consults the cache by peer id, falling back to the secondary
// username index, then to the external resolver on miss. A second call
// within TTL makes no further resolver calls (L4).
func (c *Cache) Resolve(ctx context.Context, peerID string) (Descriptor, error) {
	if d, ok := c.store.Get(peerID); ok {
		if !d.Expired(time.Now()) {
			c.mu.Lock()
			c.hits++
			c.mu.Unlock()
			return d, nil
		}
		c.store.Del(peerID)
	}

	c.mu.Lock()
	mapped, byName := c.byUser[peerID]
	c.mu.Unlock()
	if byName {
		if d, ok := c.store.Get(mapped); ok && !d.Expired(time.Now()) {
			c.mu.Lock()
			c.hits++
			c.mu.Unlock()
			return d, nil
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()

	d, err := c.resolver.Resolve(ctx, peerID)
	if err != nil {
		c.mu.Lock()
		c.errors++
		c.mu.Unlock()
		return Descriptor{}, err
	}
	d.CachedAt = time.Now()
	c.store.SetWithTTL(peerID, d, 1, ttl)
	c.store.Wait()

	if d.Username != "" {
		c.mu.Lock()
		c.byUser[d.Username] = peerID
		c.mu.Unlock()
	}
	return d, nil
}

// ResolveByUsername resolves a peer through the username secondary index,
// falling back to Resolve with the username itself as the handle when the
// index has no entry yet.
func (c *Cache) ResolveByUsername(ctx context.Context, username string) (Descriptor, error) {
	c.mu.Lock()
	peerID, ok := c.byUser[username]
	c.mu.Unlock()
	if ok {
		return c.Resolve(ctx, peerID)
	}
	return c.Resolve(ctx, username)
}

// ClearExpired does no work of its own: expired descriptors are dropped
// by the store's own TTL handling and by Resolve's expiry check. Entries
// in the username index are not removed.
func (c *Cache) ClearExpired() {
	// ristretto evicts expired entries lazily on access; nothing to do
	// proactively beyond letting its own TTL janitor run.
}

// Close releases the underlying store.
func (c *Cache) Close() {
	c.store.Close()
}
