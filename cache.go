// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bsk

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/bsk/internal/registry"
)

// CacheConfig configures the key cache.
type CacheConfig struct {
	// MemPerDevice caps the bytes of cached key material per device. When an
	// insertion would exceed the cap, least-recently-used unpinned keys on
	// that device are closed and evicted. 0 means unlimited.
	MemPerDevice int64
	// Registry, when set, receives a residency record per cached key so
	// other processes can see which keys are resident where.
	Registry registry.Registry
}

// Cache keeps distributed bootstrap keys resident across bootstrapping
// calls, keyed by an opaque id (typically a tenant or session id). The cache
// owns the keys it holds: eviction and removal close them, releasing their
// device memory. A key retrieved with Get is pinned until Release, and
// pinned keys are never evicted.
type Cache[T Torus] struct {
	cfg CacheConfig

	mu       sync.Mutex
	entries  map[string]*cacheEntry[T]
	lruHeap  *keyLRUHeap
	lruIndex map[string]*keyLRUEntry
	memUsed  map[int]int64 // device id -> bytes of cached key material

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type cacheEntry[T Torus] struct {
	key  *DeviceBootstrapKey[T]
	refs atomic.Int32
}

// keyLRUEntry for heap-based LRU eviction.
type keyLRUEntry struct {
	keyID    string
	lastUsed time.Time
	index    int
}

type keyLRUHeap []*keyLRUEntry

func (h keyLRUHeap) Len() int           { return len(h) }
func (h keyLRUHeap) Less(i, j int) bool { return h[i].lastUsed.Before(h[j].lastUsed) }
func (h keyLRUHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *keyLRUHeap) Push(x any) {
	entry := x.(*keyLRUEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}
func (h *keyLRUHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[0 : n-1]
	return entry
}

// NewCache creates a key cache.
func NewCache[T Torus](cfg CacheConfig) *Cache[T] {
	c := &Cache[T]{
		cfg:      cfg,
		entries:  make(map[string]*cacheEntry[T]),
		lruHeap:  &keyLRUHeap{},
		lruIndex: make(map[string]*keyLRUEntry),
		memUsed:  make(map[int]int64),
	}
	heap.Init(c.lruHeap)
	return c
}

// Put admits a distributed key under id, transferring ownership to the
// cache. Admission may evict unpinned keys to stay under the per-device
// memory cap; if eviction cannot make room, Put fails with ErrCacheFull and
// the caller keeps ownership.
func (c *Cache[T]) Put(ctx context.Context, id string, key *DeviceBootstrapKey[T]) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[id]; exists {
		return fmt.Errorf("bsk: key %q already cached", id)
	}

	perDevice := shardBytes[T](key)
	if c.cfg.MemPerDevice > 0 {
		for dev, bytes := range perDevice {
			for c.memUsed[dev]+bytes > c.cfg.MemPerDevice {
				if err := c.evictFromDevice(ctx, dev); err != nil {
					return err
				}
			}
		}
	}

	if c.cfg.Registry != nil {
		if err := c.cfg.Registry.Put(ctx, recordFor(id, key)); err != nil {
			return fmt.Errorf("bsk: register key %q: %w", id, err)
		}
	}

	c.entries[id] = &cacheEntry[T]{key: key}
	for dev, bytes := range perDevice {
		c.memUsed[dev] += bytes
	}

	entry := &keyLRUEntry{keyID: id, lastUsed: time.Now()}
	heap.Push(c.lruHeap, entry)
	c.lruIndex[id] = entry

	return nil
}

// Get retrieves a cached key and pins it against eviction. Callers must
// Release the id when the kernel launches using it have completed.
func (c *Cache[T]) Get(id string) (*DeviceBootstrapKey[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		c.misses.Add(1)
		return nil, fmt.Errorf("key %q: %w", id, ErrKeyNotFound)
	}
	c.hits.Add(1)

	if lru, ok := c.lruIndex[id]; ok {
		lru.lastUsed = time.Now()
		heap.Fix(c.lruHeap, lru.index)
	}

	entry.refs.Add(1)
	return entry.key, nil
}

// Release unpins a key previously returned by Get.
func (c *Cache[T]) Release(id string) {
	c.mu.Lock()
	entry, ok := c.entries[id]
	c.mu.Unlock()
	if ok {
		entry.refs.Add(-1)
	}
}

// Remove closes a key and drops it from the cache and registry. Fails if
// the key is pinned.
func (c *Cache[T]) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return fmt.Errorf("key %q: %w", id, ErrKeyNotFound)
	}
	if entry.refs.Load() > 0 {
		return fmt.Errorf("bsk: key %q is pinned", id)
	}
	return c.drop(ctx, id, entry)
}

// Close removes every unpinned key. Returns the first error encountered,
// after attempting all removals.
func (c *Cache[T]) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for id, entry := range c.entries {
		if entry.refs.Load() > 0 {
			if firstErr == nil {
				firstErr = fmt.Errorf("bsk: key %q is pinned", id)
			}
			continue
		}
		if err := c.drop(ctx, id, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// drop closes the key and unindexes it. Must be called with mu held.
func (c *Cache[T]) drop(ctx context.Context, id string, entry *cacheEntry[T]) error {
	for dev, bytes := range shardBytes[T](entry.key) {
		c.memUsed[dev] -= bytes
	}
	if lru, ok := c.lruIndex[id]; ok && lru.index >= 0 {
		heap.Remove(c.lruHeap, lru.index)
	}
	delete(c.lruIndex, id)
	delete(c.entries, id)

	if c.cfg.Registry != nil {
		if err := c.cfg.Registry.Delete(ctx, id); err != nil {
			_ = entry.key.Close()
			return fmt.Errorf("bsk: unregister key %q: %w", id, err)
		}
	}
	return entry.key.Close()
}

// evictFromDevice closes the least-recently-used unpinned key occupying the
// given device. Must be called with mu held.
func (c *Cache[T]) evictFromDevice(ctx context.Context, deviceID int) error {
	var skipped []*keyLRUEntry
	defer func() {
		for _, entry := range skipped {
			heap.Push(c.lruHeap, entry)
			c.lruIndex[entry.keyID] = entry
		}
	}()

	for c.lruHeap.Len() > 0 {
		lru := heap.Pop(c.lruHeap).(*keyLRUEntry)
		delete(c.lruIndex, lru.keyID)

		entry, ok := c.entries[lru.keyID]
		if !ok {
			continue
		}

		if entry.refs.Load() > 0 || !occupiesDevice(entry.key, deviceID) {
			skipped = append(skipped, lru)
			continue
		}

		c.evictions.Add(1)
		return c.drop(ctx, lru.keyID, entry)
	}
	return ErrCacheFull
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Keys      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	MemUsed   map[int]int64
}

// Stats returns current statistics.
func (c *Cache[T]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	mem := make(map[int]int64, len(c.memUsed))
	for dev, bytes := range c.memUsed {
		mem[dev] = bytes
	}
	return CacheStats{
		Keys:      len(c.entries),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		MemUsed:   mem,
	}
}

// shardBytes returns the key's footprint in bytes per device.
func shardBytes[T Torus](key *DeviceBootstrapKey[T]) map[int]int64 {
	out := make(map[int]int64)
	for _, s := range key.Shards() {
		out[s.DeviceID] += int64(s.Elements * coeffBytes[T]())
	}
	return out
}

func occupiesDevice[T Torus](key *DeviceBootstrapKey[T], deviceID int) bool {
	for _, s := range key.Shards() {
		if s.DeviceID == deviceID {
			return true
		}
	}
	return false
}

// recordFor builds the residency record written to the registry.
func recordFor[T Torus](id string, key *DeviceBootstrapKey[T]) *registry.Record {
	p := key.Parameters()
	return &registry.Record{
		KeyID:                   id,
		WidthBits:               widthBits[T](),
		InputLWEDimension:       p.InputLWEDimension(),
		GLWEDimension:           p.GLWEDimension(),
		PolynomialSize:          p.PolynomialSize(),
		DecompositionLevelCount: p.DecompositionLevelCount(),
		DecompositionBaseLog:    p.DecompositionBaseLog(),
		DeviceIDs:               key.DeviceIDs(),
		CreatedAt:               time.Now().UTC(),
	}
}
