package cache

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// entry is a stored value with expiry and access metadata. Access metadata
// feeds LRU ranking only; expiry is decided solely by createdAt+ttl.
type entry struct {
	value        any
	createdAt    time.Time
	ttl          time.Duration
	accessCount  int
	lastAccessed time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// shardCount is the number of independent map shards. Keys are assigned to
// shards by xxhash, so operations on different keys almost never contend.
const shardCount = 64

// shard is one partition of the key space with its own lock, so readers and
// writers of keys in different shards never serialize on each other.
type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Store is an in-memory key/value cache with per-entry TTL, capacity-bounded
// LRU eviction, sharded locking and a background sweeper.
type Store struct {
	cfg    config
	ctx    context.Context
	cancel context.CancelFunc
	shards [shardCount]shard
	size   atomic.Int64
	hits   atomic.Uint64
	misses atomic.Uint64
	// evictMu serializes eviction runs so concurrent inserts at capacity do
	// not each sweep out 10% of the store.
	evictMu sync.Mutex
	flight  singleflight.Group
	wg      sync.WaitGroup
	once    sync.Once
}

// New returns a started Store. The sweeper goroutine runs until Close is
// called or the parent context is cancelled.
func New(parent context.Context, opts ...Option) *Store {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	s := &Store{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*entry)
	}
	s.wg.Add(1)
	go s.sweep()
	return s
}

func (s *Store) shard(key string) *shard {
	return &s.shards[xxhash.Sum64String(key)%shardCount]
}

// Get returns the value for key if present and not expired. A hit updates the
// entry's access count and last-accessed time. An expired entry is removed
// opportunistically and counted as a miss.
func (s *Store) Get(key string) (any, bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		s.misses.Add(1)
		return nil, false
	}
	now := time.Now()
	if e.expired(now) {
		delete(sh.entries, key)
		s.size.Add(-1)
		s.misses.Add(1)
		return nil, false
	}
	e.accessCount++
	e.lastAccessed = now
	s.hits.Add(1)
	return e.value, true
}

// Set stores value under key with the given TTL. A ttl <= 0 uses the
// configured default. If the store is at capacity the least-recently-accessed
// ~10% of entries are evicted first.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.cfg.defaultTTL
	}
	sh := s.shard(key)
	sh.mu.Lock()
	if _, exists := sh.entries[key]; !exists && int(s.size.Load()) >= s.cfg.maxSize {
		// eviction walks every shard, so the target shard's lock cannot be
		// held across it
		sh.mu.Unlock()
		s.evict()
		sh.mu.Lock()
	}
	if _, exists := sh.entries[key]; !exists {
		s.size.Add(1)
	}
	now := time.Now()
	sh.entries[key] = &entry{
		value:        value,
		createdAt:    now,
		ttl:          ttl,
		lastAccessed: now,
	}
	sh.mu.Unlock()
}

// evict removes the oldest 10% of entries (minimum 1) ranked by last-accessed
// time across all shards. Strict LRU, independent of TTL. Shard locks are
// taken one at a time, never nested.
func (s *Store) evict() {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()
	if int(s.size.Load()) < s.cfg.maxSize {
		// a concurrent eviction already made room
		return
	}
	type victim struct {
		key          string
		shard        *shard
		lastAccessed time.Time
	}
	candidates := make([]victim, 0, s.size.Load())
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, e := range sh.entries {
			candidates = append(candidates, victim{key, sh, e.lastAccessed})
		}
		sh.mu.Unlock()
	}
	if len(candidates) == 0 {
		return
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccessed.Before(candidates[j].lastAccessed)
	})
	toRemove := len(candidates) / 10
	if toRemove == 0 {
		toRemove = 1
	}
	for _, v := range candidates[:toRemove] {
		v.shard.mu.Lock()
		if _, ok := v.shard.entries[v.key]; ok {
			delete(v.shard.entries, v.key)
			s.size.Add(-1)
		}
		v.shard.mu.Unlock()
	}
}

// GetOrSet returns the cached value for key, or invokes factory to compute
// and store it. Concurrent calls for the same absent key collapse into a
// single factory invocation. A factory error is returned to every waiting
// caller and nothing is cached.
func (s *Store) GetOrSet(ctx context.Context, key string, ttl time.Duration, factory Factory) (any, error) {
	if val, found := s.Get(key); found {
		return val, nil
	}
	val, err, _ := s.flight.Do(key, func() (any, error) {
		// Another caller may have populated the key while we waited.
		if val, found := s.Get(key); found {
			return val, nil
		}
		val, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		s.Set(key, val, ttl)
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Delete removes key from the store, reporting whether it was present.
func (s *Store) Delete(key string) bool {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.entries[key]
	if ok {
		delete(sh.entries, key)
		s.size.Add(-1)
	}
	return ok
}

// Clear removes every entry.
func (s *Store) Clear() {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		s.size.Add(-int64(len(sh.entries)))
		sh.entries = make(map[string]*entry)
		sh.mu.Unlock()
	}
}

// Range calls fn for each live (non-expired) entry until fn returns false.
// The iteration order is unspecified.
func (s *Store) Range(fn func(key string, value any) bool) {
	now := time.Now()
	type pair struct {
		key   string
		value any
	}
	var snapshot []pair
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, e := range sh.entries {
			if e.expired(now) {
				continue
			}
			snapshot = append(snapshot, pair{key, e.value})
		}
		sh.mu.Unlock()
	}
	for _, p := range snapshot {
		if !fn(p.key, p.value) {
			return
		}
	}
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	hits := s.hits.Load()
	misses := s.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = math.Round(float64(hits)/float64(total)*10000) / 10000
	}
	return Stats{
		Size:       int(s.size.Load()),
		MaxSize:    s.cfg.maxSize,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
		DefaultTTL: s.cfg.defaultTTL,
	}
}

// Close stops the background sweeper and waits for it to exit.
func (s *Store) Close() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

// sweep periodically removes entries whose TTL elapsed without anyone reading
// them. Reads self-check expiry, so this loop only bounds memory.
func (s *Store) sweep() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Store) sweepOnce() {
	defer func() {
		if r := recover(); r != nil && s.cfg.log != nil {
			s.cfg.log.Error("cache sweep recovered: %v", r)
		}
	}()
	now := time.Now()
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, e := range sh.entries {
			if e.expired(now) {
				delete(sh.entries, key)
				s.size.Add(-1)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	if removed > 0 && s.cfg.log != nil {
		s.cfg.log.Debug("cache sweep removed %d expired entries", removed)
	}
}
