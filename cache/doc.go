// Package cache provides an in-memory key/value store with per-entry TTL,
// capacity-bounded LRU eviction, key-scoped locking and a background sweeper.
// It backs the read-through caches the platform keeps in front of volatile
// control-plane state (machine status, machine screenshots).
//
// # Store
//
// A [Store] is constructed once with [New] and closed with [Store.Close].
// Construction starts a sweeper goroutine tied to the parent context, so the
// lifecycle is explicit: build the store during process startup, close it
// during shutdown. There are no package-level instances.
//
//	store := cache.New(ctx,
//	    cache.WithDefaultTTL(time.Minute),
//	    cache.WithMaxSize(500),
//	)
//	defer store.Close()
//
// # Expiry
//
// Every entry records its creation time and TTL. An entry past its TTL is
// treated as absent by every reader even if the sweeper has not physically
// removed it yet: [Store.Get] checks expiry on each read and removes stale
// entries opportunistically. The background sweeper, which runs every
// [DefaultSweepInterval], exists only to bound the memory held by entries
// nobody reads after they expire. Correctness never depends on it.
//
// # Eviction
//
// The store is capacity bounded. When an insert would exceed the configured
// maximum size, the least-recently-accessed ~10% of entries (minimum one) are
// removed first. Ranking uses the last-accessed timestamp maintained on every
// hit; TTL plays no part in victim selection.
//
// # Concurrency
//
// The key space is partitioned into 64 shards selected by xxhash of the key,
// each with its own map and mutex. Operations on the same key serialize on
// their shard; readers and writers of keys in other shards proceed in
// parallel. Eviction walks the shards one lock at a time (never nested) under
// a dedicated mutex, and no lock is ever held across a factory call.
//
// [Store.GetOrSet] is the read-through path. Concurrent misses on the same
// key collapse into a single factory invocation via
// [golang.org/x/sync/singleflight]; every waiting caller receives the same
// value. Factory failures propagate to every waiter and are never cached.
//
//	status, err := store.GetOrSet(ctx, "vm_status:"+vmID, 10*time.Second,
//	    func(ctx context.Context) (any, error) {
//	        return provider.FetchStatus(ctx, vmID)
//	    },
//	)
//
// # Typed helpers
//
// The Store stores [any] because Go does not allow generic methods on types
// used through non-generic call sites. [GetAs] and [Fetch] provide the typed
// surface: GetAs asserts the stored value directly and falls back to msgpack
// deserialization for []byte values written by serializing producers; Fetch
// is the typed equivalent of GetOrSet.
//
// # Stats
//
// [Store.Stats] reports size, capacity, hit/miss counters and the derived hit
// rate. Counters are cumulative for the lifetime of the store.
package cache
