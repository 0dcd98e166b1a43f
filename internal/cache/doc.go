// Package cache memoizes upstream API responses with per-entry TTLs.
//
// # Stores
//
// The [Store] interface abstracts the backend. [RedisStore] is the
// production backend; [MemoryStore] is a mutex-guarded map used when no
// Redis address is configured or the server is unreachable at startup.
//
// # Read-through caching
//
// [Cache.GetOrFetch] is the single entry point for cached reads: a
// non-expired entry is returned as-is, otherwise the fetch function runs
// and its result is stored under the key with the given TTL.
//
// Concurrent misses for the same key are NOT deduplicated: each caller
// invokes its own fetch and the last write wins. The fetches this package
// fronts are idempotent GETs, so redundant work is bounded by the number
// of simultaneous first requests for a key.
//
// [Cache.Invalidate] removes every entry under a key prefix and is called
// after writes that change the underlying resource.
package cache
