// Package bucket provides named, versioned response cache buckets.
//
// A bucket is a persistent key-value store mapping a normalized request key
// to a stored response snapshot. Two kinds of buckets exist at runtime:
//
//   - Static buckets, named with the app version ("static-3.59.0"). They hold
//     precached page assets and are deleted wholesale when a new version
//     activates.
//   - The API bucket, whose name is version-independent. It holds upstream
//     API responses and survives across app versions.
//
// Entries carry no TTL. Staleness is controlled entirely by bucket versioning
// and the fetch strategy that reads the bucket, never by entry age.
//
// # Basic Usage
//
//	store := bucket.NewRedisStore(redisClient, logger)
//
//	if err := store.Open(ctx, "static-3.59.0"); err != nil {
//		return err
//	}
//
//	entry, err := bucket.EntryFromResponse(resp)
//	if err != nil {
//		return err
//	}
//	if err := store.Put(ctx, "static-3.59.0", bucket.Key(req), entry); err != nil {
//		return err
//	}
//
//	cached, err := store.Get(ctx, "static-3.59.0", bucket.Key(req))
//	if err != nil {
//		return err
//	}
//	if cached == nil {
//		// cache miss
//	}
//
// # Version Pruning
//
// During activation the store is pruned down to the current static bucket and
// the API bucket:
//
//	keep := map[string]struct{}{
//		"static-3.60.0": {},
//		"api":           {},
//	}
//	if err := store.DeleteExcept(ctx, keep); err != nil {
//		return err
//	}
//
// Names in keep that do not exist yet are not an error.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - edge_cache_hits_total{backend} - Cache hits
//   - edge_cache_misses_total{backend} - Cache misses
//   - edge_cache_written_bytes_total{backend} - Bytes written to the cache
//   - edge_cache_errors_total{operation} - Cache operation errors
//   - edge_cache_buckets_deleted_total - Buckets removed by pruning
package bucket
