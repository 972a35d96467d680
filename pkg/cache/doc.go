// Package cache provides the cache model of the offline interception layer:
// request keys, response snapshots and the per-generation cache manager.
//
// Only GET requests whose URL origin equals the application origin are
// eligible. Everything else is passthrough and never reaches a store.
//
// # Basic Usage
//
//	origin, _ := cache.ParseOrigin("https://app.example.com")
//
//	st, err := backend.Open(ctx, "v42")
//	if err != nil {
//		return err
//	}
//	manager := cache.NewManager(st, origin)
//
//	key := cache.KeyFor(req)
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		resp = cache.OfflineResponse(req)
//	}
//
// # HTTP Response Snapshots
//
//	// Snapshot a response; the body is read and restored for the caller
//	entry, err := cache.ResponseToEntry(resp)
//	if err != nil {
//		return err
//	}
//
//	// Store it, replacing any previous entry for the key
//	if err := manager.Put(ctx, key, entry); err != nil {
//		return err
//	}
//
//	// Later: rebuild an independent response from the snapshot
//	resp := cache.EntryToResponse(entry, req)
//
// # Metrics
//
//   - offline_cache_hits_total - Store lookups that found an entry
//   - offline_cache_misses_total - Store lookups that found nothing
//   - offline_cache_writes_total - Entries written
//   - offline_cache_written_bytes_total - Encoded bytes written
//   - offline_cache_errors_total{operation} - Store operation errors
package cache
