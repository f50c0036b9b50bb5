// Package partition manages named cache partitions over a pluggable
// key→response store.
//
// A partition is a named, durable key→response store. The gateway keeps one
// versioned shell partition (its name embeds a version token), plus stable
// media and API partitions. Partitions are created lazily on first access and
// destroyed only during activation, when a new version's whitelist no longer
// lists them.
//
// # Backends
//
// Three Backend implementations are provided:
//
//   - MemoryBackend: in-process map, used for tests and single-instance setups
//   - RedisBackend: shared cache backed by Redis
//   - SQLiteBackend: durable local-disk cache
//
// # Basic Usage
//
//	backend := partition.NewMemoryBackend()
//	manager := partition.NewManager(backend, logger)
//
//	p, err := manager.Open(ctx, "media")
//	if err != nil {
//		// *StorageError
//	}
//
//	entry, err := p.Get(ctx, key)
//	if errors.Is(err, partition.ErrMiss) {
//		// fetch from origin
//	}
//
// # Invariants
//
// Only full-content (status 200) snapshots may be stored; Put rejects anything
// else with ErrNotCacheable. Entries are overwritten by later writes for the
// same key and removed only by whole-partition deletion. Reads racing an
// eviction report a miss.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - cachegw_partition_hits_total{partition} - lookups served from the store
//   - cachegw_partition_misses_total{partition} - lookups that found nothing
//   - cachegw_partition_errors_total{operation} - storage operation errors
//   - cachegw_warmup_failures_total - precache URLs that could not be stored
//   - cachegw_partitions_evicted_total - partitions deleted during activation
package partition
