package registry

// CacheStats reports lightweight cache metrics.
// All fields are best-effort snapshots and may be updated concurrently.
type CacheStats struct {
	Capacity  int    // configured capacity (0 for disabled cache)
	Size      int    // current number of entries
	Hits      uint64 // total cache hits since construction
	Misses    uint64 // total cache misses since construction
	Evictions uint64 // total evictions since construction
}

// StoreStats reports store metadata.
type StoreStats struct {
	Version     uint64 // snapshot version (0 before the first load)
	UpdatedUnix int64  // last rebuild, unix seconds
	Entries     uint64 // number of registry entries
}

// Stats is the registry-level view exposed to health checks.
type Stats struct {
	Loaded bool
	Store  StoreStats
	Cache  CacheStats
}
