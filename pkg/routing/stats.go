package routing

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time copy of the resolver counters.
type Stats struct {
	// Resolutions is the number of successful resolutions.
	Resolutions int64

	// PerCatalog counts resolutions by catalog id.
	PerCatalog map[string]int64

	// NotFound is the number of resolutions that matched nothing.
	NotFound int64

	// StoreLookups is the number of cache misses answered by the store.
	StoreLookups int64

	// Errors is the number of store failures.
	Errors int64

	// Since is when the counters were last reset.
	Since time.Time
}

// atomicStats implements lock-free resolver counters.
type atomicStats struct {
	resolutions  atomic.Int64
	perCatalog   sync.Map // map[string]*atomic.Int64
	notFound     atomic.Int64
	storeLookups atomic.Int64
	errors       atomic.Int64

	mu    sync.RWMutex
	since time.Time
}

func newAtomicStats() *atomicStats {
	return &atomicStats{since: time.Now()}
}

func (s *atomicStats) recordResolution(catalogID string) {
	s.resolutions.Add(1)
	val, _ := s.perCatalog.LoadOrStore(catalogID, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

func (s *atomicStats) snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	per := make(map[string]int64)
	s.perCatalog.Range(func(key, value any) bool {
		per[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	return Stats{
		Resolutions:  s.resolutions.Load(),
		PerCatalog:   per,
		NotFound:     s.notFound.Load(),
		StoreLookups: s.storeLookups.Load(),
		Errors:       s.errors.Load(),
		Since:        s.since,
	}
}

func (s *atomicStats) reset() {
	s.resolutions.Store(0)
	s.notFound.Store(0)
	s.storeLookups.Store(0)
	s.errors.Store(0)
	s.perCatalog.Range(func(key, _ any) bool {
		s.perCatalog.Delete(key)
		return true
	})

	s.mu.Lock()
	s.since = time.Now()
	s.mu.Unlock()
}
