// Package stats persists import run records.
//
// Three backends implement core.StatsStore: an in-process map for single
// instance deployments and tests, PostgreSQL, and Redis. Records older than
// the configured TTL read as absent.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/csvimport/internal/core"
)

// DefaultTTL is how long a run record survives without updates.
const DefaultTTL = 7 * 24 * time.Hour

type memoryEntry struct {
	stats     core.RunStats
	updatedAt time.Time
}

// MemoryStore keeps run records in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[core.RunKey]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an empty store. ttl <= 0 uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		records: make(map[core.RunKey]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key core.RunKey) (core.RunStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current(key), nil
}

func (m *MemoryStore) Init(ctx context.Context, key core.RunKey, st core.RunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = memoryEntry{stats: cloneStats(st), updatedAt: m.now()}
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, key core.RunKey, fn func(*core.RunStats) error) (core.RunStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.current(key)
	if err := fn(&st); err != nil {
		return core.RunStats{}, err
	}
	m.records[key] = memoryEntry{stats: cloneStats(st), updatedAt: m.now()}
	return st, nil
}

func (m *MemoryStore) Clear(ctx context.Context, key core.RunKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// PurgeExpired drops records past their TTL.
func (m *MemoryStore) PurgeExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	cutoff := m.now().Add(-m.ttl)
	for key, e := range m.records {
		if e.updatedAt.Before(cutoff) {
			delete(m.records, key)
			n++
		}
	}
	return n, nil
}

// current returns a copy of the live record. Caller holds mu.
func (m *MemoryStore) current(key core.RunKey) core.RunStats {
	e, ok := m.records[key]
	if !ok || m.now().Sub(e.updatedAt) > m.ttl {
		return core.RunStats{}
	}
	return cloneStats(e.stats)
}

func cloneStats(st core.RunStats) core.RunStats {
	if st.Errors != nil {
		errs := make([]core.RowError, len(st.Errors))
		copy(errs, st.Errors)
		st.Errors = errs
	}
	return st
}
