package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// memStats is an in-memory StatsStore for tests.
type memStats struct {
	mu      sync.Mutex
	records map[RunKey]RunStats
	failGet error
}

func newMemStats() *memStats {
	return &memStats{records: make(map[RunKey]RunStats)}
}

func (m *memStats) Get(ctx context.Context, key RunKey) (RunStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return RunStats{}, m.failGet
	}
	return m.records[key], nil
}

func (m *memStats) Init(ctx context.Context, key RunKey, st RunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = st
	return nil
}

func (m *memStats) Update(ctx context.Context, key RunKey, fn func(*RunStats) error) (RunStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.records[key]
	st.Errors = append([]RowError(nil), st.Errors...)
	if err := fn(&st); err != nil {
		return RunStats{}, err
	}
	m.records[key] = st
	return st, nil
}

func (m *memStats) Clear(ctx context.Context, key RunKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// fakeFiles serves one in-memory CSV per handle.
type fakeFiles struct {
	headers map[string][]string
	rows    map[string][][]string
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{headers: map[string][]string{}, rows: map[string][][]string{}}
}

func (f *fakeFiles) add(handle string, headers []string, rows ...[]string) {
	f.headers[handle] = headers
	f.rows[handle] = rows
}

func (f *fakeFiles) Headers(ctx context.Context, handle string) ([]string, error) {
	h, ok := f.headers[handle]
	if !ok {
		return nil, ErrFileNotFound
	}
	return h, nil
}

func (f *fakeFiles) RowCount(ctx context.Context, handle string) (int, error) {
	if _, ok := f.headers[handle]; !ok {
		return 0, ErrFileNotFound
	}
	return len(f.rows[handle]), nil
}

func (f *fakeFiles) Rows(ctx context.Context, handle string, offset, limit int) ([][]string, error) {
	rows, ok := f.rows[handle]
	if !ok {
		return nil, ErrFileNotFound
	}
	if offset >= len(rows) {
		return nil, nil
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end], nil
}

// fakeEntities answers lookups from a table keyed by kind, strategy and value.
type fakeEntities struct {
	mu        sync.Mutex
	entries   map[string]int64
	calls     []MatchBy
	nextID    int64
	createErr error
	findErr   error
	creates   int
}

func newFakeEntities() *fakeEntities {
	return &fakeEntities{entries: map[string]int64{}, nextID: 100}
}

func entityKey(kind FieldType, by MatchBy, value string) string {
	return fmt.Sprintf("%s|%s|%s", kind, by, value)
}

func (f *fakeEntities) set(kind FieldType, by MatchBy, value string, id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entityKey(kind, by, value)] = id
}

func (f *fakeEntities) Find(ctx context.Context, q EntityQuery) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, q.By)
	if f.findErr != nil {
		return 0, false, f.findErr
	}
	id, ok := f.entries[entityKey(q.Kind, q.By, q.Value)]
	return id, ok, nil
}

func (f *fakeEntities) CreateTerm(ctx context.Context, taxonomy, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	f.entries[entityKey(TypeTerm, MatchName, name)] = f.nextID
	return f.nextID, nil
}

// recordingHooks counts lifecycle callbacks.
type recordingHooks struct {
	mu        sync.Mutex
	rejectErr error
	before    int
	after     []RunStats
}

func (h *recordingHooks) BeforeImport(ctx context.Context, run RunInfo) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.before++
	return h.rejectErr
}

func (h *recordingHooks) AfterImport(ctx context.Context, key RunKey, st RunStats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.after = append(h.after, st)
}

var errBackend = errors.New("backend unavailable")

func ptrFloat(f float64) *float64 { return &f }

func ptrInt(i int) *int { return &i }
