package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
	"github.com/custodia-labs/authcore/internal/driverutil"
)

// Verify interface compliance
var (
	_ driven.Driver            = (*MockDriver)(nil)
	_ driven.SchemaInitializer = (*MockDriver)(nil)
	_ driven.TxRunner          = (*MockTxDriver)(nil)
	_ driven.Clock             = (*MockClock)(nil)
)

// MockDriver is a mock implementation of Driver for testing. It stores rows
// in plain maps, evaluates predicates in memory and records every call so
// tests can assert exactly what reached the backend.
type MockDriver struct {
	mu   sync.RWMutex
	Caps driven.Capabilities
	rows map[string][]driven.Row

	Tables      []driven.Table
	InsertedRow driven.Row
	UpdatedRow  driven.Row
	LastQuery   driven.Query
	LastWhere   *driven.Predicate
	Err         error
}

// NewMockDriver creates a new MockDriver with every capability enabled.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		Caps: driven.Capabilities{Booleans: true, Dates: true, JSON: true, Transactions: true},
		rows: make(map[string][]driven.Row),
	}
}

func (m *MockDriver) Name() string { return "mock" }

func (m *MockDriver) Capabilities() driven.Capabilities { return m.Caps }

func (m *MockDriver) InitSchema(ctx context.Context, tables []driven.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tables = tables
	return nil
}

// Seed places rows directly into a table, bypassing Insert bookkeeping.
func (m *MockDriver) Seed(model string, rows ...driven.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		m.rows[model] = append(m.rows[model], cloneRow(row))
	}
}

func (m *MockDriver) Insert(ctx context.Context, model string, values driven.Row) (driven.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.InsertedRow = cloneRow(values)
	stored := cloneRow(values)
	m.rows[model] = append(m.rows[model], stored)
	return cloneRow(stored), nil
}

func (m *MockDriver) SelectOne(ctx context.Context, q driven.Query) (driven.Row, error) {
	q.Limit = 1
	rows, err := m.SelectMany(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0], nil
}

func (m *MockDriver) SelectMany(ctx context.Context, q driven.Query) ([]driven.Row, error) {
	m.mu.Lock()
	m.LastQuery = q
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var matched []driven.Row
	for _, row := range m.rows[q.Model] {
		ok, err := driverutil.Match(row, q.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, cloneRow(row))
		}
	}
	matched, err := driverutil.ExpandJoins(matched, q.Joins, func(model string) ([]driven.Row, error) {
		out := make([]driven.Row, 0, len(m.rows[model]))
		for _, row := range m.rows[model] {
			out = append(out, cloneRow(row))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	driverutil.SortRows(matched, q.OrderBy)
	return driverutil.Page(matched, q.Limit, q.Offset), nil
}

func (m *MockDriver) Update(ctx context.Context, model string, where *driven.Predicate, values driven.Row) (driven.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.LastWhere = where
	m.UpdatedRow = cloneRow(values)
	for i, row := range m.rows[model] {
		ok, err := driverutil.Match(row, where)
		if err != nil {
			return nil, err
		}
		if ok {
			merged := cloneRow(row)
			for k, v := range values {
				merged[k] = v
			}
			m.rows[model][i] = merged
			return cloneRow(merged), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockDriver) UpdateMany(ctx context.Context, model string, where *driven.Predicate, values driven.Row) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	m.LastWhere = where
	var n int64
	for i, row := range m.rows[model] {
		ok, err := driverutil.Match(row, where)
		if err != nil {
			return 0, err
		}
		if ok {
			merged := cloneRow(row)
			for k, v := range values {
				merged[k] = v
			}
			m.rows[model][i] = merged
			n++
		}
	}
	return n, nil
}

func (m *MockDriver) Delete(ctx context.Context, model string, where *driven.Predicate) error {
	n, err := m.DeleteMany(ctx, model, where)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (m *MockDriver) DeleteMany(ctx context.Context, model string, where *driven.Predicate) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	m.LastWhere = where
	var kept []driven.Row
	var n int64
	for _, row := range m.rows[model] {
		ok, err := driverutil.Match(row, where)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
			continue
		}
		kept = append(kept, row)
	}
	m.rows[model] = kept
	return n, nil
}

func (m *MockDriver) Count(ctx context.Context, model string, where *driven.Predicate) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return 0, m.Err
	}
	var n int64
	for _, row := range m.rows[model] {
		ok, err := driverutil.Match(row, where)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Rows returns a copy of the stored rows for a table.
func (m *MockDriver) Rows(model string) []driven.Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]driven.Row, 0, len(m.rows[model]))
	for _, row := range m.rows[model] {
		out = append(out, cloneRow(row))
	}
	return out
}

func cloneRow(row driven.Row) driven.Row {
	out := make(driven.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// MockTxDriver wraps MockDriver with a transaction runner so adapter tests
// can observe transaction scoping.
type MockTxDriver struct {
	*MockDriver
	TxCalls int
}

// NewMockTxDriver creates a new MockTxDriver.
func NewMockTxDriver() *MockTxDriver {
	return &MockTxDriver{MockDriver: NewMockDriver()}
}

func (m *MockTxDriver) RunInTransaction(ctx context.Context, fn func(driven.Driver) error) error {
	m.TxCalls++
	return fn(m.MockDriver)
}

// MockClock is a mock implementation of Clock whose time only moves when a
// test advances it.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock starting at the given instant.
func NewMockClock(now time.Time) *MockClock {
	return &MockClock{now: now}
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
