package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
	"github.com/custodia-labs/authcore/internal/core/ports/driven/mocks"
)

func newSweeperFixture(t *testing.T) (*mocks.MockDriver, *mocks.MockClock, *APIKeySweeper) {
	t.Helper()
	reg, err := domain.NewRegistry(domain.Model{
		Name: "apikey",
		Fields: []domain.Field{
			{Name: "id", Type: domain.FieldString},
			{Name: "key", Type: domain.FieldString, Unique: true},
			{Name: "expiresAt", Type: domain.FieldDate},
		},
	})
	require.NoError(t, err)

	driver := mocks.NewMockDriver()
	adapter, err := New(context.Background(), reg, driver, Config{})
	require.NoError(t, err)

	clock := mocks.NewMockClock(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC))
	sweeper := NewAPIKeySweeper(adapter, APIKeySweeperConfig{
		Clock:    clock,
		Interval: 10 * time.Minute,
	})
	return driver, clock, sweeper
}

func TestSweepExpired(t *testing.T) {
	driver, clock, sweeper := newSweeperFixture(t)
	now := clock.Now()
	driver.Seed("apikey",
		driven.Row{"id": "k1", "key": "a", "expiresAt": now.Add(-time.Hour)},
		driven.Row{"id": "k2", "key": "b", "expiresAt": now.Add(time.Hour)},
		// Keys without an expiry never expire.
		driven.Row{"id": "k3", "key": "c"},
	)

	n, err := sweeper.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	remaining := driver.Rows("apikey")
	require.Len(t, remaining, 2)
	for _, row := range remaining {
		assert.NotEqual(t, "k1", row["id"])
	}
}

func TestSweepExpired_IntervalThrottle(t *testing.T) {
	driver, clock, sweeper := newSweeperFixture(t)
	driver.Seed("apikey",
		driven.Row{"id": "k1", "key": "a", "expiresAt": clock.Now().Add(-time.Hour)},
	)

	n, err := sweeper.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// A second sweep within the interval is a no-op.
	driver.Seed("apikey",
		driven.Row{"id": "k2", "key": "b", "expiresAt": clock.Now().Add(-time.Hour)},
	)
	n, err = sweeper.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Len(t, driver.Rows("apikey"), 1)

	// Advancing past the interval re-enables sweeping.
	clock.Advance(11 * time.Minute)
	n, err = sweeper.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
