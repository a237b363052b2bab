package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
	"github.com/custodia-labs/authcore/internal/core/ports/driving"
)

// APIKeySweeper removes expired API keys through the adapter. The last-sweep
// timestamp is owned by the sweeper instance and the clock is injectable, so
// sweeps are deterministic under test and two instances never share state.
type APIKeySweeper struct {
	adapter  driving.Adapter
	model    string
	clock    driven.Clock
	interval time.Duration
	log      *slog.Logger

	mu        sync.Mutex
	lastSweep time.Time
}

// APIKeySweeperConfig configures a sweeper. Zero values mean: model "apikey",
// system clock, 10 minute minimum interval, default logger.
type APIKeySweeperConfig struct {
	Model    string
	Clock    driven.Clock
	Interval time.Duration
	Logger   *slog.Logger
}

// NewAPIKeySweeper creates a sweeper over the given adapter.
func NewAPIKeySweeper(adapter driving.Adapter, cfg APIKeySweeperConfig) *APIKeySweeper {
	if cfg.Model == "" {
		cfg.Model = "apikey"
	}
	if cfg.Clock == nil {
		cfg.Clock = driven.SystemClock{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &APIKeySweeper{
		adapter:  adapter,
		model:    cfg.Model,
		clock:    cfg.Clock,
		interval: cfg.Interval,
		log:      cfg.Logger,
	}
}

// SweepExpired deletes every key whose expiry lies in the past. Sweeps
// within the minimum interval of the previous one are skipped and report
// zero deletions.
func (s *APIKeySweeper) SweepExpired(ctx context.Context) (int64, error) {
	now := s.clock.Now()

	s.mu.Lock()
	if now.Sub(s.lastSweep) < s.interval {
		s.mu.Unlock()
		return 0, nil
	}
	s.lastSweep = now
	s.mu.Unlock()

	n, err := s.adapter.DeleteMany(ctx, s.model, domain.Where{domain.Lt("expiresAt", now)})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Debug("swept expired api keys", "count", n)
	}
	return n, nil
}
