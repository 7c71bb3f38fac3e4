package compliance

import (
	"context"
	"time"

	"ipo-compliance/internal/common/logger"
	"ipo-compliance/internal/common/metrics"
)

// SweepStore fails pending generation cycles older than a cutoff.
type SweepStore interface {
	FailStaleGenerations(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Sweeper force-fails generation cycles that never received a terminal webhook.
type Sweeper struct {
	store      SweepStore
	staleAfter time.Duration
	logger     logger.Logger
	now        func() time.Time
}

func NewSweeper(st SweepStore, staleAfter time.Duration, log logger.Logger) *Sweeper {
	return &Sweeper{
		store:      st,
		staleAfter: staleAfter,
		logger:     log.WithFields(map[string]interface{}{"component": "sweeper"}),
		now:        time.Now,
	}
}

// Sweep runs one pass and returns the ids of the companies it failed. It is idempotent.
func (s *Sweeper) Sweep(ctx context.Context) ([]string, error) {
	cutoff := s.now().Add(-s.staleAfter)

	ids, err := s.store.FailStaleGenerations(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	metrics.StaleGenerationsFailed.Add(float64(len(ids)))
	if len(ids) > 0 {
		s.logger.Info("failed stale generation cycles", map[string]interface{}{
			"companies": ids,
			"cutoff":    cutoff.UTC().Format(time.RFC3339),
		})
	}
	return ids, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("staleness sweep started", map[string]interface{}{
		"interval":   interval.String(),
		"staleAfter": s.staleAfter.String(),
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("staleness sweep stopped", nil)
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("staleness sweep failed", map[string]interface{}{"error": err})
			}
		}
	}
}
