package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultSweepInterval is how often idle sessions are looked for.
const DefaultSweepInterval = 5 * time.Minute

// EvictCallback is called with the IDs removed by a sweep, when there are any.
type EvictCallback func(sessionIDs []string)

// SweeperConfig configures StartSweeper.
type SweeperConfig struct {
	TTL      time.Duration
	Interval time.Duration
	Clock    clock.Clock
	OnEvict  EvictCallback
}

// StartSweeper runs a background goroutine that periodically deletes sessions
// idle for longer than TTL. The returned channel is closed once the goroutine exits.
func StartSweeper(ctx context.Context, repo Repository, cfg SweeperConfig) <-chan struct{} {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	done := make(chan struct{})
	ticker := cfg.Clock.Ticker(cfg.Interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", cfg.Interval, "ttl", cfg.TTL)

		for {
			select {
			case <-ticker.C:
				sweepIdleSessions(ctx, repo, cfg)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func sweepIdleSessions(ctx context.Context, repo Repository, cfg SweeperConfig) {
	cutoff := cfg.Clock.Now().Add(-cfg.TTL)
	deleted, err := repo.DeleteIdle(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Session sweep interrupted by shutdown", "error", err)
			return
		}
		slog.Error("Session sweeper failed to delete idle sessions", "error", err)
		return
	}
	if len(deleted) == 0 {
		return
	}

	slog.Info("Session sweeper evicted idle sessions", "count", len(deleted))
	if cfg.OnEvict != nil {
		cfg.OnEvict(deleted)
	}
}
