package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the Sweeper evicts expired entries.
const DefaultSweepInterval = time.Minute

// Sweeper periodically evicts expired entries so memory stays bounded even
// when expired keys are never looked up again.
type Sweeper struct {
	cache    *APIKeyCache
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper for c. A non-positive interval falls back to
// DefaultSweepInterval.
func NewSweeper(c *APIKeyCache, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sweeper{cache: c, interval: interval, logger: logger}
}

// Start begins the background sweep loop. Non-blocking.
func (s *Sweeper) Start() {
	if s == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := s.cache.CleanupExpired(); n > 0 {
					s.logger.Debug("evicted expired api keys from cache", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
