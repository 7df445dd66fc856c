package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/apiodactyl/apiodactyl/internal/store"
)

const (
	// DefaultLastUsedQueue bounds the number of pending last-used updates.
	DefaultLastUsedQueue = 1024
	// DefaultLastUsedTimeout caps a single last-used write.
	DefaultLastUsedTimeout = 5 * time.Second
)

// lastUsedWorker applies last-used timestamp updates off the request path.
// Submissions never block: when the queue is full the update is dropped.
// Updates are best effort and are not retried.
type lastUsedWorker struct {
	store   KeyStore
	queue   chan int64
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func newLastUsedWorker(ks KeyStore, size int, timeout time.Duration, logger *slog.Logger, metrics *Metrics) *lastUsedWorker {
	if size <= 0 {
		size = DefaultLastUsedQueue
	}
	if timeout <= 0 {
		timeout = DefaultLastUsedTimeout
	}

	w := &lastUsedWorker{
		store:   ks,
		queue:   make(chan int64, size),
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
	w.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "last-used-updates",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A key revoked between validation and update is not a store fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, store.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	w.wg.Add(1)
	go w.run()
	return w
}

// submit enqueues an update for id. It reports false when the update was
// dropped because the queue is full or the worker is closed.
func (w *lastUsedWorker) submit(id int64) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.metrics.lastUsedOutcome("dropped")
		return false
	}
	select {
	case w.queue <- id:
		w.metrics.lastUsedOutcome("submitted")
		return true
	default:
		w.metrics.lastUsedOutcome("dropped")
		w.logger.Debug("last-used queue full, dropping update", "key_id", id)
		return false
	}
}

// close stops accepting updates and waits for queued ones to finish.
func (w *lastUsedWorker) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *lastUsedWorker) run() {
	defer w.wg.Done()
	for id := range w.queue {
		w.update(id)
	}
}

func (w *lastUsedWorker) update(id int64) {
	defer func() {
		if r := recover(); r != nil {
			w.metrics.lastUsedOutcome("failed")
			w.logger.Error("panic in last-used update", "key_id", id, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	_, err := w.breaker.Execute(func() (interface{}, error) {
		return nil, w.store.UpdateLastUsed(ctx, id)
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		w.metrics.lastUsedOutcome("failed")
		w.logger.Debug("last-used update failed", "key_id", id, "error", err)
		return
	}
	w.metrics.lastUsedOutcome("updated")
}
