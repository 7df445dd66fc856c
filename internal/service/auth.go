package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/apiodactyl/apiodactyl/internal/cache"
	"github.com/apiodactyl/apiodactyl/internal/model"
	"github.com/apiodactyl/apiodactyl/internal/store"
)

// KeyStore is the durable API key store. *store.Store implements it.
type KeyStore interface {
	FindByHash(ctx context.Context, hash string) (model.APIKey, error)
	FindByID(ctx context.Context, id int64) (model.APIKey, error)
	Insert(ctx context.Context, hash string, isAdmin bool) (model.APIKey, error)
	DeleteByHash(ctx context.Context, hash string) (int64, error)
	UpdateLastUsed(ctx context.Context, id int64) error
	SetAdmin(ctx context.Context, id int64, isAdmin bool) (model.APIKey, error)
	ListAll(ctx context.Context) ([]model.APIKey, error)
	HasAdmin(ctx context.Context) (bool, error)
}

// minAdminSecretLen is the length below which a bootstrap secret is
// considered weak.
const minAdminSecretLen = 32

// AuthService validates API keys against the key store through a TTL cache
// and manages the key lifecycle.
type AuthService struct {
	store   KeyStore
	cache   *cache.APIKeyCache
	logger  *slog.Logger
	metrics *Metrics

	lookups     singleflight.Group
	bootstrapMu sync.Mutex

	queueSize   int
	lastUsedTTL time.Duration
	lastUsed    *lastUsedWorker
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *AuthService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records validation metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(s *AuthService) { s.metrics = m }
}

// WithCache replaces the default cache, e.g. to change the TTL.
func WithCache(c *cache.APIKeyCache) Option {
	return func(s *AuthService) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithLastUsedQueue sets the capacity of the last-used update queue and the
// timeout applied to each update.
func WithLastUsedQueue(size int, timeout time.Duration) Option {
	return func(s *AuthService) {
		s.queueSize = size
		s.lastUsedTTL = timeout
	}
}

// NewAuthService creates an AuthService backed by ks. Call Close to stop the
// last-used worker.
func NewAuthService(ks KeyStore, opts ...Option) *AuthService {
	s := &AuthService{
		store:  ks,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.New()
	}
	s.metrics.trackCacheSize(s.cache.Len)
	s.lastUsed = newLastUsedWorker(ks, s.queueSize, s.lastUsedTTL, s.logger, s.metrics)
	return s
}

// Cache returns the cache used by the service.
func (s *AuthService) Cache() *cache.APIKeyCache { return s.cache }

// Validate resolves a raw API key to its record. A fresh cache entry is
// returned without touching the store; concurrent misses for the same key
// share one store lookup. An unknown key yields ErrInvalidKey and a store
// failure a *StoreError.
func (s *AuthService) Validate(ctx context.Context, secret string) (model.APIKey, error) {
	hash := HashKey(secret)

	if key, ok := s.cache.Get(hash); ok {
		s.metrics.cacheHit()
		s.metrics.validation("valid")
		return key, nil
	}
	s.metrics.cacheMiss()

	// The shared lookup must not fail because the caller that started it
	// went away.
	lookupCtx := context.WithoutCancel(ctx)
	v, err, _ := s.lookups.Do(hash, func() (interface{}, error) {
		if key, ok := s.cache.Get(hash); ok {
			return key, nil
		}
		epoch := s.cache.Epoch()
		s.metrics.storeLookup()
		key, err := s.store.FindByHash(lookupCtx, hash)
		if err != nil {
			return nil, err
		}
		s.cache.Fill(hash, key, epoch)
		return key, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.validation("invalid")
			return model.APIKey{}, ErrInvalidKey
		}
		s.metrics.validation("error")
		return model.APIKey{}, &StoreError{Op: "find api key", Err: err}
	}

	s.metrics.validation("valid")
	return v.(model.APIKey), nil
}

// CreateKey stores the hash of secret as a new key and caches the record.
// The plaintext secret is never persisted.
func (s *AuthService) CreateKey(ctx context.Context, secret string, isAdmin bool) (model.APIKey, error) {
	if secret == "" {
		return model.APIKey{}, ErrEmptySecret
	}
	hash := HashKey(secret)

	key, err := s.store.Insert(ctx, hash, isAdmin)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return model.APIKey{}, ErrDuplicateKey
		}
		return model.APIKey{}, &StoreError{Op: "insert api key", Err: err}
	}

	s.cache.Insert(hash, key)
	s.logger.Info("api key created", "key_id", key.ID, "is_admin", key.IsAdmin)
	return key, nil
}

// RevokeKey deletes the key matching secret and evicts it from the cache.
// It reports whether a record was deleted; revoking an unknown key is not an
// error.
func (s *AuthService) RevokeKey(ctx context.Context, secret string) (bool, error) {
	hash := HashKey(secret)

	n, err := s.store.DeleteByHash(ctx, hash)
	// Evict even on failure so a stale entry cannot outlive a revoke attempt.
	s.cache.Remove(hash)
	if err != nil {
		return false, &StoreError{Op: "delete api key", Err: err}
	}

	if n > 0 {
		s.logger.Info("api key revoked")
	}
	return n > 0, nil
}

// RevokeKeyByID deletes the key with the given id and evicts it from the
// cache. It returns ErrKeyNotFound when no such key exists.
func (s *AuthService) RevokeKeyByID(ctx context.Context, id int64) error {
	key, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrKeyNotFound
		}
		return &StoreError{Op: "find api key", Err: err}
	}

	n, err := s.store.DeleteByHash(ctx, key.KeyHash)
	s.cache.Remove(key.KeyHash)
	if err != nil {
		return &StoreError{Op: "delete api key", Err: err}
	}
	if n == 0 {
		return ErrKeyNotFound
	}

	s.logger.Info("api key revoked", "key_id", id)
	return nil
}

// PromoteKey grants admin rights to the key with the given id. The cached
// entry is evicted so the next validation sees the change.
func (s *AuthService) PromoteKey(ctx context.Context, id int64) (model.APIKey, error) {
	key, err := s.store.SetAdmin(ctx, id, true)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.APIKey{}, ErrKeyNotFound
		}
		return model.APIKey{}, &StoreError{Op: "promote api key", Err: err}
	}

	s.cache.Remove(key.KeyHash)
	s.logger.Info("api key promoted to admin", "key_id", id)
	return key, nil
}

// ListKeys returns every stored key ordered by id.
func (s *AuthService) ListKeys(ctx context.Context) ([]model.APIKey, error) {
	keys, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list api keys", Err: err}
	}
	return keys, nil
}

// UpdateLastUsed schedules a last-used timestamp update for id. It never
// blocks and reports false if the update was dropped.
func (s *AuthService) UpdateLastUsed(id int64) bool {
	return s.lastUsed.submit(id)
}

// EnsureAdminExists creates an admin key from secret when the store holds no
// admin key. It is idempotent, and concurrent calls create at most one key.
// Any failure is returned as a *BootstrapError.
func (s *AuthService) EnsureAdminExists(ctx context.Context, secret string) error {
	s.bootstrapMu.Lock()
	defer s.bootstrapMu.Unlock()

	hasAdmin, err := s.store.HasAdmin(ctx)
	if err != nil {
		return &BootstrapError{Err: &StoreError{Op: "check admin key", Err: err}}
	}
	if hasAdmin {
		s.logger.Debug("admin key already exists")
		return nil
	}

	if secret == "" {
		return &BootstrapError{Err: errors.New("no admin key exists and no admin token is configured")}
	}
	if len(secret) < minAdminSecretLen {
		s.logger.Warn("admin token is shorter than recommended", "min_length", minAdminSecretLen)
	}
	if !strings.HasPrefix(secret, KeyPrefix) {
		s.logger.Warn("admin token does not use the standard key prefix", "prefix", KeyPrefix)
	}

	key, err := s.CreateKey(ctx, secret, true)
	if err != nil {
		return &BootstrapError{Err: err}
	}

	s.logger.Info("admin key created", "key_id", key.ID)
	return nil
}

// CleanupCache evicts expired cache entries and returns how many were
// removed.
func (s *AuthService) CleanupCache() int {
	return s.cache.CleanupExpired()
}

// Close drains pending last-used updates and stops the worker.
func (s *AuthService) Close() {
	s.lastUsed.close()
}
