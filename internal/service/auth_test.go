package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/apiodactyl/apiodactyl/internal/model"
	"github.com/apiodactyl/apiodactyl/internal/store"
)

// memStore is an in-memory KeyStore that counts lookups.
type memStore struct {
	mu     sync.Mutex
	byHash map[string]model.APIKey
	nextID int64

	lookups     atomic.Int64
	lookupDelay time.Duration
	failWith    error

	// updates receives ids passed to UpdateLastUsed. blockUpdates, when
	// non-nil, holds every update until closed.
	updates      chan int64
	blockUpdates chan struct{}
}

func newMemStore() *memStore {
	return &memStore{
		byHash:  make(map[string]model.APIKey),
		updates: make(chan int64, 64),
	}
}

func (m *memStore) FindByHash(ctx context.Context, hash string) (model.APIKey, error) {
	m.lookups.Add(1)
	if m.lookupDelay > 0 {
		time.Sleep(m.lookupDelay)
	}
	if m.failWith != nil {
		return model.APIKey{}, m.failWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.byHash[hash]
	if !ok {
		return model.APIKey{}, store.ErrNotFound
	}
	return key, nil
}

func (m *memStore) FindByID(ctx context.Context, id int64) (model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.byHash {
		if k.ID == id {
			return k, nil
		}
	}
	return model.APIKey{}, store.ErrNotFound
}

func (m *memStore) Insert(ctx context.Context, hash string, isAdmin bool) (model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byHash[hash]; ok {
		return model.APIKey{}, store.ErrDuplicate
	}
	m.nextID++
	key := model.APIKey{ID: m.nextID, KeyHash: hash, IsAdmin: isAdmin, CreatedAt: time.Now().UTC()}
	m.byHash[hash] = key
	return key, nil
}

func (m *memStore) DeleteByHash(ctx context.Context, hash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byHash[hash]; !ok {
		return 0, nil
	}
	delete(m.byHash, hash)
	return 1, nil
}

func (m *memStore) UpdateLastUsed(ctx context.Context, id int64) error {
	if m.blockUpdates != nil {
		m.updates <- id
		<-m.blockUpdates
		return nil
	}
	m.mu.Lock()
	found := false
	for h, k := range m.byHash {
		if k.ID == id {
			now := time.Now().UTC()
			k.LastUsedAt = &now
			m.byHash[h] = k
			found = true
		}
	}
	m.mu.Unlock()
	if !found {
		return store.ErrNotFound
	}
	select {
	case m.updates <- id:
	default:
	}
	return nil
}

func (m *memStore) SetAdmin(ctx context.Context, id int64, isAdmin bool) (model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, k := range m.byHash {
		if k.ID == id {
			k.IsAdmin = isAdmin
			m.byHash[h] = k
			return k, nil
		}
	}
	return model.APIKey{}, store.ErrNotFound
}

func (m *memStore) ListAll(ctx context.Context) ([]model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]model.APIKey, 0, len(m.byHash))
	for _, k := range m.byHash {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memStore) HasAdmin(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.byHash {
		if k.IsAdmin {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) adminCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.byHash {
		if k.IsAdmin {
			n++
		}
	}
	return n
}

func newTestAuth(t *testing.T, opts ...Option) (*AuthService, *memStore) {
	t.Helper()
	ms := newMemStore()
	auth := NewAuthService(ms, opts...)
	t.Cleanup(auth.Close)
	return auth, ms
}

// ---------------------------------------------------------------------------
// Hashing and key generation
// ---------------------------------------------------------------------------

func TestHashKey(t *testing.T) {
	got := HashKey("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("HashKey(abc) = %s, want %s", got, want)
	}
	if HashKey("abc") != HashKey("abc") {
		t.Error("HashKey should be deterministic")
	}
	if HashKey("abc") == HashKey("abd") {
		t.Error("different keys should hash differently")
	}
	if len(HashKey("")) != 64 {
		t.Errorf("hash length: got %d, want 64", len(HashKey("")))
	}
}

func TestGenerateKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := GenerateKey()
		if !strings.HasPrefix(key, KeyPrefix) {
			t.Fatalf("key %q missing prefix", key)
		}
		if len(key) != len(KeyPrefix)+32 {
			t.Fatalf("key %q: got length %d, want %d", key, len(key), len(KeyPrefix)+32)
		}
		for _, c := range strings.TrimPrefix(key, KeyPrefix) {
			if !strings.ContainsRune("0123456789abcdef", c) {
				t.Fatalf("key %q contains non-hex character %q", key, c)
			}
		}
		if seen[key] {
			t.Fatalf("duplicate key generated: %s", key)
		}
		seen[key] = true
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestValidateServedFromCache(t *testing.T) {
	ms := newMemStore()
	ctx := context.Background()

	seed := NewAuthService(ms)
	if _, err := seed.CreateKey(ctx, "ak_cached", false); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	seed.Close()

	// A fresh service starts with a cold cache.
	auth := NewAuthService(ms)
	t.Cleanup(auth.Close)

	for i := 0; i < 3; i++ {
		key, err := auth.Validate(ctx, "ak_cached")
		if err != nil {
			t.Fatalf("Validate #%d: %v", i, err)
		}
		if key.IsAdmin {
			t.Error("expected non-admin key")
		}
	}
	if got := ms.lookups.Load(); got != 1 {
		t.Errorf("store lookups: got %d, want 1", got)
	}
}

func TestCreateKeyPrimesCache(t *testing.T) {
	auth, ms := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.CreateKey(ctx, "ak_primed", true); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	key, err := auth.Validate(ctx, "ak_primed")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !key.IsAdmin {
		t.Error("expected admin key")
	}
	if got := ms.lookups.Load(); got != 0 {
		t.Errorf("store lookups: got %d, want 0", got)
	}
}

func TestValidateUnknownKey(t *testing.T) {
	auth, _ := newTestAuth(t)

	_, err := auth.Validate(context.Background(), "ak_nope")
	if !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if !IsUnauthorized(err) {
		t.Error("unknown key should be unauthorized")
	}
	if auth.Cache().Len() != 0 {
		t.Error("unknown key should not be cached")
	}
}

func TestValidateStoreFailure(t *testing.T) {
	auth, ms := newTestAuth(t)
	ms.failWith = errors.New("connection refused")

	_, err := auth.Validate(context.Background(), "ak_any")
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *StoreError, got %v", err)
	}
	if IsUnauthorized(err) {
		t.Error("store failure must not be reported as unauthorized")
	}
	if errors.Is(err, ErrInvalidKey) {
		t.Error("store failure must not be reported as an invalid key")
	}
}

func TestConcurrentValidateSingleLookup(t *testing.T) {
	ms := newMemStore()
	ctx := context.Background()
	if _, err := ms.Insert(ctx, HashKey("ak_hot"), false); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	ms.lookupDelay = 50 * time.Millisecond

	auth := NewAuthService(ms)
	t.Cleanup(auth.Close)

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := auth.Validate(ctx, "ak_hot"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Validate: %v", err)
	}
	if got := ms.lookups.Load(); got != 1 {
		t.Errorf("store lookups: got %d, want 1", got)
	}
}

func TestValidateIgnoresCallerCancellation(t *testing.T) {
	auth, ms := newTestAuth(t)
	if _, err := ms.Insert(context.Background(), HashKey("ak_ctx"), false); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := auth.Validate(ctx, "ak_ctx"); err != nil {
		t.Fatalf("Validate with cancelled context: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Key lifecycle
// ---------------------------------------------------------------------------

func TestCreateKeyStoresOnlyHash(t *testing.T) {
	auth, ms := newTestAuth(t)
	secret := "ak_0123456789abcdef0123456789abcdef"

	key, err := auth.CreateKey(context.Background(), secret, false)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if key.KeyHash != HashKey(secret) {
		t.Errorf("KeyHash: got %s, want %s", key.KeyHash, HashKey(secret))
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	for hash, k := range ms.byHash {
		if strings.Contains(hash, secret) || strings.Contains(k.KeyHash, secret) {
			t.Error("plaintext secret found in store")
		}
	}
}

func TestCreateKeyDuplicate(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.CreateKey(ctx, "ak_dup", false); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	_, err := auth.CreateKey(ctx, "ak_dup", true)
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestCreateKeyEmpty(t *testing.T) {
	auth, _ := newTestAuth(t)
	if _, err := auth.CreateKey(context.Background(), "", false); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("expected ErrEmptySecret, got %v", err)
	}
}

func TestRevokeIsImmediate(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.CreateKey(ctx, "ak_revoke", false); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if _, err := auth.Validate(ctx, "ak_revoke"); err != nil {
		t.Fatalf("Validate before revoke: %v", err)
	}

	revoked, err := auth.RevokeKey(ctx, "ak_revoke")
	if err != nil {
		t.Fatalf("RevokeKey: %v", err)
	}
	if !revoked {
		t.Error("expected key to be revoked")
	}

	if _, err := auth.Validate(ctx, "ak_revoke"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey after revoke, got %v", err)
	}

	// Revoking again is not an error.
	revoked, err = auth.RevokeKey(ctx, "ak_revoke")
	if err != nil {
		t.Fatalf("second RevokeKey: %v", err)
	}
	if revoked {
		t.Error("second revoke should report nothing deleted")
	}
}

func TestRevokeKeyByID(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	key, err := auth.CreateKey(ctx, "ak_byid", false)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if err := auth.RevokeKeyByID(ctx, key.ID); err != nil {
		t.Fatalf("RevokeKeyByID: %v", err)
	}
	if _, err := auth.Validate(ctx, "ak_byid"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey after revoke, got %v", err)
	}
	if err := auth.RevokeKeyByID(ctx, key.ID); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestPromoteKey(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	key, err := auth.CreateKey(ctx, "ak_promote", false)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if got, _ := auth.Validate(ctx, "ak_promote"); got.IsAdmin {
		t.Fatal("key should start as non-admin")
	}

	promoted, err := auth.PromoteKey(ctx, key.ID)
	if err != nil {
		t.Fatalf("PromoteKey: %v", err)
	}
	if !promoted.IsAdmin {
		t.Error("promoted record should be admin")
	}

	got, err := auth.Validate(ctx, "ak_promote")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !got.IsAdmin {
		t.Error("validation after promote should see admin rights")
	}

	if _, err := auth.PromoteKey(ctx, 9999); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestListKeys(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	for _, s := range []string{"ak_a", "ak_b", "ak_c"} {
		if _, err := auth.CreateKey(ctx, s, false); err != nil {
			t.Fatalf("CreateKey(%s): %v", s, err)
		}
	}
	keys, err := auth.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 3 {
		t.Errorf("got %d keys, want 3", len(keys))
	}
}

func TestCleanupCache(t *testing.T) {
	auth, _ := newTestAuth(t)
	if n := auth.CleanupCache(); n != 0 {
		t.Errorf("CleanupCache on empty cache: got %d, want 0", n)
	}
}

// ---------------------------------------------------------------------------
// Admin bootstrap
// ---------------------------------------------------------------------------

func TestEnsureAdminExistsIdempotent(t *testing.T) {
	auth, ms := newTestAuth(t)
	ctx := context.Background()
	secret := GenerateKey()

	for i := 0; i < 2; i++ {
		if err := auth.EnsureAdminExists(ctx, secret); err != nil {
			t.Fatalf("EnsureAdminExists #%d: %v", i, err)
		}
	}
	if n := ms.adminCount(); n != 1 {
		t.Errorf("admin keys: got %d, want 1", n)
	}

	key, err := auth.Validate(ctx, secret)
	if err != nil {
		t.Fatalf("Validate admin: %v", err)
	}
	if !key.IsAdmin {
		t.Error("bootstrap key should be admin")
	}
}

func TestEnsureAdminExistsConcurrent(t *testing.T) {
	auth, ms := newTestAuth(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := auth.EnsureAdminExists(ctx, "ak_concurrent_bootstrap_secret_value"); err != nil {
				t.Errorf("EnsureAdminExists: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := ms.adminCount(); n != 1 {
		t.Errorf("admin keys: got %d, want 1", n)
	}
}

func TestEnsureAdminExistsNoSecret(t *testing.T) {
	auth, _ := newTestAuth(t)

	err := auth.EnsureAdminExists(context.Background(), "")
	var bootErr *BootstrapError
	if !errors.As(err, &bootErr) {
		t.Fatalf("expected *BootstrapError, got %v", err)
	}
}

func TestEnsureAdminExistsWithExistingAdmin(t *testing.T) {
	auth, ms := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.CreateKey(ctx, "ak_existing_admin", true); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	// No secret is needed once an admin exists.
	if err := auth.EnsureAdminExists(ctx, ""); err != nil {
		t.Fatalf("EnsureAdminExists: %v", err)
	}
	if n := ms.adminCount(); n != 1 {
		t.Errorf("admin keys: got %d, want 1", n)
	}
}

func TestEnsureAdminExistsSecretTakenByNonAdmin(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.CreateKey(ctx, "ak_taken", false); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	err := auth.EnsureAdminExists(ctx, "ak_taken")
	var bootErr *BootstrapError
	if !errors.As(err, &bootErr) {
		t.Fatalf("expected *BootstrapError, got %v", err)
	}
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected wrapped ErrDuplicateKey, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Last-used updates
// ---------------------------------------------------------------------------

func TestAuthenticateUpdatesLastUsed(t *testing.T) {
	auth, ms := newTestAuth(t)
	ctx := context.Background()

	key, err := auth.CreateKey(ctx, "ak_touch", false)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	id, err := auth.Authenticate(ctx, "ak_touch")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.ID() != key.ID {
		t.Errorf("identity ID: got %d, want %d", id.ID(), key.ID)
	}

	select {
	case got := <-ms.updates:
		if got != key.ID {
			t.Errorf("updated key: got %d, want %d", got, key.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("last-used update was not applied")
	}
}

func TestLastUsedQueueFullDrops(t *testing.T) {
	ms := newMemStore()
	ms.blockUpdates = make(chan struct{})
	auth := NewAuthService(ms, WithLastUsedQueue(1, time.Second))

	// The worker picks up the first update and blocks in the store.
	if !auth.UpdateLastUsed(1) {
		t.Fatal("first update should be accepted")
	}
	select {
	case <-ms.updates:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not start the first update")
	}

	if !auth.UpdateLastUsed(2) {
		t.Error("second update should fit in the queue")
	}
	if auth.UpdateLastUsed(3) {
		t.Error("third update should be dropped when the queue is full")
	}

	close(ms.blockUpdates)
	auth.Close()

	if auth.UpdateLastUsed(4) {
		t.Error("updates after Close should be dropped")
	}
}

func TestLastUsedMissingKeyIsNotFatal(t *testing.T) {
	auth, _ := newTestAuth(t)
	// The key does not exist; the worker must survive and keep serving.
	auth.UpdateLastUsed(42)
	auth.Close()
}

// ---------------------------------------------------------------------------
// Identity guards
// ---------------------------------------------------------------------------

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name    string
		header  []string
		want    string
		wantErr error
	}{
		{"missing", nil, "", ErrMissingHeader},
		{"bearer", []string{"Bearer ak_123"}, "ak_123", nil},
		{"basic", []string{"Basic dXNlcjpwYXNz"}, "", ErrInvalidFormat},
		{"lowercase scheme", []string{"bearer ak_123"}, "", ErrInvalidFormat},
		{"empty value", []string{""}, "", ErrInvalidFormat},
		{"bare token", []string{"ak_123"}, "", ErrInvalidFormat},
		{"empty token", []string{"Bearer "}, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for _, v := range tt.header {
				h.Add("Authorization", v)
			}
			got, err := ExtractToken(h)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error: got %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("token: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	user := NewIdentity(model.APIKey{ID: 1})
	if _, err := Authorize(user); !errors.Is(err, ErrInsufficientPermissions) {
		t.Errorf("non-admin: expected ErrInsufficientPermissions, got %v", err)
	}
	if err := user.RequireAdmin(); !errors.Is(err, ErrInsufficientPermissions) {
		t.Errorf("RequireAdmin: expected ErrInsufficientPermissions, got %v", err)
	}

	admin, err := Authorize(NewIdentity(model.APIKey{ID: 2, IsAdmin: true}))
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	if admin.ID() != 2 || !admin.IsAdmin() {
		t.Errorf("unexpected admin identity: id=%d admin=%v", admin.ID(), admin.IsAdmin())
	}

	if _, err := Authorize(nil); !errors.Is(err, ErrInsufficientPermissions) {
		t.Errorf("nil identity: expected ErrInsufficientPermissions, got %v", err)
	}
}

func TestAuthenticateEmptyToken(t *testing.T) {
	auth, _ := newTestAuth(t)
	if _, err := auth.Authenticate(context.Background(), ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	auth, ms := newTestAuth(t, WithMetrics(m))
	ctx := context.Background()

	if _, err := ms.Insert(ctx, HashKey("ak_metrics"), false); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	auth.Validate(ctx, "ak_metrics")
	auth.Validate(ctx, "ak_metrics")
	auth.Validate(ctx, "ak_missing")

	if got := testutil.ToFloat64(m.cacheHits); got != 1 {
		t.Errorf("cache hits: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.cacheMisses); got != 2 {
		t.Errorf("cache misses: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.storeLookups); got != 2 {
		t.Errorf("store lookups: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.validations.WithLabelValues("valid")); got != 2 {
		t.Errorf("valid validations: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.validations.WithLabelValues("invalid")); got != 1 {
		t.Errorf("invalid validations: got %v, want 1", got)
	}

	// Counters plus the cache size gauge.
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Errorf("GatherAndCount: n=%d err=%v", n, err)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.validation("valid")
	m.cacheHit()
	m.cacheMiss()
	m.storeLookup()
	m.lastUsedOutcome("dropped")
	m.trackCacheSize(func() int { return 0 })
}

// ---------------------------------------------------------------------------
// SQLite-backed service
// ---------------------------------------------------------------------------

func TestServiceWithSQLiteStore(t *testing.T) {
	s, err := store.NewSQLiteStore("")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	auth := NewAuthService(s)
	t.Cleanup(auth.Close)
	ctx := context.Background()

	secret := GenerateKey()
	if err := auth.EnsureAdminExists(ctx, secret); err != nil {
		t.Fatalf("EnsureAdminExists: %v", err)
	}
	id, err := auth.Authenticate(ctx, secret)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := Authorize(id); err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	revoked, err := auth.RevokeKey(ctx, secret)
	if err != nil || !revoked {
		t.Fatalf("RevokeKey: revoked=%v err=%v", revoked, err)
	}
	if _, err := auth.Authenticate(ctx, secret); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey after revoke, got %v", err)
	}
}
