package credstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authcore/internal/masterkey"
)

func testConfig(t *testing.T) *Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	// Low iteration count keeps key derivation fast in tests.
	cfg.KDFIterations = 1000
	return cfg
}

func newTestStore(t *testing.T, cfg *Config) *Store {
	t.Helper()

	if cfg == nil {
		cfg = testConfig(t)
	}

	source, err := masterkey.NewStaticSource(bytes.Repeat([]byte{0xA5}, 32))
	require.NoError(t, err)

	store, err := NewStore(context.Background(), cfg, source)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)
	ctx := context.Background()
	payload := []byte("s3cret-api-key")

	err := store.Store(ctx, "erp-api-key", TypeAPIKey, "erp", payload, nil)
	require.NoError(t, err)

	got, err := store.Retrieve(ctx, "erp-api-key", true)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	infos := store.List(nil)
	require.Len(t, infos, 1)
	assert.Equal(t, "erp-api-key", infos[0].ID)
	assert.Equal(t, StatusActive, infos[0].Status)
	assert.Equal(t, int64(1), infos[0].AccessCount)
}

func TestStore_DuplicateID(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "dup", TypePassword, "erp", []byte("a"), nil))

	err := store.Store(ctx, "dup", TypePassword, "erp", []byte("b"), nil)
	assert.ErrorIs(t, err, ErrCredentialExists)
}

func TestStore_EmptyPayload(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)

	err := store.Store(context.Background(), "empty", TypePassword, "erp", nil, nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestStore_InvalidID(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		err := store.Store(ctx, id, TypePassword, "erp", []byte("x"), nil)
		assert.Error(t, err, "id %q", id)
	}
}

func TestStore_MetadataOnlyRetrieve(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "meta", TypeBearerToken, "tax", []byte("tok"), nil))

	got, err := store.Retrieve(ctx, "meta", false)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Access metadata advances even without decryption.
	infos := store.List(&Filter{ServiceID: "tax"})
	require.Len(t, infos, 1)
	assert.Equal(t, int64(1), infos[0].AccessCount)
	require.NotNil(t, infos[0].LastAccessed)
}

func tamperRecordFile(t *testing.T, dir, id string) {
	t.Helper()

	path := filepath.Join(dir, id+recordExt)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record Record
	require.NoError(t, json.Unmarshal(data, &record))
	require.NotEmpty(t, record.Ciphertext)

	record.Ciphertext[0] ^= 0xFF

	data, err = json.Marshal(&record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestStore_TamperDetection(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	store := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "tampered", TypeSigningKey, "cert", []byte("pem-bytes"), nil))
	require.NoError(t, store.Close())

	tamperRecordFile(t, cfg.Dir, "tampered")

	reopened := newTestStore(t, cfg)
	_, err := reopened.Retrieve(ctx, "tampered", true)
	require.Error(t, err)
	assert.True(t, IsIntegrityError(err))

	var integrityErr *IntegrityError
	require.True(t, errors.As(err, &integrityErr))
	assert.Equal(t, "tampered", integrityErr.CredentialID)

	infos := reopened.List(&Filter{Status: StatusCompromised})
	require.Len(t, infos, 1)
	assert.Equal(t, "tampered", infos[0].ID)
}

func TestStore_Lockout(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.MaxAccessAttempts = 2
	cfg.LockoutWindow = time.Hour

	store := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "locked", TypePassword, "erp", []byte("pw"), nil))
	require.NoError(t, store.Close())

	tamperRecordFile(t, cfg.Dir, "locked")

	reopened := newTestStore(t, cfg)

	for i := 0; i < cfg.MaxAccessAttempts; i++ {
		_, err := reopened.Retrieve(ctx, "locked", true)
		assert.True(t, IsIntegrityError(err), "attempt %d", i)
	}

	_, err := reopened.Retrieve(ctx, "locked", true)
	require.Error(t, err)
	assert.True(t, IsLockoutError(err))

	var lockoutErr *LockoutError
	require.True(t, errors.As(err, &lockoutErr))
	assert.True(t, lockoutErr.Until.After(time.Now()))
}

func TestStore_LockoutClearsAfterWindow(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.MaxAccessAttempts = 2
	cfg.LockoutWindow = 100 * time.Millisecond

	store := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "locked", TypePassword, "erp", []byte("pw"), nil))
	require.NoError(t, store.Close())

	tamperRecordFile(t, cfg.Dir, "locked")

	reopened := newTestStore(t, cfg)

	for i := 0; i < cfg.MaxAccessAttempts; i++ {
		_, err := reopened.Retrieve(ctx, "locked", true)
		assert.True(t, IsIntegrityError(err), "attempt %d", i)
	}

	_, err := reopened.Retrieve(ctx, "locked", true)
	require.True(t, IsLockoutError(err))

	// Once the oldest counted failure ages out of the sliding window
	// the credential is reachable again and the underlying integrity
	// failure resurfaces instead of the lockout.
	require.Eventually(t, func() bool {
		_, err := reopened.Retrieve(ctx, "locked", true)
		return IsIntegrityError(err)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStore_UpdateCreatesBackup(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	store := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "upd", TypeOAuthClient, "tax", []byte("v1"), nil))
	require.NoError(t, store.Update(ctx, "upd", []byte("v2"), nil))

	got, err := store.Retrieve(ctx, "upd", true)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	_, err = os.Stat(filepath.Join(cfg.Dir, "upd.bak.1"))
	assert.NoError(t, err)
}

func TestStore_BackupRotation(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.MaxBackups = 2

	store := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "rot", TypePassword, "erp", []byte("v1"), nil))
	for _, v := range []string{"v2", "v3", "v4"} {
		require.NoError(t, store.Update(ctx, "rot", []byte(v), nil))
	}

	_, err := os.Stat(filepath.Join(cfg.Dir, "rot.bak.1"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.Dir, "rot.bak.2"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.Dir, "rot.bak.3"))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_Rotate(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "key", TypeAPIKey, "erp", []byte("old"), nil))
	require.NoError(t, store.Rotate(ctx, "key", []byte("new")))

	got, err := store.Retrieve(ctx, "key", true)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)

	infos := store.List(&Filter{Status: StatusActive})
	require.Len(t, infos, 1)
}

func TestStore_SecureDelete(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	store := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "gone", TypePassword, "erp", []byte("pw"), nil))
	require.NoError(t, store.Update(ctx, "gone", []byte("pw2"), nil))
	require.NoError(t, store.Delete(ctx, "gone", true))

	entries, err := os.ReadDir(cfg.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = store.Retrieve(ctx, "gone", true)
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestStore_DeleteUnknown(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)

	err := store.Delete(context.Background(), "missing", false)
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestStore_ListFilters(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "a", TypePassword, "erp", []byte("x"), &Metadata{Tags: []string{"prod"}}))
	require.NoError(t, store.Store(ctx, "b", TypeAPIKey, "tax", []byte("y"), nil))
	require.NoError(t, store.Store(ctx, "c", TypeAPIKey, "erp", []byte("z"), nil))

	assert.Len(t, store.List(nil), 3)
	assert.Len(t, store.List(&Filter{Type: TypeAPIKey}), 2)
	assert.Len(t, store.List(&Filter{ServiceID: "erp"}), 2)
	assert.Len(t, store.List(&Filter{Tag: "prod"}), 1)
	assert.Empty(t, store.List(&Filter{ServiceID: "unknown"}))
}

func TestStore_ReloadIndex(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	store := newTestStore(t, cfg)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "persisted", TypeCertificate, "cert", []byte("pem"), nil))
	require.NoError(t, store.Close())

	reopened := newTestStore(t, cfg)
	got, err := reopened.Retrieve(ctx, "persisted", true)
	require.NoError(t, err)
	assert.Equal(t, []byte("pem"), got)
}

func TestStore_Closed(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "x", TypePassword, "erp", []byte("p"), nil))
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Store(ctx, "y", TypePassword, "erp", []byte("p"), nil), ErrStoreClosed)
	_, err := store.Retrieve(ctx, "x", true)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Update(ctx, "x", []byte("p2"), nil), ErrStoreClosed)
	assert.ErrorIs(t, store.Delete(ctx, "x", false), ErrStoreClosed)
}

func TestStore_CancelledContext(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Store(ctx, "ctx", TypePassword, "erp", []byte("p"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
