package token

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()

	archive, err := OpenArchive(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = archive.Close()
	})
	return archive
}

func TestArchive_PutGet(t *testing.T) {
	t.Parallel()

	archive := newTestArchive(t)

	info := &Info{
		ID:       "tok-1",
		Type:     TypeAccess,
		Value:    "ac_plaintext-never-stored",
		Hash:     hashValue("ac_plaintext-never-stored"),
		IssuedAt: time.Now().UTC().Truncate(time.Second),
		ClientID: "client-1",
		Status:   StatusActive,
	}
	require.NoError(t, archive.Put(info))

	got, err := archive.Get("tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, info.ID, got.ID)
	assert.Equal(t, info.Hash, got.Hash)
	assert.Equal(t, StatusActive, got.Status)

	// Plaintext values never reach durable storage.
	assert.Empty(t, got.Value)
}

func TestArchive_GetMissing(t *testing.T) {
	t.Parallel()

	archive := newTestArchive(t)

	got, err := archive.Get("absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestArchive_OverwriteKeepsLatestStatus(t *testing.T) {
	t.Parallel()

	archive := newTestArchive(t)

	info := &Info{ID: "tok-2", Type: TypeRefresh, ClientID: "c", Status: StatusActive}
	require.NoError(t, archive.Put(info))

	info.Status = StatusRevoked
	require.NoError(t, archive.Put(info))

	got, err := archive.Get("tok-2")
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, got.Status)

	count, err := archive.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
