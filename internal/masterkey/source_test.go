package masterkey

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSource(t *testing.T) {
	t.Parallel()

	key := []byte("0123456789abcdef0123456789abcdef")
	src, err := NewStaticSource(key)
	require.NoError(t, err)

	got, err := src.Key(context.Background())
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestStaticSource_TooShort(t *testing.T) {
	t.Parallel()

	_, err := NewStaticSource([]byte("short"))
	assert.ErrorIs(t, err, ErrKeyTooShort)
}

func TestEnvSource(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	t.Setenv("AUTHCORE_TEST_MASTER_KEY", base64.StdEncoding.EncodeToString(key))

	src := NewEnvSource("AUTHCORE_TEST_MASTER_KEY")
	got, err := src.Key(context.Background())
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestEnvSource_Missing(t *testing.T) {
	src := NewEnvSource("AUTHCORE_TEST_MISSING_KEY")
	_, err := src.Key(context.Background())
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestEnvSource_InvalidEncoding(t *testing.T) {
	t.Setenv("AUTHCORE_TEST_BAD_KEY", "not-base64!!!")

	src := NewEnvSource("AUTHCORE_TEST_BAD_KEY")
	_, err := src.Key(context.Background())
	assert.Error(t, err)
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "master.key")
	key := "0123456789abcdef0123456789abcdef"
	require.NoError(t, os.WriteFile(path, []byte(key+"\n"), 0o600))

	src := NewFileSource(path)
	got, err := src.Key(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte(key), got)
}

func TestFileSource_Missing(t *testing.T) {
	t.Parallel()

	src := NewFileSource(filepath.Join(t.TempDir(), "absent.key"))
	_, err := src.Key(context.Background())
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestFileSource_TooShort(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "master.key")
	require.NoError(t, os.WriteFile(path, []byte("tiny"), 0o600))

	src := NewFileSource(path)
	_, err := src.Key(context.Background())
	assert.ErrorIs(t, err, ErrKeyTooShort)
}

func TestNewVaultSource_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewVaultSource(nil, nil)
	assert.Error(t, err)

	_, err = NewVaultSource(&VaultConfig{}, nil)
	assert.Error(t, err)
}
