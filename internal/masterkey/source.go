// Package masterkey provides sources for the credential store master
// key. The master key is never persisted by the store itself; it is
// loaded on demand from an external source (static material, an
// environment variable, a file, or Vault).
package masterkey

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MinKeyBytes is the minimum accepted master key length.
const MinKeyBytes = 16

// Sentinel errors for master key sources.
var (
	// ErrKeyNotFound indicates the configured source holds no key.
	ErrKeyNotFound = errors.New("master key not found")

	// ErrKeyTooShort indicates the key material is below the minimum length.
	ErrKeyTooShort = errors.New("master key too short")
)

// Source supplies master key material.
type Source interface {
	// Key returns the master key bytes.
	Key(ctx context.Context) ([]byte, error)
}

// StaticSource holds the key material directly in memory.
type StaticSource struct {
	key []byte
}

// NewStaticSource creates a source from raw key bytes.
func NewStaticSource(key []byte) (*StaticSource, error) {
	if len(key) < MinKeyBytes {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrKeyTooShort, len(key), MinKeyBytes)
	}
	return &StaticSource{key: key}, nil
}

// Key implements Source.
func (s *StaticSource) Key(_ context.Context) ([]byte, error) {
	return s.key, nil
}

// EnvSource reads a base64-encoded key from an environment variable.
type EnvSource struct {
	variable string
}

// NewEnvSource creates a source reading from the given variable.
func NewEnvSource(variable string) *EnvSource {
	return &EnvSource{variable: variable}
}

// Key implements Source.
func (s *EnvSource) Key(_ context.Context) ([]byte, error) {
	value := os.Getenv(s.variable)
	if value == "" {
		return nil, fmt.Errorf("%w: environment variable %s is empty", ErrKeyNotFound, s.variable)
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key from %s: %w", s.variable, err)
	}
	if len(key) < MinKeyBytes {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrKeyTooShort, len(key), MinKeyBytes)
	}

	return key, nil
}

// FileSource reads raw key bytes from a file.
type FileSource struct {
	path string
}

// NewFileSource creates a source reading from the given path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Key implements Source.
func (s *FileSource) Key(_ context.Context) ([]byte, error) {
	// Path comes from trusted configuration.
	//nolint:gosec // G304: path from config is trusted
	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, s.path)
		}
		return nil, fmt.Errorf("failed to read master key file: %w", err)
	}

	key := []byte(strings.TrimSpace(string(data)))
	if len(key) < MinKeyBytes {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrKeyTooShort, len(key), MinKeyBytes)
	}

	return key, nil
}

// Ensure implementations satisfy the interface.
var (
	_ Source = (*StaticSource)(nil)
	_ Source = (*EnvSource)(nil)
	_ Source = (*FileSource)(nil)
)
