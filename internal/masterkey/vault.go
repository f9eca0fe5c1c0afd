package masterkey

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// VaultConfig holds configuration for the Vault master key source.
type VaultConfig struct {
	// Address is the Vault server address.
	Address string `yaml:"address"`

	// Token is the Vault token. Prefer VAULT_TOKEN via the environment.
	Token string `yaml:"token"`

	// MountPoint is the KV v2 mount point.
	MountPoint string `yaml:"mountPoint"`

	// SecretPath is the path of the secret under the mount.
	SecretPath string `yaml:"secretPath"`

	// Field is the data field holding the base64-encoded key.
	Field string `yaml:"field"`

	// Timeout bounds each Vault request.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultVaultConfig returns defaults for the Vault source.
func DefaultVaultConfig() *VaultConfig {
	return &VaultConfig{
		MountPoint: "secret",
		SecretPath: "authcore/master-key",
		Field:      "key",
		Timeout:    5 * time.Second,
	}
}

// VaultSource fetches the master key from a Vault KV v2 secret.
type VaultSource struct {
	client *vault.Client
	config *VaultConfig
	logger *zap.Logger
}

// NewVaultSource creates a Vault-backed master key source.
func NewVaultSource(config *VaultConfig, logger *zap.Logger) (*VaultSource, error) {
	if config == nil {
		return nil, fmt.Errorf("vault config is required")
	}
	if config.Address == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}

	return &VaultSource{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Key implements Source. The key is stored base64-encoded in the
// configured field of a KV v2 secret.
func (s *VaultSource) Key(ctx context.Context) ([]byte, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	secret, err := s.client.KVv2(s.config.MountPoint).Get(ctx, s.config.SecretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read master key from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: vault secret %s is empty", ErrKeyNotFound, s.config.SecretPath)
	}

	raw, ok := secret.Data[s.config.Field].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: field %q missing in vault secret %s",
			ErrKeyNotFound, s.config.Field, s.config.SecretPath)
	}

	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key from vault: %w", err)
	}
	if len(key) < MinKeyBytes {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrKeyTooShort, len(key), MinKeyBytes)
	}

	s.logger.Debug("loaded master key from vault",
		zap.String("path", s.config.SecretPath),
	)

	return key, nil
}

// Ensure VaultSource implements Source.
var _ Source = (*VaultSource)(nil)
