package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/authcore/internal/audit"
	"github.com/vyrodovalexey/authcore/internal/auth"
	"github.com/vyrodovalexey/authcore/internal/auth/providers"
	"github.com/vyrodovalexey/authcore/internal/breaker"
	"github.com/vyrodovalexey/authcore/internal/credstore"
	"github.com/vyrodovalexey/authcore/internal/masterkey"
	"github.com/vyrodovalexey/authcore/internal/observability"
	"github.com/vyrodovalexey/authcore/internal/ratelimit"
	"github.com/vyrodovalexey/authcore/internal/ratelimit/store"
	"github.com/vyrodovalexey/authcore/internal/token"
)

// Build converts the logging section into the logger configuration.
func (c *LoggingConfig) Build() observability.LogConfig {
	cfg := observability.DefaultLogConfig()
	if c.Level != "" {
		cfg.Level = c.Level
	}
	if c.Format != "" {
		cfg.Format = c.Format
	}
	if c.Output != "" {
		cfg.Output = c.Output
	}
	return cfg
}

// Build converts the audit section into the audit logger
// configuration.
func (c *AuditConfig) Build() *audit.Config {
	cfg := audit.DefaultConfig()
	cfg.Enabled = c.Enabled
	if c.Output != "" {
		cfg.Output = c.Output
	}
	if len(c.RedactKeys) > 0 {
		cfg.RedactKeys = c.RedactKeys
	}
	return cfg
}

// KeyBy returns the limiter key strategy.
func (c *RateLimitConfig) KeyBy() ratelimit.KeyBy {
	switch c.By {
	case "ip":
		return ratelimit.KeyByIP
	case "service":
		return ratelimit.KeyByService
	default:
		return ratelimit.KeyByCaller
	}
}

// Build converts the redis section into the counter store
// configuration.
func (c *RedisConfig) Build() *store.RedisConfig {
	cfg := store.DefaultRedisConfig()
	if c.Address != "" {
		cfg.Address = c.Address
	}
	cfg.Password = c.Password
	cfg.DB = c.DB
	if c.Prefix != "" {
		cfg.Prefix = c.Prefix
	}
	if c.PoolSize > 0 {
		cfg.PoolSize = c.PoolSize
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout.Duration()
	}
	return cfg
}

// Build converts the breaker section into the breaker configuration.
func (c *BreakerConfig) Build() *breaker.Config {
	cfg := breaker.DefaultConfig()
	cfg.Enabled = c.Enabled
	if c.MinRequests > 0 {
		cfg.MinRequests = c.MinRequests
	}
	if c.FailureRatio > 0 {
		cfg.FailureRatio = c.FailureRatio
	}
	if c.OpenTimeout > 0 {
		cfg.OpenTimeout = c.OpenTimeout.Duration()
	}
	if c.HalfOpenRequests > 0 {
		cfg.HalfOpenRequests = c.HalfOpenRequests
	}
	return cfg
}

// Build converts the auth section into the session manager
// configuration.
func (c *AuthConfig) Build() *auth.Config {
	return &auth.Config{
		SessionTTL:        c.SessionTTL.Duration(),
		IdleTimeout:       c.IdleTimeout.Duration(),
		CleanupInterval:   c.CleanupInterval.Duration(),
		MaxConcurrentAuth: c.MaxConcurrentAuth,
	}
}

// Build converts the token section into the token manager
// configuration. Signing key files are read here so the manager never
// touches the filesystem.
func (c *TokenConfig) Build() (*token.Config, error) {
	cfg := &token.Config{
		Issuer:             c.Issuer,
		Audience:           c.Audience,
		AccessTokenTTL:     c.AccessTokenTTL.Duration(),
		RefreshTokenTTL:    c.RefreshTokenTTL.Duration(),
		ClaimTokenTTL:      c.ClaimTokenTTL.Duration(),
		APIKeyTTL:          c.APIKeyTTL.Duration(),
		MaxTokensPerClient: c.MaxTokensPerClient,
		RotateOnRefresh:    c.RotateOnRefresh,
		CleanupInterval:    c.CleanupInterval.Duration(),
	}

	if c.Signing == nil {
		return cfg, nil
	}

	signing := &token.SigningConfig{Algorithm: c.Signing.Algorithm}
	if c.Signing.SharedSecret != "" {
		signing.SharedSecret = []byte(c.Signing.SharedSecret)
	}
	if c.Signing.PrivateKeyFile != "" {
		pem, err := os.ReadFile(c.Signing.PrivateKeyFile) //nolint:gosec // operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("failed to read signing key %s: %w", c.Signing.PrivateKeyFile, err)
		}
		signing.PrivateKeyPEM = pem
	}
	cfg.Signing = signing

	return cfg, nil
}

// Build converts the credential store section into the store
// configuration.
func (c *CredStoreConfig) Build() *credstore.Config {
	return &credstore.Config{
		Dir:                c.Dir,
		MaxAccessAttempts:  c.MaxAccessAttempts,
		LockoutWindow:      c.LockoutWindow.Duration(),
		BackupsEnabled:     c.BackupsEnabled,
		MaxBackups:         c.MaxBackups,
		SecureDeletePasses: c.SecureDeletePasses,
		KDFIterations:      c.KDFIterations,
	}
}

// BuildSource constructs the master key source named by the section.
func (c *MasterKeyConfig) BuildSource(logger *zap.Logger) (masterkey.Source, error) {
	switch c.Source {
	case "env":
		return masterkey.NewEnvSource(c.EnvVar), nil
	case "file":
		return masterkey.NewFileSource(c.File), nil
	case "vault":
		if c.Vault == nil {
			return nil, fmt.Errorf("vault master key source requires a vault section")
		}
		return masterkey.NewVaultSource(c.Vault.build(), logger)
	default:
		return nil, fmt.Errorf("unknown master key source %q", c.Source)
	}
}

func (c *VaultConfig) build() *masterkey.VaultConfig {
	cfg := masterkey.DefaultVaultConfig()
	cfg.Address = c.Address
	if c.Token != "" {
		cfg.Token = c.Token
	}
	if c.MountPoint != "" {
		cfg.MountPoint = c.MountPoint
	}
	if c.SecretPath != "" {
		cfg.SecretPath = c.SecretPath
	}
	if c.Field != "" {
		cfg.Field = c.Field
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout.Duration()
	}
	return cfg
}

// Build converts an erp provider entry into the provider
// configuration.
func (c *ERPConfig) Build() *providers.ERPConfig {
	return &providers.ERPConfig{
		Name:         c.Name,
		BaseURL:      c.BaseURL,
		AuthType:     auth.AuthType(c.AuthType),
		Services:     c.Services,
		Timeout:      c.Timeout.Duration(),
		LoginPath:    c.LoginPath,
		RefreshPath:  c.RefreshPath,
		LogoutPath:   c.LogoutPath,
		ValidatePath: c.ValidatePath,
		LocalUsers:   c.LocalUsers,
	}
}

// Build converts a taxapi provider entry into the provider
// configuration.
func (c *TaxAPIConfig) Build() *providers.TaxAPIConfig {
	return &providers.TaxAPIConfig{
		Name:          c.Name,
		TokenURL:      c.TokenURL,
		IntrospectURL: c.IntrospectURL,
		RevokeURL:     c.RevokeURL,
		Services:      c.Services,
		Scopes:        c.Scopes,
		Timeout:       c.Timeout.Duration(),
	}
}

// Build converts a certauth provider entry into the provider
// configuration. The CA bundle is read here.
func (c *CertAuthConfig) Build() (*providers.CertAuthConfig, error) {
	pem, err := os.ReadFile(c.CAFile) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read CA bundle %s: %w", c.CAFile, err)
	}
	return &providers.CertAuthConfig{
		Name:       c.Name,
		CAPEM:      pem,
		Services:   c.Services,
		SessionTTL: c.SessionTTL.Duration(),
	}, nil
}
