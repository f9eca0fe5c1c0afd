package config

import "time"

// Config is the root authcore configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Audit     AuditConfig     `yaml:"audit"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Auth      AuthConfig      `yaml:"auth"`
	Token     TokenConfig     `yaml:"token"`
	CredStore CredStoreConfig `yaml:"credStore"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig configures the operational HTTP listener serving
// health and metrics endpoints.
type ServerConfig struct {
	// ListenAddress is the host:port the operational listener binds.
	ListenAddress string `yaml:"listenAddress"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is json or console.
	Format string `yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `yaml:"output"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// Output is stdout, stderr, or a file path.
	Output string `yaml:"output"`

	// RedactKeys lists detail keys redacted before writing.
	RedactKeys []string `yaml:"redactKeys"`
}

// RateLimitConfig configures the authentication rate limiter.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// Requests is the number of attempts allowed per window.
	Requests int `yaml:"requests"`

	// Window is the sliding-window length.
	Window Duration `yaml:"window"`

	// By selects the limiter key: caller, ip, or caller_ip.
	By string `yaml:"by"`

	// Redis enables a distributed counter store. When nil the
	// limiter keeps counters in process memory.
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the Redis counter store backing the
// distributed rate limiter.
type RedisConfig struct {
	Address  string   `yaml:"address"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Prefix   string   `yaml:"prefix"`
	PoolSize int      `yaml:"poolSize"`
	Timeout  Duration `yaml:"timeout"`
}

// BreakerConfig configures the per-provider circuit breakers.
type BreakerConfig struct {
	Enabled          bool     `yaml:"enabled"`
	MinRequests      int      `yaml:"minRequests"`
	FailureRatio     float64  `yaml:"failureRatio"`
	OpenTimeout      Duration `yaml:"openTimeout"`
	HalfOpenRequests int      `yaml:"halfOpenRequests"`
}

// AuthConfig configures the session manager.
type AuthConfig struct {
	SessionTTL        Duration `yaml:"sessionTTL"`
	IdleTimeout       Duration `yaml:"idleTimeout"`
	CleanupInterval   Duration `yaml:"cleanupInterval"`
	MaxConcurrentAuth int64    `yaml:"maxConcurrentAuth"`
}

// TokenConfig configures the token manager.
type TokenConfig struct {
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`

	AccessTokenTTL  Duration `yaml:"accessTokenTTL"`
	RefreshTokenTTL Duration `yaml:"refreshTokenTTL"`
	ClaimTokenTTL   Duration `yaml:"claimTokenTTL"`
	APIKeyTTL       Duration `yaml:"apiKeyTTL"`

	MaxTokensPerClient int  `yaml:"maxTokensPerClient"`
	RotateOnRefresh    bool `yaml:"rotateOnRefresh"`

	CleanupInterval Duration `yaml:"cleanupInterval"`

	// ArchivePath is the bolt database holding revoked and expired
	// tokens. Empty disables archiving.
	ArchivePath string `yaml:"archivePath"`

	// Signing configures claim-token signing. Claim-token requests
	// fail when unset.
	Signing *SigningConfig `yaml:"signing,omitempty"`
}

// SigningConfig configures claim-token signing material.
type SigningConfig struct {
	// Algorithm is one of HS256, RS256, ES256.
	Algorithm string `yaml:"algorithm"`

	// SharedSecret is the HS256 secret. Use ${VAR} substitution to
	// keep it out of the file.
	SharedSecret string `yaml:"sharedSecret"`

	// PrivateKeyFile is a PEM file holding the RS256/ES256 key.
	PrivateKeyFile string `yaml:"privateKeyFile"`
}

// CredStoreConfig configures the encrypted credential store.
type CredStoreConfig struct {
	Dir string `yaml:"dir"`

	MaxAccessAttempts int      `yaml:"maxAccessAttempts"`
	LockoutWindow     Duration `yaml:"lockoutWindow"`

	BackupsEnabled bool `yaml:"backupsEnabled"`
	MaxBackups     int  `yaml:"maxBackups"`

	SecureDeletePasses int `yaml:"secureDeletePasses"`
	KDFIterations      int `yaml:"kdfIterations"`

	MasterKey MasterKeyConfig `yaml:"masterKey"`
}

// MasterKeyConfig selects where the credential-store master key comes
// from.
type MasterKeyConfig struct {
	// Source is env, file, or vault.
	Source string `yaml:"source"`

	// EnvVar names the environment variable for the env source.
	EnvVar string `yaml:"envVar"`

	// File is the key file path for the file source.
	File string `yaml:"file"`

	// Vault configures the vault source.
	Vault *VaultConfig `yaml:"vault,omitempty"`
}

// VaultConfig configures the Vault KV v2 master-key source.
type VaultConfig struct {
	Address    string   `yaml:"address"`
	Token      string   `yaml:"token"`
	MountPoint string   `yaml:"mountPoint"`
	SecretPath string   `yaml:"secretPath"`
	Field      string   `yaml:"field"`
	Timeout    Duration `yaml:"timeout"`
}

// ProvidersConfig lists the configured authentication providers.
type ProvidersConfig struct {
	ERP      []ERPConfig      `yaml:"erp,omitempty"`
	TaxAPI   []TaxAPIConfig   `yaml:"taxapi,omitempty"`
	CertAuth []CertAuthConfig `yaml:"certauth,omitempty"`
}

// ERPConfig configures one ERP provider instance.
type ERPConfig struct {
	Name     string   `yaml:"name"`
	BaseURL  string   `yaml:"baseURL"`
	AuthType string   `yaml:"authType"`
	Services []string `yaml:"services"`
	Timeout  Duration `yaml:"timeout"`

	LoginPath    string `yaml:"loginPath"`
	RefreshPath  string `yaml:"refreshPath"`
	LogoutPath   string `yaml:"logoutPath"`
	ValidatePath string `yaml:"validatePath"`

	// LocalUsers maps usernames to bcrypt password hashes verified
	// without a backend call.
	LocalUsers map[string]string `yaml:"localUsers,omitempty"`
}

// TaxAPIConfig configures one tax-API OAuth2 provider instance.
type TaxAPIConfig struct {
	Name          string   `yaml:"name"`
	TokenURL      string   `yaml:"tokenURL"`
	IntrospectURL string   `yaml:"introspectURL"`
	RevokeURL     string   `yaml:"revokeURL"`
	Services      []string `yaml:"services"`
	Scopes        []string `yaml:"scopes"`
	Timeout       Duration `yaml:"timeout"`
}

// CertAuthConfig configures one certificate provider instance.
type CertAuthConfig struct {
	Name string `yaml:"name"`

	// CAFile is a PEM bundle of trust anchors.
	CAFile string `yaml:"caFile"`

	Services   []string `yaml:"services"`
	SessionTTL Duration `yaml:"sessionTTL"`
}

// DefaultConfig returns the configuration applied before a file is
// unmarshalled over it. Fields absent from the file keep these values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:   ":9090",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Audit: AuditConfig{
			Enabled: true,
			Output:  "stdout",
			RedactKeys: []string{
				"password", "secret", "token", "key",
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 10,
			Window:   Duration(time.Minute),
			By:       "caller",
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			MinRequests:      5,
			FailureRatio:     0.5,
			OpenTimeout:      Duration(30 * time.Second),
			HalfOpenRequests: 1,
		},
		Auth: AuthConfig{
			SessionTTL:        Duration(time.Hour),
			IdleTimeout:       Duration(30 * time.Minute),
			CleanupInterval:   Duration(time.Minute),
			MaxConcurrentAuth: 32,
		},
		Token: TokenConfig{
			Issuer:             "authcore",
			Audience:           "authcore",
			AccessTokenTTL:     Duration(15 * time.Minute),
			RefreshTokenTTL:    Duration(720 * time.Hour),
			ClaimTokenTTL:      Duration(time.Hour),
			MaxTokensPerClient: 100,
			RotateOnRefresh:    true,
			CleanupInterval:    Duration(5 * time.Minute),
		},
		CredStore: CredStoreConfig{
			Dir:                "/var/lib/authcore/credentials",
			MaxAccessAttempts:  5,
			LockoutWindow:      Duration(15 * time.Minute),
			BackupsEnabled:     true,
			MaxBackups:         3,
			SecureDeletePasses: 3,
			MasterKey: MasterKeyConfig{
				Source: "env",
				EnvVar: "AUTHCORE_MASTER_KEY",
			},
		},
	}
}
