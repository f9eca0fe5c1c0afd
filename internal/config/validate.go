package config

import (
	"fmt"
	"strings"
)

// ValidationError is a single configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates authcore configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// ValidateConfig validates an authcore configuration.
func ValidateConfig(config *Config) error {
	return NewValidator().Validate(config)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&config.Server)
	v.validateLogging(&config.Logging)
	v.validateRateLimit(&config.RateLimit)
	v.validateBreaker(&config.Breaker)
	v.validateAuth(&config.Auth)
	v.validateToken(&config.Token)
	v.validateCredStore(&config.CredStore)
	v.validateProviders(&config.Providers)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateServer(server *ServerConfig) {
	if server.ListenAddress == "" {
		v.addError("server.listenAddress", "listenAddress is required")
	}
	if server.ShutdownTimeout < 0 {
		v.addError("server.shutdownTimeout", "shutdownTimeout must not be negative")
	}
}

func (v *Validator) validateLogging(logging *LoggingConfig) {
	switch logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("unknown level %q", logging.Level))
	}
	switch logging.Format {
	case "", "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("unknown format %q", logging.Format))
	}
}

func (v *Validator) validateRateLimit(rl *RateLimitConfig) {
	if !rl.Enabled {
		return
	}
	if rl.Requests <= 0 {
		v.addError("rateLimit.requests", "requests must be positive")
	}
	if rl.Window <= 0 {
		v.addError("rateLimit.window", "window must be positive")
	}
	switch rl.By {
	case "", "caller", "ip", "service":
	default:
		v.addError("rateLimit.by", fmt.Sprintf("unknown key strategy %q", rl.By))
	}
	if rl.Redis != nil && rl.Redis.Address == "" {
		v.addError("rateLimit.redis.address", "address is required")
	}
}

func (v *Validator) validateBreaker(b *BreakerConfig) {
	if !b.Enabled {
		return
	}
	if b.FailureRatio < 0 || b.FailureRatio > 1 {
		v.addError("breaker.failureRatio", "failureRatio must be between 0 and 1")
	}
	if b.MinRequests < 0 {
		v.addError("breaker.minRequests", "minRequests must not be negative")
	}
}

func (v *Validator) validateAuth(auth *AuthConfig) {
	if auth.SessionTTL <= 0 {
		v.addError("auth.sessionTTL", "sessionTTL must be positive")
	}
	if auth.IdleTimeout < 0 {
		v.addError("auth.idleTimeout", "idleTimeout must not be negative")
	}
	if auth.MaxConcurrentAuth < 0 {
		v.addError("auth.maxConcurrentAuth", "maxConcurrentAuth must not be negative")
	}
}

func (v *Validator) validateToken(token *TokenConfig) {
	if token.AccessTokenTTL <= 0 {
		v.addError("token.accessTokenTTL", "accessTokenTTL must be positive")
	}
	if token.RefreshTokenTTL <= 0 {
		v.addError("token.refreshTokenTTL", "refreshTokenTTL must be positive")
	}
	if token.RefreshTokenTTL < token.AccessTokenTTL {
		v.addError("token.refreshTokenTTL", "refreshTokenTTL must not be shorter than accessTokenTTL")
	}
	if token.APIKeyTTL < 0 {
		v.addError("token.apiKeyTTL", "apiKeyTTL must not be negative")
	}
	if token.MaxTokensPerClient < 0 {
		v.addError("token.maxTokensPerClient", "maxTokensPerClient must not be negative")
	}
	if token.Signing != nil {
		v.validateSigning(token.Signing)
	}
}

func (v *Validator) validateSigning(signing *SigningConfig) {
	switch signing.Algorithm {
	case "HS256":
		if signing.SharedSecret == "" {
			v.addError("token.signing.sharedSecret", "sharedSecret is required for HS256")
		}
		if signing.PrivateKeyFile != "" {
			v.addError("token.signing.privateKeyFile", "privateKeyFile must not be set for HS256")
		}
	case "RS256", "ES256":
		if signing.PrivateKeyFile == "" {
			v.addError("token.signing.privateKeyFile", fmt.Sprintf("privateKeyFile is required for %s", signing.Algorithm))
		}
		if signing.SharedSecret != "" {
			v.addError("token.signing.sharedSecret", fmt.Sprintf("sharedSecret must not be set for %s", signing.Algorithm))
		}
	case "":
		v.addError("token.signing.algorithm", "algorithm is required")
	default:
		v.addError("token.signing.algorithm", fmt.Sprintf("unsupported algorithm %q", signing.Algorithm))
	}
}

func (v *Validator) validateCredStore(cs *CredStoreConfig) {
	if cs.Dir == "" {
		v.addError("credStore.dir", "dir is required")
	}
	if cs.MaxAccessAttempts < 0 {
		v.addError("credStore.maxAccessAttempts", "maxAccessAttempts must not be negative")
	}
	if cs.MaxBackups < 0 {
		v.addError("credStore.maxBackups", "maxBackups must not be negative")
	}

	switch cs.MasterKey.Source {
	case "env":
		if cs.MasterKey.EnvVar == "" {
			v.addError("credStore.masterKey.envVar", "envVar is required for the env source")
		}
	case "file":
		if cs.MasterKey.File == "" {
			v.addError("credStore.masterKey.file", "file is required for the file source")
		}
	case "vault":
		if cs.MasterKey.Vault == nil {
			v.addError("credStore.masterKey.vault", "vault is required for the vault source")
		} else if cs.MasterKey.Vault.Address == "" {
			v.addError("credStore.masterKey.vault.address", "address is required")
		}
	case "":
		v.addError("credStore.masterKey.source", "source is required")
	default:
		v.addError("credStore.masterKey.source", fmt.Sprintf("unknown source %q", cs.MasterKey.Source))
	}
}

func (v *Validator) validateProviders(providers *ProvidersConfig) {
	names := make(map[string]bool)

	register := func(path, name string) {
		if name == "" {
			return
		}
		if names[name] {
			v.addError(path, fmt.Sprintf("duplicate provider name %q", name))
			return
		}
		names[name] = true
	}

	for i, p := range providers.ERP {
		path := fmt.Sprintf("providers.erp[%d]", i)
		register(path+".name", p.Name)
		if p.BaseURL == "" && len(p.LocalUsers) == 0 {
			v.addError(path+".baseURL", "baseURL is required unless localUsers is set")
		}
		switch p.AuthType {
		case "", "password", "api_key":
		default:
			v.addError(path+".authType", fmt.Sprintf("unknown authType %q", p.AuthType))
		}
	}

	for i, p := range providers.TaxAPI {
		path := fmt.Sprintf("providers.taxapi[%d]", i)
		register(path+".name", p.Name)
		if p.TokenURL == "" {
			v.addError(path+".tokenURL", "tokenURL is required")
		}
	}

	for i, p := range providers.CertAuth {
		path := fmt.Sprintf("providers.certauth[%d]", i)
		register(path+".name", p.Name)
		if p.CAFile == "" {
			v.addError(path+".caFile", "caFile is required")
		}
	}
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
