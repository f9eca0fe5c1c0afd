package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/authcore/internal/audit"
	"github.com/vyrodovalexey/authcore/internal/auth"
	"github.com/vyrodovalexey/authcore/internal/auth/providers"
	"github.com/vyrodovalexey/authcore/internal/breaker"
	"github.com/vyrodovalexey/authcore/internal/config"
	"github.com/vyrodovalexey/authcore/internal/credstore"
	"github.com/vyrodovalexey/authcore/internal/health"
	"github.com/vyrodovalexey/authcore/internal/observability"
	"github.com/vyrodovalexey/authcore/internal/ratelimit"
	"github.com/vyrodovalexey/authcore/internal/ratelimit/store"
	"github.com/vyrodovalexey/authcore/internal/token"
)

// application holds the wired service components.
type application struct {
	cfg      *config.Config
	logger   observability.Logger
	zlog     *zap.Logger
	registry *prometheus.Registry

	auditor      audit.Logger
	credentials  *credstore.Store
	tokens       *token.Manager
	archive      *token.Archive
	sessions     *auth.Manager
	limiterStore store.Store
	health       *health.Handler
	server       *http.Server
}

// initApplication builds every component from the configuration.
func initApplication(ctx context.Context, cfg *config.Config, logger observability.Logger, zlog *zap.Logger) (*application, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	auditor, err := audit.NewLogger(cfg.Audit.Build(),
		audit.WithFallbackLogger(logger),
		audit.WithMetrics(audit.NewMetricsWithRegisterer("authcore", registry)),
	)
	if err != nil {
		return nil, fmt.Errorf("audit logger: %w", err)
	}

	keySource, err := cfg.CredStore.MasterKey.BuildSource(zlog)
	if err != nil {
		return nil, fmt.Errorf("master key source: %w", err)
	}

	credentials, err := credstore.NewStore(ctx, cfg.CredStore.Build(), keySource,
		credstore.WithLogger(logger),
		credstore.WithAuditLogger(auditor),
		credstore.WithMetrics(credstore.NewMetricsWithRegisterer("authcore", registry)),
	)
	if err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}

	tokenCfg, err := cfg.Token.Build()
	if err != nil {
		return nil, fmt.Errorf("token config: %w", err)
	}

	tokenOpts := []token.ManagerOption{
		token.WithLogger(logger),
		token.WithAuditLogger(auditor),
		token.WithMetrics(token.NewMetricsWithRegisterer("authcore", registry)),
	}
	var archive *token.Archive
	if cfg.Token.ArchivePath != "" {
		archive, err = token.OpenArchive(cfg.Token.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("token archive: %w", err)
		}
		tokenOpts = append(tokenOpts, token.WithArchive(archive))
	}

	tokens, err := token.NewManager(tokenCfg, tokenOpts...)
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	app := &application{
		cfg:         cfg,
		logger:      logger,
		zlog:        zlog,
		registry:    registry,
		auditor:     auditor,
		credentials: credentials,
		tokens:      tokens,
		archive:     archive,
	}

	limiter, limiterStore, err := app.buildRateLimiter(&cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	app.limiterStore = limiterStore

	sessions := auth.NewManager(cfg.Auth.Build(),
		auth.WithLogger(logger),
		auth.WithAuditLogger(auditor),
		auth.WithMetrics(auth.NewMetricsWithRegisterer("authcore", registry)),
		auth.WithRateLimiter(limiter),
		auth.WithRateLimitKey(cfg.RateLimit.KeyBy()),
		auth.WithCredentialStore(credentials),
		auth.WithTokenManager(app.tokens),
		auth.WithBreakers(breaker.NewRegistry(cfg.Breaker.Build(), logger)),
	)
	app.sessions = sessions

	if err := app.registerProviders(); err != nil {
		return nil, err
	}

	app.server = app.newOpsServer()

	return app, nil
}

// buildRateLimiter constructs the limiter named by the rate limit
// section. A disabled section yields a nil limiter.
func (a *application) buildRateLimiter(cfg *config.RateLimitConfig) (ratelimit.Limiter, store.Store, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	var counterStore store.Store
	if cfg.Redis != nil {
		rs, err := store.NewRedisStore(cfg.Redis.Build(), a.zlog)
		if err != nil {
			return nil, nil, fmt.Errorf("rate limit store: %w", err)
		}
		counterStore = rs
	}

	limiter := ratelimit.NewSlidingWindowLimiter(counterStore, cfg.Requests, cfg.Window.Duration(), a.zlog)
	return limiter, counterStore, nil
}

// registerProviders builds and registers every configured provider.
func (a *application) registerProviders() error {
	for i := range a.cfg.Providers.ERP {
		p, err := providers.NewERP(a.cfg.Providers.ERP[i].Build(), a.logger)
		if err != nil {
			return fmt.Errorf("erp provider: %w", err)
		}
		if err := a.sessions.RegisterProvider(p); err != nil {
			return err
		}
	}

	for i := range a.cfg.Providers.TaxAPI {
		p, err := providers.NewTaxAPI(a.cfg.Providers.TaxAPI[i].Build(), a.logger)
		if err != nil {
			return fmt.Errorf("taxapi provider: %w", err)
		}
		if err := a.sessions.RegisterProvider(p); err != nil {
			return err
		}
	}

	for i := range a.cfg.Providers.CertAuth {
		pcfg, err := a.cfg.Providers.CertAuth[i].Build()
		if err != nil {
			return fmt.Errorf("certauth provider: %w", err)
		}
		p, err := providers.NewCertAuth(pcfg, a.logger)
		if err != nil {
			return fmt.Errorf("certauth provider: %w", err)
		}
		if err := a.sessions.RegisterProvider(p); err != nil {
			return err
		}
	}

	return nil
}

// newOpsServer builds the operational listener serving metrics and
// health endpoints.
func (a *application) newOpsServer() *http.Server {
	a.health = health.NewHandler(health.WithLogger(a.logger))
	if a.archive != nil {
		a.health.Register(health.NewCheckFunc("token_archive", func(context.Context) error {
			_, err := a.archive.Count()
			return err
		}))
	}
	if a.limiterStore != nil {
		a.health.Register(health.NewCheckFunc("rate_limit_store", func(ctx context.Context) error {
			_, err := a.limiterStore.Get(ctx, "readyz-probe")
			if store.IsKeyNotFound(err) {
				return nil
			}
			return err
		}))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", a.health.Liveness)
	mux.HandleFunc("/readyz", a.health.Readiness)

	return &http.Server{
		Addr:              a.cfg.Server.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// run starts background loops and blocks until the context is
// cancelled, then shuts everything down.
func (a *application) run(ctx context.Context, configPath string) error {
	a.sessions.Start(ctx)
	a.tokens.Start(ctx)

	watcher, err := config.NewWatcher(configPath, a.applyConfig, config.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("operational listener started",
			observability.String("address", a.server.Addr),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-serverErr:
		a.logger.Error("operational listener failed", observability.Error(err))
	}

	a.health.SetDraining(true)
	return a.shutdown(watcher)
}

// applyConfig applies a reloaded configuration. Only the rate limit
// section is applied live; other changes require a restart.
func (a *application) applyConfig(newCfg *config.Config) {
	old := a.cfg

	if !reflect.DeepEqual(old.RateLimit, newCfg.RateLimit) {
		limiter, limiterStore, err := a.buildRateLimiter(&newCfg.RateLimit)
		if err != nil {
			a.logger.Error("failed to apply rate limit config", observability.Error(err))
		} else {
			a.sessions.SetRateLimiter(limiter, newCfg.RateLimit.KeyBy())
			if a.limiterStore != nil {
				_ = a.limiterStore.Close()
			}
			a.limiterStore = limiterStore
			a.logger.Info("rate limit configuration applied")
		}
	}

	old.RateLimit = newCfg.RateLimit
	if !reflect.DeepEqual(*old, *newCfg) {
		a.logger.Warn("configuration changed in sections that require a restart")
	}
}

// shutdown stops components in reverse dependency order.
func (a *application) shutdown(watcher *config.Watcher) error {
	var errs []error

	if err := watcher.Stop(); err != nil {
		errs = append(errs, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	a.sessions.Stop()
	a.tokens.Stop()

	if err := a.credentials.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.limiterStore != nil {
		if err := a.limiterStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.auditor.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
