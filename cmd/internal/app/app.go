// Package app wires the warden server runtime: config, logging, storage,
// auth services and HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/api"
	"warden/cmd/internal/auth/apitoken"
	"warden/cmd/internal/auth/federated"
	"warden/cmd/internal/auth/local"
	"warden/cmd/internal/auth/notify"
	"warden/cmd/internal/auth/session"
	"warden/cmd/security/password"
)

// App is the warden server runtime.
type App struct {
	cfg Config
	log Logger

	pool       *pgxpool.Pool
	dispatcher *notify.Dispatcher
	handler    http.Handler
}

// stores groups the persistence backends selected by config.
type stores struct {
	accounts identity.Store
	sessions session.Store
	tokens   apitoken.Store
	pool     *pgxpool.Pool
}

// New constructs a fully wired App. Component settings are read from the environment.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}

	hasher, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	apiCfg, err := api.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	fedCfg, err := federated.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	st, err := newStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	closeOnErr := func(err error) (*App, error) {
		if st.pool != nil {
			st.pool.Close()
		}
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	dispatcher := notify.NewDispatcher(newNotifier(cfg, log), cfg.NotifyTimeout, log)
	sessions := session.NewManager(sessCfg, st.sessions, hasher, session.WithLogger(log))

	localSvc, err := local.NewService(
		st.accounts,
		password.NewHasher(pwCfg),
		sessions,
		apitoken.NewIssuer(st.tokens),
		local.WithNotifier(dispatcher),
		local.WithAutoActivate(cfg.AutoActivate),
		local.WithTokenRevocationOnPasswordChange(cfg.RevokeTokenOnPasswordChange),
		local.WithLogger(log),
	)
	if err != nil {
		return closeOnErr(err)
	}

	providers, err := fedCfg.BuildRegistry(&http.Client{Timeout: fedCfg.Timeout})
	if err != nil {
		return closeOnErr(err)
	}
	fedSvc, err := federated.NewService(st.accounts, sessions, providers,
		federated.WithLogger(log),
		federated.WithTimeout(fedCfg.Timeout),
	)
	if err != nil {
		return closeOnErr(err)
	}

	authHandler, err := api.NewHandler(log, apiCfg, localSvc,
		api.WithFederated(fedSvc),
		api.WithMetrics(api.NewMetrics(reg)),
	)
	if err != nil {
		return closeOnErr(err)
	}

	router := newRouter(log, cfg, st.pool, reg, authHandler)
	var h http.Handler = WithSecurityHeaders(router)
	h = WithMetrics(h, router, NewHTTPMetrics(reg))
	h = WithRequestLogging(h, log)
	h = WithRequestID(h)

	log.Info("app.ready",
		"db_enabled", st.pool != nil,
		"providers", providers.Names(),
		"auto_activate", cfg.AutoActivate,
		"token_hmac", hasher.HMAC(),
	)

	return &App{
		cfg:        cfg,
		log:        log,
		pool:       st.pool,
		dispatcher: dispatcher,
		handler:    h,
	}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.pool != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.Close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.Close()
		return err
	}

	a.Close()
	a.log.Info("server.stopped")
	return nil
}

// Close waits for in-flight notifications and releases the DB pool.
func (a *App) Close() {
	a.dispatcher.Wait()
	if a.pool != nil {
		a.pool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStores decides between Postgres-backed persistence and in-memory stores.
func newStores(ctx context.Context, cfg Config, log Logger) (stores, error) {
	if !cfg.DBEnabled() {
		log.Warn("db.disabled.inmemory_store")
		return stores{
			accounts: identity.NewMemoryStore(),
			sessions: session.NewMemoryStore(),
			tokens:   apitoken.NewMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return stores{}, fmt.Errorf("db: %w", err)
	}

	accounts, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return stores{}, err
	}
	sessions, err := session.NewPostgresStore(pool, cfg.DBSchema)
	if err != nil {
		pool.Close()
		return stores{}, err
	}
	tokens, err := apitoken.NewPostgresStore(pool, cfg.DBSchema)
	if err != nil {
		pool.Close()
		return stores{}, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema, "migrated", cfg.DBMigrate)
	return stores{accounts: accounts, sessions: sessions, tokens: tokens, pool: pool}, nil
}

func newNotifier(cfg Config, log Logger) notify.Notifier {
	if cfg.NotifyWebhookURL == "" {
		return notify.LogNotifier{Logger: log}
	}
	return notify.NewWebhookNotifier(cfg.NotifyWebhookURL, &http.Client{Timeout: nonZeroDuration(cfg.NotifyTimeout, notify.DefaultTimeout)})
}
