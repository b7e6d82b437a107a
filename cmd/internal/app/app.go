// Package app wires the sauat server runtime: config, logging, persistence,
// the auth API and the presence hub.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	authapi "sauat/cmd/internal/auth/api"
	"sauat/cmd/internal/auth/session"
	"sauat/cmd/internal/presence"
	"sauat/cmd/security/password"
)

// App is the sauat server runtime: it owns HTTP wiring, persistence and presence state.
type App struct {
	cfg Config
	log Logger

	stores  *backends
	svc     *session.Service
	tracker *presence.Tracker
	metrics *Metrics

	handler http.Handler
}

// New constructs a fully wired App instance from config and logger.
// Configuration problems are returned wrapped in session.ErrConfig.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	stores, err := openBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			stores.Close()
		}
	}()

	metrics := NewMetrics()

	tokens, err := session.NewJWTManager(sessCfg)
	if err != nil {
		return nil, err
	}
	rot, err := session.NewRotator(stores.refresh, sessCfg)
	if err != nil {
		return nil, err
	}
	svc, err := session.NewService(log, stores.users, pwCfg, tokens, rot, session.WithObserver(metrics))
	if err != nil {
		return nil, err
	}

	if cfg.SeedAdminEmail != "" && cfg.AdminPassword != "" {
		if _, _, err := SeedAdmin(ctx, log, stores.users, pwCfg, AdminSeed{
			Email:    cfg.SeedAdminEmail,
			Password: cfg.AdminPassword,
		}); err != nil {
			return nil, err
		}
	}

	auth, err := authapi.NewHandler(log, svc, authapi.LoadConfigFromEnv())
	if err != nil {
		return nil, err
	}

	tracker := presence.NewTracker(log)

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, auth,
		presence.NewWSGateway(log, tracker),
		presence.NewCountHandler(tracker, cfg.PresenceDetails),
		metrics,
	)

	return &App{
		cfg:     cfg,
		log:     log,
		stores:  stores,
		svc:     svc,
		tracker: tracker,
		metrics: metrics,
		handler: WithRequestLogging(WithSecurityHeaders(mux), log),
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

	stopGauge := a.metrics.TrackPresence(a.tracker)
	sweep := startSweeper(a.log, a.svc, nonZeroDuration(a.cfg.RefreshCleanupInterval, time.Hour), a.metrics.observeCleanup)

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"api", base+"/api/auth",
		"presence", wsBaseURL(base)+PresenceHubPath,
		"db_enabled", a.stores.pool != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Closing the tracker ends every presence socket with GoingAway, so
	// Shutdown does not wait on hijacked connections.
	a.tracker.Close()
	stopGauge()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	sweep.Stop()
	a.stores.Close()

	a.log.Info("server.stopped")
	return runErr
}

// Close releases resources of an App that was never Run.
func (a *App) Close() {
	a.tracker.Close()
	a.stores.Close()
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

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "ws://" + strings.TrimPrefix(base, "//")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}
