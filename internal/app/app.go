package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codex-k8s/grades-mcp-server/internal/dsl"
	"github.com/codex-k8s/grades-mcp-server/internal/http/health"
	"github.com/codex-k8s/grades-mcp-server/internal/timeutil"
)

// App controls the HTTP server lifecycle.
type App struct {
	baseCtx         context.Context
	server          *http.Server
	health          *health.Handler
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New initializes the HTTP server with health endpoints.
// mcpHandler is mounted at server.http.path when non-nil; extra maps path prefixes to handlers.
func New(baseCtx context.Context, serverCfg dsl.ServerConfig, mcpHandler http.Handler, extra map[string]http.Handler, checks map[string]health.Pinger, logger *slog.Logger, shutdownTimeout time.Duration) (*App, error) {
	if mcpHandler == nil && len(extra) == 0 {
		return nil, fmt.Errorf("no handlers to serve")
	}
	if baseCtx == nil {
		return nil, fmt.Errorf("base context is nil")
	}

	healthHandler := health.New(checks)
	mux := http.NewServeMux()
	if mcpHandler != nil {
		mux.Handle(serverCfg.HTTP.Path, mcpHandler)
	}
	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)
	for path, route := range extra {
		if strings.TrimSpace(path) == "" || route == nil {
			continue
		}
		mux.Handle(path, route)
	}

	srv := &http.Server{
		Addr:              serverCfg.HTTP.Listen,
		Handler:           mux,
		ReadTimeout:       timeutil.ParseDurationOrDefault(serverCfg.HTTP.ReadTimeout, 15*time.Second),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      timeutil.ParseDurationOrDefault(serverCfg.HTTP.WriteTimeout, 30*time.Second),
		IdleTimeout:       timeutil.ParseDurationOrDefault(serverCfg.HTTP.IdleTimeout, 60*time.Second),
	}

	if shutdownTimeout == 0 {
		shutdownTimeout = timeutil.ParseDurationOrDefault(serverCfg.ShutdownTimeout, 10*time.Second)
	}

	return &App{
		baseCtx:         baseCtx,
		server:          srv,
		health:          healthHandler,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}, nil
}

// Handler returns the root handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Health returns the probe handler.
func (a *App) Health() *health.Handler {
	return a.health
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.health.SetReady()
		if a.logger != nil {
			a.logger.Info("http server started", "addr", a.server.Addr)
		}
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		if a.logger != nil {
			a.logger.Info("shutdown requested")
		}
		return a.shutdown()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		if a.logger != nil {
			a.logger.Error("http server error", "error", err)
		}
		return err
	}
}

func (a *App) shutdown() error {
	a.health.SetNotReady()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.baseCtx), a.shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
