// Package server assembles folio's HTTP server from its configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrschumacher/folio/internal/backend"
	"github.com/jrschumacher/folio/internal/config"
	"github.com/jrschumacher/folio/internal/db"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/jrschumacher/folio/internal/middleware"
	"github.com/jrschumacher/folio/internal/refresher"
	"github.com/jrschumacher/folio/internal/routeguard"
	"github.com/jrschumacher/folio/internal/session"
	"github.com/jrschumacher/folio/internal/svrlib"
	"github.com/jrschumacher/folio/internal/web"
	"github.com/jrschumacher/folio/server/app"
	auth "github.com/jrschumacher/folio/server/auth-handlers"
	health "github.com/jrschumacher/folio/server/health-handlers"
)

// Server owns the handler and the resources behind it.
type Server struct {
	cfg      *config.Config
	handler  http.Handler
	db       *db.Service
	redis    *session.RedisRegistry
	Sessions *session.Service
}

// New wires every component from cfg.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	table, err := routeguard.FromConfig(cfg.Routes)
	if err != nil {
		return nil, fmt.Errorf("route table: %w", err)
	}

	dbService, err := db.NewService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	s := &Server{cfg: cfg, db: dbService}

	var registry session.Registry
	if cfg.RedisURL != "" {
		s.redis, err = session.NewRedisRegistryFromURL(cfg.RedisURL, cfg.RejectedTTL)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		registry = s.redis
		logger.Info("Using redis rejection registry")
	} else {
		registry, err = session.NewMemoryRegistry(session.DefaultRegistrySize, cfg.RejectedTTL)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	s.Sessions = session.New(
		refresher.New(cfg.BackendURL, refresher.WithTimeout(cfg.RefreshTimeout)),
		session.WithRegistry(registry),
		session.WithAuditor(dbService),
		session.WithSingleFlight(cfg.RefreshSingleFlight),
	)
	cookies := web.NewCookies(cfg)
	api := backend.New(cfg.BackendURL, backend.WithTimeout(cfg.RefreshTimeout))

	// The guard wraps the whole mux so unrouted paths are guarded too.
	stack := middleware.Stack{
		Refresh: middleware.TokenRefreshMiddleware(s.Sessions, cookies, cfg.ValidityBufferSeconds, time.Now),
		Layout:  middleware.LayoutMiddleware(cfg.AppEnv, func() int64 { return time.Now().Unix() }),
	}

	mux := http.NewServeMux()
	checks := map[string]health.Pinger{"database": dbService}
	if s.redis != nil {
		checks["redis"] = s.redis
	}
	health.RegisterRoutes(svrlib.NewRouter(mux, "", cfg, stack), checks)
	auth.RegisterRoutes(svrlib.NewRouter(mux, "/auth", cfg, stack), "/auth", api, s.Sessions, cookies)
	app.RegisterRoutes(svrlib.NewRouter(mux, "/", cfg, stack), api, s.Sessions, dbService)

	s.handler = middleware.RequestLogger(middleware.RouteGuard(table, cookies)(mux))
	return s, nil
}

// Handler is the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close releases the database and redis connections.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests.
func Start(cfg *config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error("Failed to close server resources", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Listening", "addr", httpServer.Addr, "env", cfg.AppEnv)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
}
