package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/harmonium-app/harmonium/internal/auth"
	"github.com/harmonium-app/harmonium/internal/cache"
	"github.com/harmonium-app/harmonium/internal/repositories"
	"github.com/harmonium-app/harmonium/internal/resilience"
	"github.com/harmonium-app/harmonium/internal/server"
	"github.com/harmonium-app/harmonium/internal/services"
	"github.com/harmonium-app/harmonium/internal/shared"
	"github.com/harmonium-app/harmonium/internal/tasks"
	"github.com/urfave/cli/v3"
)

const shutdownGrace = 10 * time.Second

// publicPrefixes are request paths served without a session: health, the
// OAuth entry points, and catalog lookups backed by the app token.
var publicPrefixes = []string{
	"/api/health",
	"/api/auth/login",
	"/api/auth/callback",
	"/api/tracks/",
	"/api/artists/",
	"/api/search/",
	"/api/recommendations",
}

// Serve wires every component together and runs the HTTP server until
// interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	if host := cmd.String("host"); host != "" {
		config.Server.Host = host
	}
	if port := cmd.Int("port"); port != 0 {
		config.Server.Port = int(port)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	vault, err := auth.NewVault(config.Security.EncryptionKey)
	if err != nil {
		return err
	}

	store := r.cacheStore(ctx, config)
	memo := cache.New(store, r.logger)

	credRepo := repositories.NewCredentialRepository(db, vault)
	playlistRepo := repositories.NewPlaylistRepository(db)

	manager, err := auth.NewManager(config.Credentials.Spotify, auth.NewStateStore(store), credRepo, r.logger)
	if err != nil {
		return err
	}

	sessions, err := auth.NewSessions(config.Security)
	if err != nil {
		return err
	}

	client := resilience.NewClient(resilience.OptionsFromConfig(config.Resilience, r.logger))

	spotify, err := services.NewSpotifyService(config, client, memo, r.logger)
	if err != nil {
		return err
	}

	router := server.NewBasicRouter()
	router.Use(
		server.Recover(r.logger),
		server.RequestLogger(r.logger),
		server.Authenticate(sessions, manager, r.logger, publicPrefixes...),
	)
	router.Handler(server.NewHealthHandler(client, r.logger))
	router.Handler(server.NewAuthHandler(manager, sessions, r.logger))
	router.Handler(server.NewPlaylistHandler(playlistRepo, memo, config.Cache, r.logger))
	router.Handler(server.NewMusicHandler(spotify, r.logger))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := tasks.NewRefreshEngine(credRepo, manager, r.logger, tasks.RefreshEngineOptions{})
	go engine.Run(ctx)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		r.logger.Info("server listening", "addr", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	r.logger.Info("shutting down", "grace", shutdownGrace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			r.logger.Warn("cache store close failed", "error", err)
		}
	}

	return nil
}

// cacheStore prefers Redis when configured and reachable, falling back to
// the in-process store so the service still runs without it.
func (r *Runner) cacheStore(ctx context.Context, config *shared.Config) cache.Store {
	if config.Redis.Addr == "" {
		r.logger.Info("redis not configured, using in-memory cache")
		return cache.NewMemoryStore()
	}

	store, err := cache.NewRedisStore(ctx, config.Redis)
	if err != nil {
		r.logger.Warn("redis unavailable, using in-memory cache", "addr", config.Redis.Addr, "error", err)
		return cache.NewMemoryStore()
	}

	r.logger.Info("redis cache connected", "addr", config.Redis.Addr)
	return store
}
