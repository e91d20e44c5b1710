package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neexbeast/campusnav/internal/api"
	"github.com/neexbeast/campusnav/internal/cache"
	"github.com/neexbeast/campusnav/internal/campus"
	"github.com/neexbeast/campusnav/internal/config"
	"github.com/neexbeast/campusnav/internal/geo"
	"github.com/neexbeast/campusnav/internal/imagery"
	"github.com/neexbeast/campusnav/internal/mapview"
	"github.com/neexbeast/campusnav/internal/report"
	"github.com/neexbeast/campusnav/internal/route"
	"github.com/neexbeast/campusnav/internal/session"
	"github.com/neexbeast/campusnav/internal/storage"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if err := report.Setup(cfg.Sentry.DSN, cfg.Env, version); err != nil {
		log.Warn("sentry disabled", "err", err)
	}
	defer report.Flush()

	ctx := context.Background()

	// Connect to PostgreSQL.
	pool, err := storage.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	// Run migrations.
	applied, err := storage.RunMigrations(ctx, pool, storage.Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("migrations applied", "files", applied)

	// Connect to Redis.
	redisClient, err := cache.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	images, err := imagery.NewLoader(cfg.Images.BaseURL)
	if err != nil {
		return fmt.Errorf("configuring image loader: %w", err)
	}

	// Wire dependencies.
	repo := storage.NewRepository(pool)
	fetcher := storage.NewFetcher(repo, log)
	store := cache.NewStore(redisClient, cfg.Cache.TTL)

	catalog, err := fetcher.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("reading campus catalog: %w", err)
	}
	log.Info("campus catalog readable",
		"buildings", len(catalog[campus.KindBuilding]),
		"rooms", len(catalog[campus.KindRoom]),
		"facilities", len(catalog[campus.KindFacility]),
	)

	manager := session.NewManager(session.Deps{
		Source:       fetcher,
		Router:       route.NewClient(cfg.Routing.BaseURL, cfg.Routing.APIKey, cfg.Routing.Timeout),
		Images:       images,
		Cameras:      store,
		Destinations: store,
		DefaultCamera: mapview.Camera{
			Center: geo.Coordinate{Lat: cfg.Map.DefaultLat, Lon: cfg.Map.DefaultLon},
			Zoom:   cfg.Map.DefaultZoom,
		},
		Log: log,
	})
	handlers := api.NewHandlers(manager, repo, log)
	router := api.NewRouter(handlers, cfg.Auth.Token, pool, store, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	// Sessions persist their cameras on the way out, so Redis must still be open.
	manager.Close(shutdownCtx)

	log.Info("server shut down cleanly")
	return nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
