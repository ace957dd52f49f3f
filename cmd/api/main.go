// Package main is the entry point for the natal chart API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zapponejosh/natal-api/internal/api"
	"github.com/zapponejosh/natal-api/internal/config"
	"github.com/zapponejosh/natal-api/internal/content"
	"github.com/zapponejosh/natal-api/internal/database"
	"github.com/zapponejosh/natal-api/internal/ephemeris"
	"github.com/zapponejosh/natal-api/internal/geocode"
	"github.com/zapponejosh/natal-api/internal/logger"
	"github.com/zapponejosh/natal-api/internal/metrics"
	"github.com/zapponejosh/natal-api/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.Setup(cfg)

	log.Info("starting natal API",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.String("log_level", cfg.LogLevel),
		slog.String("house_system", string(cfg.HouseSystem)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("natal API stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// =========================================================================
	// Storage
	// =========================================================================
	db, err := database.Open(database.DefaultConfig(cfg.DatabasePath), log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	applied, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("migrations complete", slog.Int("applied", applied))

	// =========================================================================
	// Content, geocoding, metrics
	// =========================================================================
	collector := metrics.NewCollector("natal")

	contentOpts := content.Options{
		AssetsDir:      cfg.AssetsDir,
		PlaceholderURL: cfg.PlaceholderURL,
		Recorder:       collector,
	}
	index, err := content.Load(cfg.ContentDir, contentOpts, log)
	if err != nil {
		// Serve whatever loaded; misses fall back to placeholders.
		log.Warn("content loaded with errors", slog.Any("error", err))
	}
	watcher := content.NewWatcher(cfg.ContentDir, index, contentOpts, log,
		content.WithReloadHook(collector.ContentReloaded))

	geoCfg := geocode.DefaultConfig()
	geoCfg.BaseURL = cfg.GeocoderURL
	geoCfg.UserAgent = cfg.GeocoderUserAgent
	geoCfg.Timeout = cfg.GeocoderTimeout
	geoCfg.RetryTimeout = cfg.GeocoderRetryTimeout
	geocoder := geocode.NewNominatim(geoCfg, log, collector)

	// =========================================================================
	// Services and HTTP
	// =========================================================================
	deps := service.Deps{
		Ephemeris: ephemeris.New(log),
		Geocoder:  geocoder,
		Store:     db,
		Content:   watcher,
		Logger:    log,
		Recorder:  collector,
	}
	charts := service.NewChartService(service.ChartConfig{
		DefaultHouseSystem:  cfg.HouseSystem,
		ResearchConcurrency: cfg.ResearchConcurrency,
	}, deps)
	profiles := service.NewProfileService(deps)

	handlers := api.NewHandlers(db, charts, profiles, watcher, cfg, log)
	router := api.SetupRoutes(handlers, cfg, log, api.RouteOptions{
		Metrics:  collector.Handler(),
		Recorder: collector,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Research scans every profile, so allow for slow responses.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("natal API ready", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.ContentWatch {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
