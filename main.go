package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"greader/internal/config"
	"greader/internal/database"
	"greader/internal/logger"
	"greader/internal/rss"
	"greader/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "greader: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer log.Sync()

	var store database.Store
	switch cfg.DatabaseDriver {
	case "sqlite":
		store, err = database.NewSQLite(cfg.DatabaseDSN)
	case "postgres":
		store, err = database.NewPostgres(cfg.DatabaseDSN)
	default:
		return fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
	if err != nil {
		return err
	}
	defer store.Close()
	log.Infow("storage ready", "backend", store.DatabaseType())

	engine := rss.NewEngine(store, rss.Options{
		FetchTimeout:     cfg.FetchTimeout,
		MaxResponseBytes: cfg.MaxResponseBytes,
		RefreshInterval:  cfg.RefreshInterval,
		SweepWorkers:     cfg.SweepWorkers,
		RateLimitWindow:  cfg.RateLimitWindow,
		RateLimitMax:     cfg.RateLimitMax,
	}, log)

	srv := server.New(store, engine, cfg.APITokens, cfg.AllowedOrigins, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := engine.Run(ctx, cfg.RefreshInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("sweeper stopped", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Errorw("shutdown", "error", err)
		}
	}()

	log.Infow("server listening", "addr", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
