// Command server runs the PRECISE-HBR evaluation service: the HTTP API,
// the hot-reloading rule table, and the evaluation history store.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kunjulin/PRECISE-HBR-sub000/internal/api"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/config"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/history"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/ruleset"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := newLogger(cfg.Logging)

	loader := ruleset.NewLoader(cfg.Ruleset.Path, logger)
	if err := loader.Load(); err != nil {
		logger.WithError(err).Fatal("Failed to load rule table")
	}
	if cfg.Ruleset.Watch && cfg.Ruleset.Path != "" {
		loader.Watch()
	}

	store, err := newHistoryStore(cfg.History)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open history store")
	}
	if store != nil {
		defer store.Close()
	}

	evaluator := service.NewEvaluator(loader, store, logger)
	server := api.NewServer(cfg.Server, evaluator, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Fatal("Server failed")
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Graceful shutdown failed")
		}
	}
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func newHistoryStore(cfg config.HistoryConfig) (history.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return history.NewSQLiteStore(cfg.SQLitePath)
	case "postgres":
		return history.NewPostgresStore(cfg.PostgresDSN)
	default:
		return nil, nil
	}
}
