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

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"sniprag/internal/activities"
	"sniprag/internal/api"
	"sniprag/internal/config"
	"sniprag/internal/engine"
	"sniprag/internal/logging"
	"sniprag/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.WithError(err).Fatal("sniprag api stopped")
	}
}

// run serves until ctx ends. Every resource it opens is released before it
// returns, including on error.
func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	eng, err := engine.New(ctx, engine.Options{Config: cfg, Logger: log})
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Close()
	if n, err := eng.Restore(ctx); err != nil {
		return fmt.Errorf("restore snapshots: %w", err)
	} else if n > 0 {
		log.WithField("documents", n).Info("index restored")
	}

	// The worker runs in this process so activities share the engine's
	// in-memory index with the HTTP handlers.
	var tc tclient.Client
	if cfg.TemporalEnabled {
		tc, err = tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress, Logger: logging.NewTemporalLogger(log)})
		if err != nil {
			return fmt.Errorf("dial temporal: %w", err)
		}
		defer tc.Close()
		w := worker.New(tc, cfg.TemporalTaskQueue, worker.Options{})
		workflows.Register(w)
		activities.Register(w, activities.New(cfg, eng, log))
		if err := w.Start(); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
		defer w.Stop()
		log.WithFields(logrus.Fields{"address": cfg.TemporalAddress, "queue": cfg.TemporalTaskQueue}).Info("temporal worker started")
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewServer(cfg, eng, tc, log).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithFields(logrus.Fields{
		"addr":           cfg.APIAddr,
		"strategy":       cfg.Strategy,
		"embed_provider": cfg.EmbedProviders,
		"snapshots":      cfg.SnapshotBackend,
	}).Info("sniprag api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
