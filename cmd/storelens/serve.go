package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/storelens/storelens/api"
	"github.com/storelens/storelens/browser"
	"github.com/storelens/storelens/config"
	"github.com/storelens/storelens/locking"
	"github.com/storelens/storelens/pdp"
	"github.com/storelens/storelens/policy"
	"github.com/storelens/storelens/session"
	"github.com/storelens/storelens/store"
	"github.com/storelens/storelens/worker"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the intake API and worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg := config.Load()
	initLogger(cfg.Log)
	slog.Info("storelens starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"workers", cfg.Worker.Concurrency,
	)

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	b, err := browser.New(cfg.Browser)
	if err != nil {
		return err
	}
	defer b.Close()

	// Redis backs both the domain lock store and the job queue. Without
	// it the process still runs single-node: in-memory lock store and
	// queue, no cross-process coordination.
	var lockStore locking.Store
	var queue worker.Queue
	redisStore, err := locking.NewRedisStore(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		slog.Warn("redis unavailable, using in-process lock store and queue", "error", err.Error())
		lockStore = locking.NewMemStore()
		queue = worker.NewMemQueue(1024)
	} else {
		defer redisStore.Close()
		lockStore = redisStore
		queue = worker.NewRedisQueue(redisStore.Client(), cfg.Worker.QueueKey)
	}
	defer queue.Close()

	hostname, _ := os.Hostname()
	orch := session.NewOrchestrator(
		b,
		lockStore,
		registry,
		pdp.NewPrefilter(cfg.Browser.DefaultProxy),
		db,
		store.NewArtifactWriter(cfg.Store.ArtifactDir),
		session.NewEvaluator(cfg.Store.EvaluatorURL),
		hostname,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := worker.NewPool(queue, orch, cfg.Worker.Concurrency)
	poolDone := make(chan error, 1)
	go func() { poolDone <- pool.Run(ctx) }()

	startTime := time.Now()
	router := api.NewRouter(db, queue, registry, cfg, startTime)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	// Give in-flight requests 5 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	queue.Close()
	if err := <-poolDone; err != nil {
		slog.Warn("worker pool exit", "error", err.Error())
	}
	slog.Info("storelens stopped")
	return nil
}

func buildRegistry(cfg *config.Config) (*policy.Registry, error) {
	registry := policy.NewRegistry()
	if cfg.Policy.PackPath != "" {
		if err := registry.LoadPack(cfg.Policy.PackPath); err != nil {
			return nil, err
		}
		slog.Info("policy pack loaded", "path", cfg.Policy.PackPath, "versions", registry.Versions())
	}
	if _, err := registry.Resolve(cfg.Policy.Version); err != nil {
		return nil, err
	}
	return registry, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
