package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/starchallenge/internal/adapters/http/api"
	"github.com/okian/starchallenge/internal/adapters/live"
	"github.com/okian/starchallenge/internal/adapters/repository"
	app "github.com/okian/starchallenge/internal/app"
	"github.com/okian/starchallenge/internal/config"
	"github.com/okian/starchallenge/pkg/logger"
	"github.com/okian/starchallenge/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// System metrics are collected by startSystemMetricsUpdater.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't configured yet.
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "service exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "closing store failed", logger.Error(err))
		}
	}()

	svc := newService(store, cfg, log)
	if err := svc.Start(ctx); err != nil {
		return err
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := newHTTPServer(cfg, svc)
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	// Stopping the service closes every websocket; hijacked connections are
	// not tracked by srv.Shutdown.
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openStore connects, migrates and wraps the configured database.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*repository.GormStore, error) {
	db, err := repository.Open(ctx, repository.DBConfig{
		Driver:         cfg.DBDriver,
		DSN:            cfg.DBDSN,
		ConnectTimeout: cfg.DBConnectTimeout(),
		MaxOpenConns:   cfg.DBMaxOpenConns,
		Metrics:        cfg.DBMetrics,
	}, log.Named("database"))
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(ctx, db); err != nil {
		return nil, err
	}
	return repository.NewGormStore(db), nil
}

func newService(store repository.Store, cfg *config.Config, log logger.Logger) *app.Service {
	return app.New(store,
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithStarDivisor(cfg.StarDivisor),
		app.WithWinnerCount(cfg.WinnerCount),
		app.WithIdempotentWinners(cfg.IdempotentWinners),
		app.WithIdempotentRewards(cfg.IdempotentRewards),
		app.WithRecomputeConcurrency(cfg.RecomputeConcurrency),
		app.WithSnapshotDelay(cfg.SnapshotDelay()),
		app.WithStatusSyncInterval(cfg.StatusSyncInterval()),
	)
}

func newHTTPServer(cfg *config.Config, svc *app.Service) *http.Server {
	apiServer := api.NewServer(svc,
		api.WithAllowedOrigins(cfg.AllowedOrigins),
		api.WithLiveHandler(live.NewHandler(svc.Broker(), cfg.AllowedOrigins, cfg.ClientSendBuffer)),
	)
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Routes(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes queue gauges from the service.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()
	if workers, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerActiveCount(workers)
	}
	if clients, ok := stats["connectedClients"].(int); ok {
		metrics.UpdateLiveConnections(clients)
	}
}
