package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/endpointmonitor/internal/config"
	"github.com/hamed0406/endpointmonitor/internal/httpapi"
	"github.com/hamed0406/endpointmonitor/internal/logging"
	"github.com/hamed0406/endpointmonitor/internal/monitor"
	"github.com/hamed0406/endpointmonitor/internal/probe"
	"github.com/hamed0406/endpointmonitor/internal/repo"
	"github.com/hamed0406/endpointmonitor/internal/repo/memory"
	"github.com/hamed0406/endpointmonitor/internal/repo/postgres"
	rds "github.com/hamed0406/endpointmonitor/internal/repo/redis"
	"github.com/hamed0406/endpointmonitor/internal/repo/sqlite"
	"github.com/hamed0406/endpointmonitor/internal/scheduler"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogDir, logging.Options{Level: cfg.LogLevel, Console: cfg.LogConsole})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_failed", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()
	logger.Info("store_ready", zap.String("driver", cfg.StoreDriver))

	coord := monitor.NewCoordinator(store, probe.NewHTTPProber(cfg.ProbeTimeout), logger)
	svc := monitor.NewService(store, coord, probe.NewDNSDiagnoser(), logger)
	sch := scheduler.NewScheduler(logger, store, coord, cfg.CheckInterval, cfg.MaxConcurrentChecks)

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sch.Run(ctx)
	}()

	api := httpapi.NewServer(logger, svc, sch)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api_listen",
			zap.String("addr", cfg.Addr),
			zap.Duration("check_interval", cfg.CheckInterval),
			zap.Duration("probe_timeout", cfg.ProbeTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_listen_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler_shutdown_timeout")
	}
	logger.Info("shutdown_complete")
}

// openStore picks the RecordStore adapter named by cfg.StoreDriver.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.RecordStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.DriverRedis:
		c, err := rds.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		s := rds.New(c, rds.DefaultNamespace)
		return s, func() { _ = s.Close() }, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.DriverMemory:
		return memory.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
