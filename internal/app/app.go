package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/forgeline/storeplane/internal/audit"
	"github.com/forgeline/storeplane/internal/config"
	"github.com/forgeline/storeplane/internal/httpserver"
	"github.com/forgeline/storeplane/internal/platform"
	"github.com/forgeline/storeplane/internal/telemetry"
	"github.com/forgeline/storeplane/pkg/store"
)

// Run is the application entry point. It wires configuration, infrastructure,
// and the provisioning control plane, then serves until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting storeplane", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL(), cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("connecting to redis failed, readiness-watch leasing disabled", "error", err)
			rdb = nil
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					logger.Error("closing redis", "error", err)
				}
			}()
		}
	}

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	repo := store.NewRepository(db)
	orchestrator := store.NewCLIOrchestrator(cfg.HelmBin, cfg.KubectlBin)
	lock := store.NewWatchLock(rdb, logger)
	notifier := store.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)

	gate := store.NewGate(repo, store.GateLimits{
		MaxStoresGlobal:    cfg.MaxStoresGlobal,
		MaxStoresPerTenant: cfg.MaxStoresPerTenant,
		MaxStoresPerHour:   cfg.MaxStoresPerHour,
		IdempotencyWindow:  time.Duration(cfg.IdempotencyWindowMs) * time.Millisecond,
	})
	engine := store.NewEngine(repo, orchestrator, lock, notifier, logger, store.EngineLimits{
		ReadinessCheckInterval: time.Duration(cfg.ReadinessCheckIntervalMs) * time.Millisecond,
		ProvisioningTimeout:    time.Duration(cfg.ProvisioningTimeoutMs) * time.Millisecond,
		MaxReadinessChecks:     cfg.MaxReadinessChecks,
	}, cfg.ChartPath)
	svc := store.NewService(repo, gate, engine, cfg.DNSSuffix)
	handler := store.NewHandler(svc, auditWriter, logger)

	if notifier.IsEnabled() {
		logger.Info("slack lifecycle notifications enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack lifecycle notifications disabled (SLACK_BOT_TOKEN or SLACK_ALERT_CHANNEL not set)")
	}

	srv := httpserver.NewServer(cfg, logger, db, metricsReg)
	srv.APIRouter.Mount("/stores", handler.Routes())

	maintenanceCtx, cancelMaintenance := context.WithCancel(context.Background())
	defer cancelMaintenance()
	go store.RunMaintenanceLoop(maintenanceCtx, repo, logger, store.MaintenanceLimits{
		IdempotencyWindow:   time.Duration(cfg.IdempotencyWindowMs) * time.Millisecond,
		ProvisioningTimeout: time.Duration(cfg.ProvisioningTimeoutMs) * time.Millisecond,
	}, time.Duration(cfg.MaintenanceIntervalMs)*time.Millisecond)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool) error {
	logger.Info("worker started")
	repo := store.NewRepository(db)
	store.RunMaintenanceLoop(ctx, repo, logger, store.MaintenanceLimits{
		IdempotencyWindow:   time.Duration(cfg.IdempotencyWindowMs) * time.Millisecond,
		ProvisioningTimeout: time.Duration(cfg.ProvisioningTimeoutMs) * time.Millisecond,
	}, time.Duration(cfg.MaintenanceIntervalMs)*time.Millisecond)
	return nil
}
