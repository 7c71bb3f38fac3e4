// cmd/compliance-service/main.go
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

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ipo-compliance/internal/api"
	"ipo-compliance/internal/common/analysis"
	awsnotify "ipo-compliance/internal/common/aws"
	"ipo-compliance/internal/common/cache"
	"ipo-compliance/internal/common/camunda"
	"ipo-compliance/internal/common/config"
	"ipo-compliance/internal/common/database"
	"ipo-compliance/internal/common/logger"
	"ipo-compliance/internal/common/observability"
	"ipo-compliance/internal/common/validation"
	"ipo-compliance/internal/compliance"
	"ipo-compliance/internal/store"
	"ipo-compliance/internal/subscription"
	"ipo-compliance/internal/valuation"
	"ipo-compliance/pkg/registry"

	cgq "ipo-compliance/internal/workers/billing/check-generation-quota"
	ras "ipo-compliance/internal/workers/compliance/reconcile-analysis-status"
	ssg "ipo-compliance/internal/workers/compliance/sweep-stale-generations"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting compliance service...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("otel metrics disabled", zap.Error(err))
	}
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Registry & validation ---
	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		zapLog.Fatal("activity registry load failed", zap.Error(err))
	}
	validator, err := validation.NewValidator(reg)
	if err != nil {
		zapLog.Fatal("schema compilation failed", zap.Error(err))
	}

	// --- Core services ---
	repo := store.NewPostgres(pg.DB)
	backend := analysis.NewClient(cfg.Analysis.BaseURL, config.GetDuration(cfg.Analysis.Timeout), obs)
	reports := compliance.NewReportService(backend, cache.NewTaggedCache(rdb.Client), cfg.Analysis.ReportConcurrency, log)

	var notifier compliance.Notifier
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SNS.Enabled {
		n, err := awsnotify.NewNotifier(ctx, cfg.Notifications, log)
		if err != nil {
			zapLog.Fatal("notifier init failed", zap.Error(err))
		}
		notifier = n
	}

	reconciler := compliance.NewReconciler(repo, backend, reports, notifier,
		compliance.Policy{FailUnconfirmedDocuments: cfg.Reconciliation.FailUnconfirmed()}, log, obs)
	sweeper := compliance.NewSweeper(repo, cfg.Reconciliation.StaleAfter(), log)
	quota := subscription.NewChecker(repo)
	valuations := valuation.NewService(repo, backend, log)

	checks := map[string]api.ReadinessCheck{
		"postgres": pg.Ping,
		"redis":    rdb.Ping,
	}

	// --- Optional Zeebe client & workers ---
	var process compliance.ProcessStarter
	var workers []*camunda.CamundaWorker
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      config.GetDuration(cfg.Camunda.Timeout),
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		process = zeebe
		checks["zeebe"] = zeebe.HealthCheck
		workers = startWorkers(zeebe.GetClient(), cfg, log, reconciler, sweeper, repo, rdb, validator)
	}

	generations := compliance.NewGenerationService(repo, quota, reports, process, log)

	// --- HTTP API ---
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.NewServer(api.Config{
		WebhookRPS:   cfg.HTTP.WebhookRPS,
		WebhookBurst: cfg.HTTP.WebhookBurst,
		Version:      cfg.App.Version,
	}, api.Deps{
		Reconciler:  reconciler,
		Generations: generations,
		Quota:       quota,
		Companies:   repo,
		Reports:     reports,
		Valuations:  valuations,
		Validator:   validator,
		Checks:      checks,
	}, log)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      server.Router(),
		ReadTimeout:  config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.HTTP.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Staleness sweep ---
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(ctx, config.GetDuration(cfg.Reconciliation.SweepInterval))
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.HTTP.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	for _, w := range workers {
		w.Stop()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	<-sweepDone

	zapLog.Info("Compliance service stopped gracefully")
}

func startWorkers(
	client zbc.Client,
	cfg *config.Config,
	log logger.Logger,
	reconciler *compliance.Reconciler,
	sweeper *compliance.Sweeper,
	repo *store.Postgres,
	rdb *database.RedisClient,
	validator *validation.Validator,
) []*camunda.CamundaWorker {
	var workers []*camunda.CamundaWorker

	start := func(taskType string, handler camunda.JobHandler) {
		wcfg := cfg.Workers[taskType]
		if !wcfg.Enabled {
			log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
			return
		}
		workers = append(workers, camunda.NewWorker(client, taskType, wcfg.MaxJobsActive, handler, log))
	}

	start(ras.TaskType, ras.NewHandler(ras.LoadConfig(cfg.Workers[ras.TaskType]), reconciler, validator, log))
	start(cgq.TaskType, cgq.NewHandler(cgq.LoadConfig(cfg.Workers[cgq.TaskType]), repo, rdb.Client, validator, log))
	start(ssg.TaskType, ssg.NewHandler(ssg.LoadConfig(cfg.Workers[ssg.TaskType]), sweeper, log))

	log.Info("workers registered", map[string]interface{}{"count": len(workers)})
	return workers
}
