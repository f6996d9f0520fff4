package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paulwinex/nas-monitor/internal/aggregation"
	"github.com/paulwinex/nas-monitor/internal/alerting"
	"github.com/paulwinex/nas-monitor/internal/collector"
	"github.com/paulwinex/nas-monitor/internal/config"
	"github.com/paulwinex/nas-monitor/internal/domain"
	apphttp "github.com/paulwinex/nas-monitor/internal/http"
	"github.com/paulwinex/nas-monitor/internal/inventory"
	applogger "github.com/paulwinex/nas-monitor/internal/logger"
	"github.com/paulwinex/nas-monitor/internal/notify"
	"github.com/paulwinex/nas-monitor/internal/repository/postgres"
	"github.com/paulwinex/nas-monitor/internal/retention"
	"github.com/paulwinex/nas-monitor/internal/scheduler"
	"github.com/paulwinex/nas-monitor/internal/service"

	"go.uber.org/zap"
)

func main() {
	// Отменяемый контекст для всего приложения
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.LoadConfig()

	logger, err := applogger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("Error during logger sync: %v", err)
		}
	}()

	logger.Info("Starting NAS Monitor", zap.String("version", "1.0.0"))

	// Инициализация хранилища; провал схемы фатален
	repo, err := postgres.NewPostgresRepository(ctx, cfg.DBConfig, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		repo.Close()
		logger.Info("Database connection closed")
	}()
	if err := repo.InitSchema(ctx); err != nil {
		logger.Fatal("Failed to initialize storage schema", zap.Error(err))
	}

	metricService := service.NewMetricService(repo, logger)

	// Алертинг: правила -> чекеры -> статический реестр
	rules := alerting.DefaultRules(cfg.Alerting)
	if cfg.Alerting.RulesFile != "" {
		rules, err = alerting.LoadRules(cfg.Alerting.RulesFile)
		if err != nil {
			logger.Fatal("Failed to load alert rules", zap.Error(err))
		}
	}
	checkers, err := alerting.BuildCheckers(rules, repo, cfg.Alerting.HistoryWindow)
	if err != nil {
		logger.Fatal("Failed to build alert checkers", zap.Error(err))
	}
	registry := alerting.NewRegistry(checkers...)
	logger.Info("Alert checkers registered", zap.Int("count", registry.Len()))

	dispatcher, err := notify.NewDispatcherFromConfig(cfg.Notify, logger)
	if err != nil {
		logger.Fatal("Failed to initialize notification senders", zap.Error(err))
	}
	throttle := alerting.NewThrottle(cfg.Alerting.ThrottleWindow)
	alertEngine := alerting.NewEngine(registry, throttle, dispatcher, logger)

	// Первичная инвентаризация, чтобы коллекторам было куда писать
	scanner := inventory.NewScanner(repo, logger)
	if err := scanner.Run(ctx); err != nil {
		logger.Error("Initial inventory scan failed", zap.Error(err))
	}

	aggEngine := aggregation.NewEngine(repo, logger)
	retentionManager := retention.NewManager(repo, map[domain.Tier]time.Duration{
		domain.TierRaw:     cfg.Retention.Raw,
		domain.TierHourly:  cfg.Retention.Hourly,
		domain.TierHistory: cfg.Retention.History,
	}, logger)

	// Периодические задачи: сбор по типам устройств, агрегация, ретеншен
	sched := scheduler.New(logger)

	collectors := []struct {
		c        collector.Collector
		interval time.Duration
	}{
		{collector.NewCPUCollector(), cfg.Collectors.CPUInterval},
		{collector.NewRAMCollector(), cfg.Collectors.RAMInterval},
		{collector.NewNetCollector(), cfg.Collectors.NetworkInterval},
		{collector.NewStorageCollector(logger), cfg.Collectors.StorageInterval},
		{collector.NewZFSCollector(), cfg.Collectors.ZFSInterval},
	}
	for _, entry := range collectors {
		runner := collector.NewRunner(entry.c, metricService, alertEngine, logger)
		sched.Add("collect_"+entry.c.DeviceType(), entry.interval, runner.Run)
	}

	stages := aggregation.Stages()
	stageIntervals := []time.Duration{cfg.Aggregation.HourlyInterval, cfg.Aggregation.HistoryInterval}
	for i, stage := range stages {
		stage := stage
		sched.Add("aggregate_"+stage.Name, stageIntervals[i], func(ctx context.Context) error {
			return aggEngine.RunStage(ctx, stage)
		})
	}

	sched.Add("retention", cfg.Retention.Interval, func(ctx context.Context) error {
		retentionManager.Run(ctx)
		return nil
	})
	sched.Add("inventory_rescan", cfg.Collectors.InventoryInterval, scanner.Run)

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Start(ctx); err != nil {
			logger.Error("Scheduler stopped with error", zap.Error(err))
		}
	}()

	// HTTP сервер
	httpServer := apphttp.NewHTTPServer(cfg.RESTPort, metricService, logger)
	go func() {
		if err := httpServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	cancel()
	<-schedDone

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	logger.Info("NAS Monitor stopped")
}
