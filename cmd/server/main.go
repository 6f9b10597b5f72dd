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

	"shipsync/internal/api"
	"shipsync/internal/config"
	"shipsync/internal/metrics"
	"shipsync/internal/model"
	"shipsync/internal/repository"
	"shipsync/internal/service"
	"shipsync/internal/shopify"
	"shipsync/pkg/logger"

	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	etcdCli, err := initEtcd(cfg.Etcd)
	if err != nil {
		return err
	}
	defer etcdCli.Close()

	db, err := initDB(cfg.MySQL)
	if err != nil {
		return err
	}

	// Repositories
	orderRepo := repository.NewOrderRepository(db)
	connRepo := repository.NewConnectionRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	outcomeRepo := repository.NewOutcomeRepository(db)

	// Services
	observer := metrics.NewPrometheusObserver()
	client := shopify.NewClient()

	orchestrator := service.NewOrchestrator(queueRepo, orderRepo, connRepo, outcomeRepo, client, observer,
		service.OrchestratorConfig{
			Workers:   cfg.Workers.PoolSize,
			BatchSize: cfg.Workers.DrainBatchSize,
			Policy: shopify.Policy{
				MaxRetries:     cfg.Shopify.MaxRetries,
				InitialDelay:   cfg.Shopify.InitialDelay,
				AttemptTimeout: cfg.Shopify.AttemptTimeout,
			},
		})
	syncSvc := service.NewSyncService(db, queueRepo, orderRepo, outcomeRepo, orchestrator, observer)

	// Background sweep picks up orders the event path missed
	sweeper := service.NewSweeper(etcdCli, orderRepo, syncSvc, service.SweeperConfig{
		Interval:  cfg.Workers.SweepInterval,
		BatchSize: cfg.Workers.SweepBatchSize,
	})
	go func() {
		logger.Info("starting sweeper")
		sweeper.Run(ctx)
	}()

	// HTTP Server
	r := api.RegisterRoutes(
		api.NewSyncHandler(syncSvc),
		rdb,
		cfg.RateLimit.RequestsPerSecond,
		cfg.Server.Environment,
	)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited properly")
	return nil
}

// -- Infrastructure Initializers --

func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func initEtcd(cfg config.EtcdConfig) (*clientv3.Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return client, nil
}

func initDB(cfg config.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	// Simple auto-migrate for dev convenience
	// In production, you might want to use a proper migration tool like golang-migrate
	err = db.AutoMigrate(
		&model.Order{},
		&model.ShopConnection{},
		&model.FulfillmentRequest{},
		&model.FulfillmentOutcome{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}
