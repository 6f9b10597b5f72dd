package service

import (
	"context"
	"time"

	"shipsync/internal/repository"
	"shipsync/pkg/logger"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

const sweeperLockKey = "/shipsync/locks/sweeper"

type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Sweeper periodically picks up delivered orders the event path missed
// and pushes them through the queue. An etcd lock keeps the sweep to one
// instance at a time.
type Sweeper struct {
	etcdClient *clientv3.Client
	orderRepo  repository.OrderInterface
	sync       *SyncService
	interval   time.Duration
	batchSize  int
}

func NewSweeper(client *clientv3.Client, orderRepo repository.OrderInterface, sync *SyncService, cfg SweeperConfig) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		etcdClient: client,
		orderRepo:  orderRepo,
		sync:       sync,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	session, err := concurrency.NewSession(s.etcdClient, concurrency.WithTTL(10))
	if err != nil {
		logger.Error("failed to create etcd concurrency session", zap.Error(err))
		return
	}
	defer session.Close()

	mutex := concurrency.NewMutex(session, sweeperLockKey)

	logger.Info("sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := mutex.Lock(lockCtx)
			cancel()

			if err != nil {
				if err == context.DeadlineExceeded {
					logger.Debug("sweep skipped, another instance holds the lock")
				} else {
					logger.Error("failed to acquire sweep lock", zap.Error(err))
				}
				continue
			}

			s.sweep(ctx)

			if err := mutex.Unlock(context.Background()); err != nil {
				logger.Warn("failed to release sweep lock", zap.Error(err))
			}
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	orders, err := s.orderRepo.FindDeliverable(ctx, s.batchSize)
	if err != nil {
		logger.Error("sweep: failed to list deliverable orders", zap.Error(err))
		return
	}

	queued := 0
	for _, order := range orders {
		ok, err := s.sync.EnqueueOrderForSync(ctx, order.ID)
		if err != nil {
			// The next sweep retries; losing an enqueue silently is not
			// an option.
			logger.Error("sweep: enqueue failed", zap.String("order_id", order.ID), zap.Error(err))
			continue
		}
		if ok {
			queued++
		}
	}

	if queued == 0 && len(orders) == 0 {
		return
	}

	summary, err := s.sync.TriggerDrain(ctx)
	if err != nil {
		logger.Error("sweep: drain failed", zap.Error(err))
		return
	}
	logger.Info("sweep finished",
		zap.Int("candidates", len(orders)),
		zap.Int("queued", queued),
		zap.Int("processed", summary.Processed))
}
