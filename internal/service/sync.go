package service

import (
	"context"
	"errors"

	"shipsync/internal/metrics"
	"shipsync/internal/model"
	"shipsync/internal/repository"
	"shipsync/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrOrderNotFound = errors.New("order not found")

// SyncService is the front door of the sync subsystem: order-completion
// handlers, admin endpoints and the sweep all go through it.
type SyncService struct {
	db           *gorm.DB
	queueRepo    repository.QueueInterface
	orderRepo    repository.OrderInterface
	outcomeRepo  repository.OutcomeInterface
	orchestrator *Orchestrator
	observer     metrics.SyncObserver
}

func NewSyncService(
	db *gorm.DB,
	queueRepo repository.QueueInterface,
	orderRepo repository.OrderInterface,
	outcomeRepo repository.OutcomeInterface,
	orchestrator *Orchestrator,
	observer metrics.SyncObserver,
) *SyncService {
	return &SyncService{
		db:           db,
		queueRepo:    queueRepo,
		orderRepo:    orderRepo,
		outcomeRepo:  outcomeRepo,
		orchestrator: orchestrator,
		observer:     observer,
	}
}

// EnqueueOrderForSync queues one order. Queue storage errors propagate to
// the caller; they are never swallowed here. Returns false when a request
// for the order is already outstanding.
func (s *SyncService) EnqueueOrderForSync(ctx context.Context, orderID string) (bool, error) {
	if _, err := s.orderRepo.GetByID(ctx, orderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrOrderNotFound
		}
		return false, err
	}

	queued, err := s.queueRepo.Enqueue(ctx, orderID)
	if err != nil {
		return false, err
	}
	if queued {
		if err := s.orderRepo.UpdateSyncStatus(ctx, orderID, model.SyncStatusQueued); err != nil {
			logger.Warn("failed to mark order queued", zap.String("order_id", orderID), zap.Error(err))
		}
		logger.Info("order queued for fulfillment sync", zap.String("order_id", orderID))
	}
	return queued, nil
}

// TriggerDrain processes one batch immediately and returns its summary.
func (s *SyncService) TriggerDrain(ctx context.Context) (*BatchSummary, error) {
	return s.orchestrator.ProcessBatch(ctx)
}

// QueueStatus reports counts per state and the oldest pending age, and
// refreshes the queue gauges as a side effect.
func (s *SyncService) QueueStatus(ctx context.Context) (*repository.QueueStatus, error) {
	status, err := s.queueRepo.Status(ctx)
	if err != nil {
		return nil, err
	}
	for _, state := range []string{
		model.RequestPending, model.RequestInFlight,
		model.RequestSucceeded, model.RequestFailed, model.RequestSkipped,
	} {
		s.observer.ObserveQueueDepth(state, status.Counts[state])
	}
	s.observer.ObserveOldestPendingAge(status.OldestPendingAge.Seconds())
	return status, nil
}

func (s *SyncService) ListOutcomes(ctx context.Context, orderID string) ([]model.FulfillmentOutcome, error) {
	return s.outcomeRepo.ListByOrder(ctx, orderID)
}

func (s *SyncService) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
