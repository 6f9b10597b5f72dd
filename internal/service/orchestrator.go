package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"shipsync/internal/metrics"
	"shipsync/internal/model"
	"shipsync/internal/repository"
	"shipsync/internal/shopify"
	"shipsync/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxDrainCycles caps how many drain cycles a request may burn through
// before it is parked as failed.
const MaxDrainCycles = 5

type OrchestratorConfig struct {
	Workers   int
	BatchSize int
	Policy    shopify.Policy
}

// Orchestrator turns drained queue items into durable outcomes: it
// resolves the order and its connection, performs the remote fulfillment
// call and writes the result back.
type Orchestrator struct {
	queueRepo   repository.QueueInterface
	orderRepo   repository.OrderInterface
	connRepo    repository.ConnectionInterface
	outcomeRepo repository.OutcomeInterface
	client      *shopify.Client
	policy      shopify.Policy
	workers     int
	batchSize   int
	observer    metrics.SyncObserver
}

func NewOrchestrator(
	queueRepo repository.QueueInterface,
	orderRepo repository.OrderInterface,
	connRepo repository.ConnectionInterface,
	outcomeRepo repository.OutcomeInterface,
	client *shopify.Client,
	observer metrics.SyncObserver,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Policy.MaxRetries == 0 {
		cfg.Policy = shopify.DefaultPolicy()
	}
	return &Orchestrator{
		queueRepo:   queueRepo,
		orderRepo:   orderRepo,
		connRepo:    connRepo,
		outcomeRepo: outcomeRepo,
		client:      client,
		policy:      cfg.Policy,
		workers:     cfg.Workers,
		batchSize:   cfg.BatchSize,
		observer:    observer,
	}
}

type ItemResult struct {
	OrderID string `json:"order_id"`
	Result  string `json:"result"`
	Reason  string `json:"reason,omitempty"`
}

type BatchSummary struct {
	Processed int          `json:"processed"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Requeued  int          `json:"requeued"`
	Items     []ItemResult `json:"items"`
}

// Item result labels. "requeued" is not a queue state: the underlying
// request went back to pending for a later cycle.
const (
	resultSucceeded = "succeeded"
	resultFailed    = "failed"
	resultSkipped   = "skipped"
	resultRequeued  = "requeued"
)

// ProcessBatch drains one batch and processes it on a bounded worker
// pool. The pool size bounds concurrent calls against the platform.
func (o *Orchestrator) ProcessBatch(ctx context.Context) (*BatchSummary, error) {
	start := time.Now()

	items, err := o.queueRepo.Drain(ctx, o.batchSize)
	if err != nil {
		return nil, err
	}

	jobs := make(chan model.FulfillmentRequest)
	results := make(chan ItemResult, len(items))

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				results <- o.process(ctx, req)
			}
		}()
	}

	for _, item := range items {
		jobs <- item
	}
	close(jobs)
	wg.Wait()
	close(results)

	summary := &BatchSummary{Items: make([]ItemResult, 0, len(items))}
	for res := range results {
		summary.Processed++
		summary.Items = append(summary.Items, res)
		switch res.Result {
		case resultSucceeded:
			summary.Succeeded++
		case resultFailed:
			summary.Failed++
		case resultSkipped:
			summary.Skipped++
		case resultRequeued:
			summary.Requeued++
		}
		o.observer.RecordResult(res.Result)
	}

	o.observer.ObserveDrainDuration(time.Since(start).Seconds())
	if summary.Processed > 0 {
		logger.Info("drain batch processed",
			zap.Int("processed", summary.Processed),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped),
			zap.Int("requeued", summary.Requeued))
	}
	return summary, nil
}

func (o *Orchestrator) process(ctx context.Context, req model.FulfillmentRequest) ItemResult {
	order, err := o.orderRepo.GetByID(ctx, req.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return o.skip(ctx, req.OrderID, "order not found")
	}
	if err != nil {
		logger.Error("failed to load order for sync", zap.String("order_id", req.OrderID), zap.Error(err))
		return o.requeueOrFail(ctx, req, "order load failed: "+err.Error())
	}
	if order.ShopifyOrderID == "" {
		return o.skip(ctx, order.ID, "no external order reference")
	}

	conn, err := o.connRepo.GetByID(ctx, order.ConnectionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return o.fail(ctx, req, "connection missing")
	}
	if err != nil {
		logger.Error("failed to load connection", zap.String("order_id", req.OrderID), zap.Error(err))
		return o.requeueOrFail(ctx, req, "connection load failed: "+err.Error())
	}
	if !conn.Active {
		// Inactive connections are a hard skip, never an error.
		return o.skip(ctx, order.ID, "connection inactive")
	}

	tracking := order.TrackingNumber
	if tracking == "" {
		tracking = shopify.FallbackTrackingNumber(order.ID)
	}

	result, err := o.client.CreateFulfillment(ctx,
		shopify.Credentials{ShopDomain: conn.ShopDomain, AccessToken: conn.AccessToken},
		shopify.FulfillmentParams{
			OrderRef:        order.ShopifyOrderID,
			TrackingNumber:  tracking,
			TrackingCompany: order.TrackingCompany,
			NotifyCustomer:  true,
		},
		o.policy)

	var exhausted *shopify.RetriesExhaustedError
	switch {
	case err == nil:
		return o.succeed(ctx, order, conn.ID, result)
	case errors.As(err, &exhausted):
		o.observer.RecordRemoteAttempts(exhausted.Attempts)
		return o.requeueOrFail(ctx, req, exhausted.Error())
	default:
		// Terminal: platform rejection, missing token, malformed reply.
		return o.fail(ctx, req, err.Error())
	}
}

func (o *Orchestrator) succeed(ctx context.Context, order *model.Order, connID string, result *shopify.FulfillmentResult) ItemResult {
	o.observer.RecordRemoteAttempts(result.Attempts)

	if err := o.orderRepo.MarkFulfilled(ctx, order.ID, result.ID, result.FulfilledAt); err != nil {
		logger.Error("failed to persist fulfillment on order", zap.String("order_id", order.ID), zap.Error(err))
	}
	if err := o.connRepo.TouchLastSync(ctx, connID, result.FulfilledAt); err != nil {
		logger.Warn("failed to update connection last sync", zap.String("connection_id", connID), zap.Error(err))
	}
	o.recordOutcome(&model.FulfillmentOutcome{
		OrderID:       order.ID,
		Result:        model.OutcomeSucceeded,
		FulfillmentID: result.ID,
		Attempts:      result.Attempts,
		FulfilledAt:   &result.FulfilledAt,
	})
	if err := o.queueRepo.Complete(ctx, order.ID, model.RequestSucceeded, ""); err != nil {
		logger.Error("failed to mark request succeeded", zap.String("order_id", order.ID), zap.Error(err))
	}

	logger.Info("order fulfillment synced",
		zap.String("order_id", order.ID),
		zap.String("fulfillment_id", result.ID),
		zap.Int("attempts", result.Attempts))
	return ItemResult{OrderID: order.ID, Result: resultSucceeded}
}

func (o *Orchestrator) requeueOrFail(ctx context.Context, req model.FulfillmentRequest, reason string) ItemResult {
	if req.Attempts+1 < MaxDrainCycles {
		if err := o.queueRepo.Complete(ctx, req.OrderID, model.RequestPending, reason); err != nil {
			logger.Error("failed to requeue request", zap.String("order_id", req.OrderID), zap.Error(err))
		}
		logger.Warn("fulfillment sync requeued",
			zap.String("order_id", req.OrderID),
			zap.Int("cycle", req.Attempts+1),
			zap.String("reason", reason))
		return ItemResult{OrderID: req.OrderID, Result: resultRequeued, Reason: reason}
	}
	return o.fail(ctx, req, reason)
}

func (o *Orchestrator) fail(ctx context.Context, req model.FulfillmentRequest, reason string) ItemResult {
	if err := o.queueRepo.Complete(ctx, req.OrderID, model.RequestFailed, reason); err != nil {
		logger.Error("failed to mark request failed", zap.String("order_id", req.OrderID), zap.Error(err))
	}
	if err := o.orderRepo.UpdateSyncStatus(ctx, req.OrderID, model.SyncStatusFailed); err != nil {
		logger.Warn("failed to update order sync status", zap.String("order_id", req.OrderID), zap.Error(err))
	}
	o.recordOutcome(&model.FulfillmentOutcome{
		OrderID:  req.OrderID,
		Result:   model.OutcomeFailed,
		Reason:   reason,
		Attempts: req.Attempts + 1,
	})
	logger.Error("fulfillment sync failed permanently",
		zap.String("order_id", req.OrderID),
		zap.String("reason", reason))
	return ItemResult{OrderID: req.OrderID, Result: resultFailed, Reason: reason}
}

func (o *Orchestrator) skip(ctx context.Context, orderID, reason string) ItemResult {
	if err := o.queueRepo.Complete(ctx, orderID, model.RequestSkipped, reason); err != nil {
		logger.Error("failed to mark request skipped", zap.String("order_id", orderID), zap.Error(err))
	}
	if err := o.orderRepo.UpdateSyncStatus(ctx, orderID, model.SyncStatusSkipped); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Warn("failed to update order sync status", zap.String("order_id", orderID), zap.Error(err))
	}
	logger.Info("fulfillment sync skipped", zap.String("order_id", orderID), zap.String("reason", reason))
	return ItemResult{OrderID: orderID, Result: resultSkipped, Reason: reason}
}

func (o *Orchestrator) recordOutcome(outcome *model.FulfillmentOutcome) {
	outcome.ID = uuid.New().String()
	// Outcome rows are best-effort audit data; a write failure must not
	// change the queue transition that already happened.
	if err := o.outcomeRepo.Create(context.Background(), outcome); err != nil {
		logger.Error("failed to record fulfillment outcome",
			zap.String("order_id", outcome.OrderID), zap.Error(err))
	}
}
