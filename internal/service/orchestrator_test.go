package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"shipsync/internal/metrics"
	"shipsync/internal/model"
	"shipsync/internal/repository"
	"shipsync/internal/shopify"
	"shipsync/pkg/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	logger.InitLogger("test")
}

type syncEnv struct {
	db           *gorm.DB
	queueRepo    *repository.QueueRepository
	orderRepo    *repository.OrderRepository
	outcomeRepo  *repository.OutcomeRepository
	orchestrator *Orchestrator
	sync         *SyncService
}

func newSyncEnv(t *testing.T, shopDomain string) *syncEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Order{}, &model.ShopConnection{}, &model.FulfillmentRequest{}, &model.FulfillmentOutcome{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	queueRepo := repository.NewQueueRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	connRepo := repository.NewConnectionRepository(db)
	outcomeRepo := repository.NewOutcomeRepository(db)

	db.Create(&model.ShopConnection{
		ID:          "conn-1",
		ShopDomain:  shopDomain,
		AccessToken: "token-abc",
		Active:      true,
	})

	observer := metrics.NoopObserver{}
	orchestrator := NewOrchestrator(queueRepo, orderRepo, connRepo, outcomeRepo, shopify.NewClient(), observer,
		OrchestratorConfig{
			Workers:   2,
			BatchSize: 10,
			Policy: shopify.Policy{
				MaxRetries:     2,
				InitialDelay:   time.Millisecond,
				AttemptTimeout: time.Second,
			},
		})
	sync := NewSyncService(db, queueRepo, orderRepo, outcomeRepo, orchestrator, observer)

	return &syncEnv{
		db:           db,
		queueRepo:    queueRepo,
		orderRepo:    orderRepo,
		outcomeRepo:  outcomeRepo,
		orchestrator: orchestrator,
		sync:         sync,
	}
}

func (e *syncEnv) createOrder(t *testing.T, id, shopifyOrderID string) {
	t.Helper()
	now := time.Now()
	if err := e.db.Create(&model.Order{
		ID:             id,
		ConnectionID:   "conn-1",
		ShopifyOrderID: shopifyOrderID,
		Status:         model.OrderStatusDelivered,
		DeliveredAt:    &now,
	}).Error; err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
}

func (e *syncEnv) request(t *testing.T, orderID string) *model.FulfillmentRequest {
	t.Helper()
	var req model.FulfillmentRequest
	if err := e.db.Where("order_id = ?", orderID).First(&req).Error; err != nil {
		t.Fatalf("load request failed: %v", err)
	}
	return &req
}

func (e *syncEnv) order(t *testing.T, orderID string) *model.Order {
	t.Helper()
	var order model.Order
	if err := e.db.First(&order, "id = ?", orderID).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}
	return &order
}

func TestProcessBatch_FlakyEndpointSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 777}`))
	}))
	defer srv.Close()

	env := newSyncEnv(t, srv.URL)
	env.createOrder(t, "order-b", "sh-900")
	ctx := context.Background()

	if _, err := env.sync.EnqueueOrderForSync(ctx, "order-b"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	summary, err := env.sync.TriggerDrain(ctx)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("Expected 1 succeeded, got %+v", summary)
	}

	order := env.order(t, "order-b")
	if order.ShopifyFulfillmentID != "777" {
		t.Errorf("Expected fulfillment id persisted, got %q", order.ShopifyFulfillmentID)
	}
	if order.SyncStatus != model.SyncStatusSynced {
		t.Errorf("Expected sync status synced, got %s", order.SyncStatus)
	}
	if order.ShopifyFulfilledAt == nil {
		t.Error("Expected fulfilled timestamp persisted")
	}
	if env.request(t, "order-b").State != model.RequestSucceeded {
		t.Error("Expected queue request succeeded")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected exactly 2 HTTP attempts, got %d", got)
	}

	outcomes, _ := env.outcomeRepo.ListByOrder(ctx, "order-b")
	if len(outcomes) != 1 || outcomes[0].Result != model.OutcomeSucceeded {
		t.Errorf("Expected a single succeeded outcome, got %+v", outcomes)
	}
}

func TestProcessBatch_InactiveConnectionSkipsWithoutHTTP(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	env := newSyncEnv(t, srv.URL)
	env.db.Model(&model.ShopConnection{}).Where("id = ?", "conn-1").Update("active", false)
	env.createOrder(t, "order-a", "sh-100")
	ctx := context.Background()

	env.sync.EnqueueOrderForSync(ctx, "order-a")
	summary, err := env.sync.TriggerDrain(ctx)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	if summary.Skipped != 1 {
		t.Fatalf("Expected 1 skipped, got %+v", summary)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("Expected no HTTP call for an inactive connection")
	}
	if env.request(t, "order-a").State != model.RequestSkipped {
		t.Error("Expected queue request skipped")
	}

	// Skips are no-op terminal states, not failures; no outcome row.
	outcomes, _ := env.outcomeRepo.ListByOrder(ctx, "order-a")
	if len(outcomes) != 0 {
		t.Errorf("Expected no outcome rows for a skip, got %d", len(outcomes))
	}
}

func TestProcessBatch_NoExternalReferenceSkips(t *testing.T) {
	env := newSyncEnv(t, "shop.example.com")
	env.createOrder(t, "order-local", "")
	ctx := context.Background()

	env.sync.EnqueueOrderForSync(ctx, "order-local")
	summary, err := env.sync.TriggerDrain(ctx)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if summary.Skipped != 1 {
		t.Fatalf("Expected 1 skipped, got %+v", summary)
	}
}

func TestProcessBatch_MissingConnectionFails(t *testing.T) {
	env := newSyncEnv(t, "shop.example.com")
	env.createOrder(t, "order-x", "sh-1")
	env.db.Model(&model.Order{}).Where("id = ?", "order-x").Update("connection_id", "conn-gone")
	ctx := context.Background()

	env.sync.EnqueueOrderForSync(ctx, "order-x")
	summary, err := env.sync.TriggerDrain(ctx)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("Expected 1 failed, got %+v", summary)
	}
	if env.request(t, "order-x").State != model.RequestFailed {
		t.Error("Expected queue request failed")
	}

	outcomes, _ := env.outcomeRepo.ListByOrder(ctx, "order-x")
	if len(outcomes) != 1 || outcomes[0].Result != model.OutcomeFailed {
		t.Fatalf("Expected a failed outcome row, got %+v", outcomes)
	}
	if outcomes[0].Reason != "connection missing" {
		t.Errorf("Expected reason 'connection missing', got %q", outcomes[0].Reason)
	}
}

func TestProcessBatch_TerminalRejectionFailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"already fulfilled"}`))
	}))
	defer srv.Close()

	env := newSyncEnv(t, srv.URL)
	env.createOrder(t, "order-r", "sh-2")
	ctx := context.Background()

	env.sync.EnqueueOrderForSync(ctx, "order-r")
	summary, _ := env.sync.TriggerDrain(ctx)

	if summary.Failed != 1 {
		t.Fatalf("Expected 1 failed, got %+v", summary)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected a single attempt for a terminal rejection, got %d", got)
	}
	if env.order(t, "order-r").SyncStatus != model.SyncStatusFailed {
		t.Error("Expected order sync status failed")
	}
}

func TestProcessBatch_ExhaustedRetriesRequeue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	env := newSyncEnv(t, srv.URL)
	env.createOrder(t, "order-q", "sh-3")
	ctx := context.Background()

	env.sync.EnqueueOrderForSync(ctx, "order-q")
	summary, _ := env.sync.TriggerDrain(ctx)

	if summary.Requeued != 1 {
		t.Fatalf("Expected 1 requeued, got %+v", summary)
	}
	req := env.request(t, "order-q")
	if req.State != model.RequestPending {
		t.Errorf("Expected request back to pending, got %s", req.State)
	}
	if req.Attempts != 1 {
		t.Errorf("Expected attempts 1 after one cycle, got %d", req.Attempts)
	}

	// Retryable intermediate failures never produce an outcome row.
	outcomes, _ := env.outcomeRepo.ListByOrder(ctx, "order-q")
	if len(outcomes) != 0 {
		t.Errorf("Expected no outcome rows while retryable, got %d", len(outcomes))
	}
}

func TestProcessBatch_CycleCeilingParksAsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	env := newSyncEnv(t, srv.URL)
	env.createOrder(t, "order-c", "sh-4")
	ctx := context.Background()

	env.sync.EnqueueOrderForSync(ctx, "order-c")
	env.db.Model(&model.FulfillmentRequest{}).
		Where("order_id = ?", "order-c").
		Update("attempts", MaxDrainCycles-1)

	summary, _ := env.sync.TriggerDrain(ctx)

	if summary.Failed != 1 {
		t.Fatalf("Expected 1 failed at the cycle ceiling, got %+v", summary)
	}
	if env.request(t, "order-c").State != model.RequestFailed {
		t.Error("Expected request parked as failed")
	}
}

func TestEnqueueOrderForSync_UnknownOrder(t *testing.T) {
	env := newSyncEnv(t, "shop.example.com")

	_, err := env.sync.EnqueueOrderForSync(context.Background(), "nope")
	if err != ErrOrderNotFound {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestQueueStatus_ReportsCounts(t *testing.T) {
	env := newSyncEnv(t, "shop.example.com")
	env.createOrder(t, "order-s", "sh-5")
	ctx := context.Background()

	env.sync.EnqueueOrderForSync(ctx, "order-s")

	status, err := env.sync.QueueStatus(ctx)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Counts[model.RequestPending] != 1 {
		t.Errorf("Expected 1 pending, got %d", status.Counts[model.RequestPending])
	}
}
