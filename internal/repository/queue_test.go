package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"shipsync/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Named shared-cache DB so every pooled connection sees the same data.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.FulfillmentRequest{}, &model.Order{}, &model.ShopConnection{}, &model.FulfillmentOutcome{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func requestCount(t *testing.T, db *gorm.DB, orderID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&model.FulfillmentRequest{}).Where("order_id = ?", orderID).Count(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

func getRequest(t *testing.T, db *gorm.DB, orderID string) *model.FulfillmentRequest {
	t.Helper()
	var req model.FulfillmentRequest
	if err := db.Where("order_id = ?", orderID).First(&req).Error; err != nil {
		t.Fatalf("load request failed: %v", err)
	}
	return &req
}

func TestEnqueue_IdempotentWhilePending(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	queued, err := repo.Enqueue(ctx, "order-1")
	if err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if !queued {
		t.Error("Expected first enqueue to queue")
	}

	queued, err = repo.Enqueue(ctx, "order-1")
	if err != nil {
		t.Fatalf("second enqueue failed: %v", err)
	}
	if queued {
		t.Error("Expected second enqueue to be a no-op")
	}

	if n := requestCount(t, db, "order-1"); n != 1 {
		t.Errorf("Expected exactly 1 row, got %d", n)
	}
}

func TestEnqueue_NoOpWhileInFlight(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	repo.Enqueue(ctx, "order-1")
	if _, err := repo.Drain(ctx, 10); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	queued, err := repo.Enqueue(ctx, "order-1")
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if queued {
		t.Error("Expected enqueue during in-flight to be a no-op")
	}
	if got := getRequest(t, db, "order-1").State; got != model.RequestInFlight {
		t.Errorf("Expected state in_flight, got %s", got)
	}
}

func TestEnqueue_RestartsTerminalRequest(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	repo.Enqueue(ctx, "order-1")
	repo.Drain(ctx, 10)
	if err := repo.Complete(ctx, "order-1", model.RequestSucceeded, ""); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	queued, err := repo.Enqueue(ctx, "order-1")
	if err != nil {
		t.Fatalf("re-enqueue failed: %v", err)
	}
	if !queued {
		t.Error("Expected re-enqueue after success to start a new cycle")
	}

	req := getRequest(t, db, "order-1")
	if req.State != model.RequestPending {
		t.Errorf("Expected state pending, got %s", req.State)
	}
	if req.Attempts != 0 {
		t.Errorf("Expected attempts reset to 0, got %d", req.Attempts)
	}
	if n := requestCount(t, db, "order-1"); n != 1 {
		t.Errorf("Expected single row after restart, got %d", n)
	}
}

func TestDrain_OldestFirst(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	repo.Enqueue(ctx, "order-new")
	repo.Enqueue(ctx, "order-old")
	db.Model(&model.FulfillmentRequest{}).
		Where("order_id = ?", "order-old").
		Update("enqueued_at", time.Now().Add(-time.Hour))

	items, err := repo.Drain(ctx, 1)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if len(items) != 1 || items[0].OrderID != "order-old" {
		t.Fatalf("Expected oldest request first, got %+v", items)
	}
	if items[0].State != model.RequestInFlight {
		t.Errorf("Expected claimed request in_flight, got %s", items[0].State)
	}
}

func TestDrain_NeverHandsOutTwice(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	repo.Enqueue(ctx, "order-1")
	repo.Enqueue(ctx, "order-2")

	first, err := repo.Drain(ctx, 10)
	if err != nil {
		t.Fatalf("first drain failed: %v", err)
	}
	second, err := repo.Drain(ctx, 10)
	if err != nil {
		t.Fatalf("second drain failed: %v", err)
	}

	if len(first) != 2 {
		t.Errorf("Expected first drain to claim 2, got %d", len(first))
	}
	if len(second) != 0 {
		t.Errorf("Expected second drain to claim 0, got %d", len(second))
	}
}

func TestComplete_RequeueIncrementsAttempts(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	repo.Enqueue(ctx, "order-1")
	repo.Drain(ctx, 10)

	if err := repo.Complete(ctx, "order-1", model.RequestPending, "upstream flaky"); err != nil {
		t.Fatalf("requeue failed: %v", err)
	}

	req := getRequest(t, db, "order-1")
	if req.State != model.RequestPending {
		t.Errorf("Expected state pending, got %s", req.State)
	}
	if req.Attempts != 1 {
		t.Errorf("Expected attempts 1, got %d", req.Attempts)
	}

	// The requeued request is eligible for the next drain.
	items, _ := repo.Drain(ctx, 10)
	if len(items) != 1 {
		t.Errorf("Expected requeued request to drain again, got %d", len(items))
	}
}

func TestComplete_TerminalReplayIsNoop(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	repo.Enqueue(ctx, "order-1")
	repo.Drain(ctx, 10)

	if err := repo.Complete(ctx, "order-1", model.RequestSucceeded, ""); err != nil {
		t.Fatalf("first complete failed: %v", err)
	}
	if err := repo.Complete(ctx, "order-1", model.RequestSucceeded, ""); err != nil {
		t.Fatalf("replayed complete must not error, got: %v", err)
	}
	if got := getRequest(t, db, "order-1").State; got != model.RequestSucceeded {
		t.Errorf("Expected state succeeded, got %s", got)
	}
}

func TestComplete_ConflictingTransitionErrors(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	repo.Enqueue(ctx, "order-1")
	repo.Drain(ctx, 10)
	repo.Complete(ctx, "order-1", model.RequestSucceeded, "")

	if err := repo.Complete(ctx, "order-1", model.RequestFailed, "late failure"); err == nil {
		t.Error("Expected conflicting completion to error")
	}
}

func TestStatus_CountsAndOldestAge(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	repo.Enqueue(ctx, "order-1")
	repo.Enqueue(ctx, "order-2")
	db.Model(&model.FulfillmentRequest{}).
		Where("order_id = ?", "order-1").
		Update("enqueued_at", time.Now().Add(-2*time.Hour))

	repo.Enqueue(ctx, "order-3")
	items, _ := repo.Drain(ctx, 10)
	for _, it := range items {
		if it.OrderID == "order-3" {
			repo.Complete(ctx, "order-3", model.RequestFailed, "rejected")
		} else {
			repo.Complete(ctx, it.OrderID, model.RequestPending, "retry")
		}
	}

	status, err := repo.Status(ctx)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Counts[model.RequestPending] != 2 {
		t.Errorf("Expected 2 pending, got %d", status.Counts[model.RequestPending])
	}
	if status.Counts[model.RequestFailed] != 1 {
		t.Errorf("Expected 1 failed, got %d", status.Counts[model.RequestFailed])
	}
	if status.OldestPendingAge < time.Hour {
		t.Errorf("Expected oldest pending age >= 1h, got %v", status.OldestPendingAge)
	}
}
