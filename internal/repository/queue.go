package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shipsync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueueStatus is a point-in-time snapshot for observability endpoints.
type QueueStatus struct {
	Counts           map[string]int64 `json:"counts"`
	OldestPendingAge time.Duration    `json:"oldest_pending_age"`
}

type QueueInterface interface {
	// Enqueue inserts a pending request for the order, or restarts a
	// terminal one. Returns false when a pending/in-flight request
	// already exists and nothing was changed.
	Enqueue(ctx context.Context, orderID string) (bool, error)
	// Drain claims up to limit pending requests, oldest first, flipping
	// each to in_flight. A request claimed by a concurrent drain is
	// never returned twice.
	Drain(ctx context.Context, limit int) ([]model.FulfillmentRequest, error)
	// Complete transitions an in-flight request to a terminal state, or
	// back to pending with attempts incremented. Replaying a terminal
	// completion is a no-op.
	Complete(ctx context.Context, orderID, state, reason string) error
	Status(ctx context.Context) (*QueueStatus, error)
	WithTx(tx *gorm.DB) QueueInterface
}

type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) Enqueue(ctx context.Context, orderID string) (bool, error) {
	queued := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req model.FulfillmentRequest
		err := tx.Where("order_id = ?", orderID).First(&req).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			req = model.FulfillmentRequest{
				OrderID:    orderID,
				State:      model.RequestPending,
				EnqueuedAt: time.Now(),
			}
			// OnConflict guards against a concurrent enqueue winning the
			// insert race on the order_id unique index.
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&req)
			if res.Error != nil {
				return res.Error
			}
			queued = res.RowsAffected == 1
			return nil
		}
		if err != nil {
			return err
		}

		// Outstanding work: leave the existing request untouched.
		if !model.Terminal(req.State) {
			return nil
		}

		// Terminal row: start a fresh sync cycle in place.
		res := tx.Model(&model.FulfillmentRequest{}).
			Where("order_id = ? AND state = ?", orderID, req.State).
			Updates(map[string]any{
				"state":       model.RequestPending,
				"attempts":    0,
				"reason":      "",
				"enqueued_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		queued = res.RowsAffected == 1
		return nil
	})
	return queued, err
}

func (r *QueueRepository) Drain(ctx context.Context, limit int) ([]model.FulfillmentRequest, error) {
	var candidates []model.FulfillmentRequest
	if err := r.db.WithContext(ctx).
		Where("state = ?", model.RequestPending).
		Order("enqueued_at ASC").Limit(limit).
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	claimed := make([]model.FulfillmentRequest, 0, len(candidates))
	now := time.Now()
	for _, req := range candidates {
		// Conditional flip is the claim: zero rows affected means a
		// concurrent drain got there first.
		res := r.db.WithContext(ctx).Model(&model.FulfillmentRequest{}).
			Where("id = ? AND state = ?", req.ID, model.RequestPending).
			Updates(map[string]any{
				"state":           model.RequestInFlight,
				"last_attempt_at": now,
			})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		req.State = model.RequestInFlight
		req.LastAttemptAt = &now
		claimed = append(claimed, req)
	}
	return claimed, nil
}

func (r *QueueRepository) Complete(ctx context.Context, orderID, state, reason string) error {
	updates := map[string]any{
		"state":  state,
		"reason": reason,
	}
	if state == model.RequestPending {
		updates["attempts"] = gorm.Expr("attempts + 1")
	}

	res := r.db.WithContext(ctx).Model(&model.FulfillmentRequest{}).
		Where("order_id = ? AND state = ?", orderID, model.RequestInFlight).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// Nothing in flight. A replayed terminal completion is fine; anything
	// else is a broken transition.
	var req model.FulfillmentRequest
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if req.State == state {
		return nil
	}
	return fmt.Errorf("queue: cannot complete order %s as %s, request is %s", orderID, state, req.State)
}

func (r *QueueRepository) Status(ctx context.Context) (*QueueStatus, error) {
	type row struct {
		State string
		N     int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&model.FulfillmentRequest{}).
		Select("state, count(*) as n").Group("state").Scan(&rows).Error; err != nil {
		return nil, err
	}

	status := &QueueStatus{Counts: make(map[string]int64)}
	for _, rw := range rows {
		status.Counts[rw.State] = rw.N
	}

	var oldest model.FulfillmentRequest
	err := r.db.WithContext(ctx).
		Where("state = ?", model.RequestPending).
		Order("enqueued_at ASC").First(&oldest).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		status.OldestPendingAge = time.Since(oldest.EnqueuedAt)
	}
	return status, nil
}

func (r *QueueRepository) WithTx(tx *gorm.DB) QueueInterface {
	return &QueueRepository{db: tx}
}
