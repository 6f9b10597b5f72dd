package repository

import (
	"context"
	"time"

	"shipsync/internal/model"

	"gorm.io/gorm"
)

type OrderInterface interface {
	GetByID(ctx context.Context, id string) (*model.Order, error)
	// MarkFulfilled persists the platform confirmation on the order.
	MarkFulfilled(ctx context.Context, id, fulfillmentID string, at time.Time) error
	UpdateSyncStatus(ctx context.Context, id, status string) error
	// FindDeliverable lists delivered orders with an external reference
	// that have not been fulfilled upstream yet. Used by the sweep.
	FindDeliverable(ctx context.Context, limit int) ([]model.Order, error)
	WithTx(tx *gorm.DB) OrderInterface
}

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) MarkFulfilled(ctx context.Context, id, fulfillmentID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"shopify_fulfillment_id": fulfillmentID,
			"shopify_fulfilled_at":   at,
			"sync_status":            model.SyncStatusSynced,
		}).Error
}

func (r *OrderRepository) UpdateSyncStatus(ctx context.Context, id, status string) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", id).
		Update("sync_status", status).Error
}

func (r *OrderRepository) FindDeliverable(ctx context.Context, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND shopify_order_id <> '' AND shopify_fulfillment_id = ''",
			model.OrderStatusDelivered).
		Order("delivered_at ASC").Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) WithTx(tx *gorm.DB) OrderInterface {
	return &OrderRepository{db: tx}
}
