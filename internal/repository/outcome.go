package repository

import (
	"context"

	"shipsync/internal/model"

	"gorm.io/gorm"
)

type OutcomeInterface interface {
	Create(ctx context.Context, outcome *model.FulfillmentOutcome) error
	ListByOrder(ctx context.Context, orderID string) ([]model.FulfillmentOutcome, error)
	WithTx(tx *gorm.DB) OutcomeInterface
}

type OutcomeRepository struct {
	db *gorm.DB
}

func NewOutcomeRepository(db *gorm.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

func (r *OutcomeRepository) Create(ctx context.Context, outcome *model.FulfillmentOutcome) error {
	return r.db.WithContext(ctx).Create(outcome).Error
}

func (r *OutcomeRepository) ListByOrder(ctx context.Context, orderID string) ([]model.FulfillmentOutcome, error) {
	var outcomes []model.FulfillmentOutcome
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&outcomes).Error
	return outcomes, err
}

func (r *OutcomeRepository) WithTx(tx *gorm.DB) OutcomeInterface {
	return &OutcomeRepository{db: tx}
}
