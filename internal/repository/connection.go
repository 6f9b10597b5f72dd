package repository

import (
	"context"
	"time"

	"shipsync/internal/model"

	"gorm.io/gorm"
)

// ConnectionInterface exposes read access to shop credentials. The sync
// core never mutates credentials; LastSyncAt is the only tracked field.
type ConnectionInterface interface {
	GetByID(ctx context.Context, id string) (*model.ShopConnection, error)
	TouchLastSync(ctx context.Context, id string, at time.Time) error
	WithTx(tx *gorm.DB) ConnectionInterface
}

type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*model.ShopConnection, error) {
	var conn model.ShopConnection
	if err := r.db.WithContext(ctx).First(&conn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *ConnectionRepository) TouchLastSync(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.ShopConnection{}).
		Where("id = ?", id).
		Update("last_sync_at", at).Error
}

func (r *ConnectionRepository) WithTx(tx *gorm.DB) ConnectionInterface {
	return &ConnectionRepository{db: tx}
}
