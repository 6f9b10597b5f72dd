package model

import "time"

// Order sync status values persisted on the order row.
const (
	SyncStatusNone    = "none"
	SyncStatusQueued  = "queued"
	SyncStatusSynced  = "synced"
	SyncStatusFailed  = "failed"
	SyncStatusSkipped = "skipped"
)

type Order struct {
	ID                   string     `json:"id" gorm:"primaryKey;size:36"`
	ConnectionID         string     `json:"connection_id" gorm:"size:36;index"`
	ShopifyOrderID       string     `json:"shopify_order_id" gorm:"size:64;index"`
	Status               string     `json:"status" gorm:"size:32;index"`
	CustomerName         string     `json:"customer_name" gorm:"size:128"`
	TrackingNumber       string     `json:"tracking_number" gorm:"size:64"`
	TrackingCompany      string     `json:"tracking_company" gorm:"size:64"`
	ShopifyFulfillmentID string     `json:"shopify_fulfillment_id" gorm:"size:64"`
	ShopifyFulfilledAt   *time.Time `json:"shopify_fulfilled_at"`
	SyncStatus           string     `json:"sync_status" gorm:"size:16;default:none;index"`
	DeliveredAt          *time.Time `json:"delivered_at"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Delivery statuses an order moves through locally.
const (
	OrderStatusAssigned  = "assigned"
	OrderStatusInTransit = "in_transit"
	OrderStatusDelivered = "delivered"
)
