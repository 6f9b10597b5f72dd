package resp

import (
	"time"

	"shipsync/internal/service"
)

type EnqueueResponse struct {
	OrderID string `json:"order_id"`
	Queued  bool   `json:"queued"`
}

type SyncResponse struct {
	OrderID string                `json:"order_id"`
	Queued  bool                  `json:"queued"`
	Summary *service.BatchSummary `json:"summary"`
}

type QueueStatusResponse struct {
	Counts               map[string]int64 `json:"counts"`
	OldestPendingSeconds float64          `json:"oldest_pending_seconds"`
}

type OutcomeItem struct {
	ID            string     `json:"id"`
	Result        string     `json:"result"`
	FulfillmentID string     `json:"fulfillment_id,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Attempts      int        `json:"attempts"`
	FulfilledAt   *time.Time `json:"fulfilled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
