package model

import "time"

// FulfillmentRequest is one unit of queued sync work. At most one row
// exists per order id; re-enqueueing while a row is pending or in flight
// is a no-op.
type FulfillmentRequest struct {
	ID            uint64    `json:"id" gorm:"primaryKey"`
	OrderID       string    `json:"order_id" gorm:"size:36;uniqueIndex"`
	State         string    `json:"state" gorm:"size:16;index"`
	Attempts      int       `json:"attempts" gorm:"default:0"`
	Reason        string    `json:"reason" gorm:"size:255"`
	EnqueuedAt    time.Time `json:"enqueued_at" gorm:"index"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	RequestPending   = "pending"
	RequestInFlight  = "in_flight"
	RequestSucceeded = "succeeded"
	RequestFailed    = "failed"
	RequestSkipped   = "skipped"
)

// Terminal reports whether a state ends the current sync cycle.
func Terminal(state string) bool {
	return state == RequestSucceeded || state == RequestFailed || state == RequestSkipped
}
