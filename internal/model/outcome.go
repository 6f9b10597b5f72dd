package model

import "time"

// FulfillmentOutcome records the terminal result of one sync cycle.
// Written only by the orchestrator; retryable intermediate failures never
// produce a row.
type FulfillmentOutcome struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	OrderID       string    `json:"order_id" gorm:"size:36;index"`
	Result        string    `json:"result" gorm:"size:16;index"`
	FulfillmentID string    `json:"fulfillment_id" gorm:"size:64"`
	Reason        string    `json:"reason" gorm:"type:text"`
	Attempts      int       `json:"attempts"`
	FulfilledAt   *time.Time `json:"fulfilled_at"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
}

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)
