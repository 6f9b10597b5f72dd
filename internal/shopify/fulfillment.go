package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Credentials is the read-only snapshot of a shop connection the client
// needs for one call.
type Credentials struct {
	ShopDomain  string
	AccessToken string
}

type FulfillmentParams struct {
	OrderRef        string
	TrackingNumber  string
	TrackingCompany string
	NotifyCustomer  bool
}

type FulfillmentResult struct {
	ID          string
	Attempts    int
	FulfilledAt time.Time
}

type fulfillmentPayload struct {
	TrackingNumber  string `json:"trackingNumber"`
	TrackingCompany string `json:"trackingCompany"`
	NotifyCustomer  bool   `json:"notifyCustomer"`
}

type fulfillmentResponse struct {
	ID json.RawMessage `json:"id"`
}

// fulfillmentID normalizes the id field, which some shops return as a
// number and others as a string.
func (r fulfillmentResponse) fulfillmentID() string {
	if len(r.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.ID, &s); err == nil {
		return s
	}
	return string(r.ID)
}

// FallbackTrackingNumber derives a stable tracking number from the local
// order id. Retried calls for the same order must reuse the same number
// so the platform never records duplicate shipments.
func FallbackTrackingNumber(orderID string) string {
	return "DLV-" + orderID
}

// CreateFulfillment posts the fulfillment for one order and returns the
// platform's confirmation id.
func (c *Client) CreateFulfillment(ctx context.Context, creds Credentials, params FulfillmentParams, policy Policy) (*FulfillmentResult, error) {
	body, err := json.Marshal(fulfillmentPayload{
		TrackingNumber:  params.TrackingNumber,
		TrackingCompany: params.TrackingCompany,
		NotifyCustomer:  params.NotifyCustomer,
	})
	if err != nil {
		return nil, err
	}

	base := creds.ShopDomain
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	spec := RequestSpec{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/admin/orders/%s/fulfillments.json", base, params.OrderRef),
		Body:   body,
		Headers: map[string]string{
			HeaderAccessToken: creds.AccessToken,
			"Content-Type":    "application/json",
		},
	}

	resp, err := c.Execute(ctx, spec, policy)
	if err != nil {
		return nil, err
	}

	var parsed fulfillmentResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("shopify: malformed fulfillment response: %w", err)
	}
	id := parsed.fulfillmentID()
	if id == "" {
		return nil, fmt.Errorf("shopify: fulfillment response missing id")
	}

	return &FulfillmentResult{
		ID:          id,
		Attempts:    resp.Attempts,
		FulfilledAt: time.Now(),
	}, nil
}
