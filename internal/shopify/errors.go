package shopify

import (
	"errors"
	"fmt"
)

// ErrMissingToken means the request spec carried no access token. This is
// a local precondition failure, checked before any network I/O.
var ErrMissingToken = errors.New("shopify: request spec has no access token")

type Kind string

const (
	// KindNetwork covers transport-level failures (DNS, refused conns).
	KindNetwork Kind = "network"
	// KindTimeout means a single attempt exceeded the policy timeout.
	KindTimeout Kind = "timeout"
	// KindServer covers 5xx and 429 responses.
	KindServer Kind = "server"
	// KindRejected covers every other non-2xx response. Terminal.
	KindRejected Kind = "rejected"
)

// APIError is one classified attempt failure.
type APIError struct {
	Kind   Kind
	Status int
	Body   string
	Err    error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("shopify: %s (status %d): %s", e.Kind, e.Status, e.Body)
	}
	return fmt.Sprintf("shopify: %s: %v", e.Kind, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may give a different answer.
func (e *APIError) Retryable() bool { return e.Kind != KindRejected }

// RetriesExhaustedError is returned when every attempt failed with a
// retryable error. It keeps the last classification so callers can tell
// "never got a clean answer" from "platform explicitly rejected".
type RetriesExhaustedError struct {
	Attempts int
	Last     *APIError
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("shopify: retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }
