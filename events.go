package x402

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event.
type PaymentEventType string

const (
	// PaymentEventAttempt indicates a payment is being attempted.
	PaymentEventAttempt PaymentEventType = "attempt"

	// PaymentEventSuccess indicates a payment succeeded.
	PaymentEventSuccess PaymentEventType = "success"

	// PaymentEventFailure indicates a payment failed.
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent represents a payment lifecycle event.
// All events of one payment attempt share the same AttemptID.
type PaymentEvent struct {
	// Type is the event type (attempt, success, failure).
	Type PaymentEventType

	// AttemptID correlates the events of a single payment attempt.
	AttemptID string

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Method is the transport method ("HTTP").
	Method string

	// URL is the HTTP URL being accessed.
	URL string

	// Amount is the payment amount in atomic units.
	Amount string

	// Asset is the mint address, or empty for SOL.
	Asset string

	// Network is the network of the selected requirement.
	Network string

	// Scheme is the payment scheme (e.g., "exact").
	Scheme string

	// Recipient is the payment recipient address.
	Recipient string

	// Payer is the address that made the payment (available on success).
	Payer string

	// Transaction is the on-chain transaction signature (available on success).
	Transaction string

	// Error contains error details (available on failure).
	Error error

	// Duration is the time taken for the payment operation.
	Duration time.Duration

	// Metadata contains additional context-specific information.
	Metadata map[string]interface{}
}

// NewAttemptID returns a fresh correlation id for a payment attempt.
func NewAttemptID() string {
	return uuid.NewString()
}

// NewPaymentEvent returns an event of the given type describing requirement.
// A nil requirement leaves the payment fields empty.
func NewPaymentEvent(typ PaymentEventType, attemptID, url string, requirement *PaymentRequirements) PaymentEvent {
	event := PaymentEvent{
		Type:      typ,
		AttemptID: attemptID,
		Timestamp: time.Now(),
		Method:    "HTTP",
		URL:       url,
	}
	if requirement != nil {
		event.Amount = requirement.MaxAmountRequired
		event.Asset = requirement.Asset
		event.Network = requirement.Network
		event.Scheme = requirement.Scheme
		event.Recipient = requirement.PayTo
	}
	return event
}

// PaymentCallback is a function that handles payment events.
// Callbacks are invoked synchronously during payment processing, so they
// should be fast to avoid blocking the payment flow.
type PaymentCallback func(PaymentEvent)
