package model

import "time"

// PaymentStatus only moves forward: pending → succeeded → refunded.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentRefunded  PaymentStatus = "refunded"
)

// PaymentMetadata is the snapshot of event details taken at checkout time.
type PaymentMetadata struct {
	EventID    string `json:"eventId"`
	EventSlug  string `json:"eventSlug"`
	EventTitle string `json:"eventTitle"`
}

// Payment is a registration fee collected through the external processor.
type Payment struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	EventID     string          `json:"event_id"`
	AmountCents int64           `json:"amount_cents"`
	Status      PaymentStatus   `json:"status"`
	ProviderRef *string         `json:"provider_ref,omitempty"`
	Metadata    PaymentMetadata `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CanTransition reports whether moving from s to next is a forward step.
// A refund may land before its confirmation, so pending → refunded is allowed.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentSucceeded || next == PaymentRefunded
	case PaymentSucceeded:
		return next == PaymentRefunded
	}
	return false
}

// PaymentEventType is the kind of a verified provider callback.
type PaymentEventType string

const (
	PaymentEventCompleted PaymentEventType = "checkout.completed"
	PaymentEventRefunded  PaymentEventType = "charge.refunded"
)

// PaymentEvent is a provider callback that passed signature verification.
// Reference is the provider's session identifier; ClientReference is the
// local payment ID echoed back by the provider.
type PaymentEvent struct {
	ID              string           `json:"id"`
	Type            PaymentEventType `json:"type"`
	Reference       string           `json:"reference"`
	ClientReference string           `json:"client_reference"`
	AmountCents     int64            `json:"amount"`
	Metadata        PaymentMetadata  `json:"metadata"`
}

// CheckoutSessionRequest asks the provider for a hosted checkout page.
type CheckoutSessionRequest struct {
	PaymentID   string
	AmountCents int64
	Description string
	CustomerRef string
	SuccessURL  string
	CancelURL   string
	Metadata    PaymentMetadata
}

// CheckoutSession is the provider's answer to a CheckoutSessionRequest.
type CheckoutSession struct {
	Reference   string
	RedirectURL string
}
