package model

import "time"

// RegisterRequest is the payload for responding to an event.
type RegisterRequest struct {
	Intent Intent `json:"intent"`
}

// OverrideRequest is the payload for an officer forcing a status.
type OverrideRequest struct {
	Status Status `json:"status"`
	Reason string `json:"reason"`
}

// ReorderRequest lists waitlisted registration IDs in their new order.
type ReorderRequest struct {
	RegistrationIDs []string `json:"registration_ids"`
}

// CheckoutResponse carries the external redirect target.
type CheckoutResponse struct {
	PaymentID   string `json:"payment_id"`
	RedirectURL string `json:"redirect_url"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Attendee is one REGISTERED user in a snapshot.
type Attendee struct {
	UserID          string          `json:"user_id"`
	RegistrationID  string          `json:"registration_id"`
	PromotionSource PromotionSource `json:"promotion_source"`
	CheckedIn       bool            `json:"checked_in"`
	RegisteredAt    time.Time       `json:"registered_at"`
}

// WaitlistEntry is one WAITLISTED user, in promotion order.
type WaitlistEntry struct {
	RegistrationID string `json:"registration_id"`
	UserID         string `json:"user_id"`
	Position       int    `json:"position"`
	WaitlistOrder  int    `json:"waitlist_order"`
}

// Snapshot is the admission state of an event as seen by one caller.
type Snapshot struct {
	EventID            string          `json:"event_id"`
	Status             string          `json:"status"`
	RegisteredCount    int             `json:"registered_count"`
	Capacity           *int            `json:"capacity"`
	WaitlistCount      int             `json:"waitlist_count"`
	FeeCents           int64           `json:"fee_cents"`
	MyStatus           Status          `json:"my_status,omitempty"`
	MyWaitlistPosition *int            `json:"my_waitlist_position,omitempty"`
	Attendees          []Attendee      `json:"attendees"`
	Waitlist           []WaitlistEntry `json:"waitlist,omitempty"`
}

// AdmissionResult is returned by every state-changing admission call.
type AdmissionResult struct {
	Registration *Registration `json:"registration,omitempty"`
	Status       Status        `json:"status"`
	Changed      bool          `json:"changed"`
	Promoted     []string      `json:"promoted,omitempty"`
}
