package model

import "time"

// Status is the admission state of a user for one event.
type Status string

const (
	StatusNone         Status = ""
	StatusRegistered   Status = "REGISTERED"
	StatusWaitlisted   Status = "WAITLISTED"
	StatusNotAttending Status = "NOT_ATTENDING"
)

// Valid reports whether s is a persistable status.
func (s Status) Valid() bool {
	switch s {
	case StatusRegistered, StatusWaitlisted, StatusNotAttending:
		return true
	}
	return false
}

// PromotionSource records how a REGISTERED status was reached.
type PromotionSource string

const (
	PromotionNone  PromotionSource = "NONE"
	PromotionAuto  PromotionSource = "AUTO"
	PromotionAdmin PromotionSource = "ADMIN"
)

// Intent is what a user asks for when responding to an event.
type Intent string

const (
	IntentYes Intent = "YES"
	IntentNo  Intent = "NO"
)

// Registration is the single row per (event, user).
// WaitlistOrder is set iff Status is WAITLISTED.
type Registration struct {
	ID              string          `json:"id"`
	EventID         string          `json:"event_id"`
	UserID          string          `json:"user_id"`
	Status          Status          `json:"status"`
	WaitlistOrder   *int            `json:"waitlist_order,omitempty"`
	PromotionSource PromotionSource `json:"promotion_source"`
	SourcePaymentID *string         `json:"source_payment_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// StatusOf returns the status of r, treating a missing row as NONE.
func StatusOf(r *Registration) Status {
	if r == nil {
		return StatusNone
	}
	return r.Status
}
