// Package model defines the core domain types for event admission: events,
// registrations, payments, attendance and the error taxonomy shared by every
// layer.
package model

import "time"

// Window states reported in admission snapshots.
const (
	WindowOpen     = "open"
	WindowFull     = "full"
	WindowWaitlist = "waitlist"
	WindowClosed   = "closed"
	WindowNotOpen  = "not_open"
	WindowDisabled = "disabled"
)

// Event is the capacity-relevant subset of an event. Rows are owned by the
// event metadata service; admission only ever reads them.
type Event struct {
	ID                   string     `json:"id"`
	Slug                 string     `json:"slug"`
	Title                string     `json:"title"`
	RegistrationEnabled  bool       `json:"registration_enabled"`
	RegistrationMax      *int       `json:"registration_max,omitempty"`
	WaitlistEnabled      bool       `json:"waitlist_enabled"`
	RegistrationFeeCents *int64     `json:"registration_fee_cents,omitempty"`
	RegistrationOpensAt  *time.Time `json:"registration_opens_at,omitempty"`
	RegistrationClosesAt *time.Time `json:"registration_closes_at,omitempty"`
}

// IsPaid reports whether registering requires a succeeded payment.
func (e *Event) IsPaid() bool {
	return e.RegistrationFeeCents != nil && *e.RegistrationFeeCents > 0
}

// Fee returns the registration fee in cents, zero for free events.
func (e *Event) Fee() int64 {
	if e.RegistrationFeeCents == nil {
		return 0
	}
	return *e.RegistrationFeeCents
}

// Unlimited reports whether the event has no registration cap.
func (e *Event) Unlimited() bool {
	return e.RegistrationMax == nil
}

// HasRoom reports whether one more REGISTERED row fits given the current
// confirmed count.
func (e *Event) HasRoom(confirmed int) bool {
	return e.RegistrationMax == nil || confirmed < *e.RegistrationMax
}

// InWindow reports whether now falls inside the registration window.
// Missing bounds are treated as open-ended.
func (e *Event) InWindow(now time.Time) bool {
	if e.RegistrationOpensAt != nil && now.Before(*e.RegistrationOpensAt) {
		return false
	}
	if e.RegistrationClosesAt != nil && !now.Before(*e.RegistrationClosesAt) {
		return false
	}
	return true
}

// WindowState summarises whether a new registrant could be admitted now.
func (e *Event) WindowState(now time.Time, confirmed int) string {
	switch {
	case !e.RegistrationEnabled:
		return WindowDisabled
	case e.RegistrationOpensAt != nil && now.Before(*e.RegistrationOpensAt):
		return WindowNotOpen
	case !e.InWindow(now):
		return WindowClosed
	case e.HasRoom(confirmed):
		return WindowOpen
	case e.WaitlistEnabled:
		return WindowWaitlist
	default:
		return WindowFull
	}
}
