package model

// Notification types emitted by admission.
const (
	NotifyRegistered       = "event_registration_confirmed"
	NotifyPromoted         = "event_waitlist_promoted"
	NotifyPaymentConfirmed = "event_payment_confirmed"
)

// Notification channels understood by the notification service.
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
)

// Notification mirrors the notification service's sendNotification arguments.
type Notification struct {
	UserID    string   `json:"userId"`
	Type      string   `json:"type"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	ActionURL string   `json:"actionUrl"`
	Channels  []string `json:"channels"`
}

// Audit action and entity types.
const (
	AuditRegistrationChanged = "registration.status_changed"
	AuditRegistrationRemoved = "registration.removed"
	AuditWaitlistReordered   = "waitlist.reordered"
	AuditPaymentSucceeded    = "payment.succeeded"
	AuditPaymentRefunded     = "payment.refunded"

	EntityRegistration = "registration"
	EntityEvent        = "event"
	EntityPayment      = "payment"
)

// AuditEntry mirrors the audit service's createAuditLog arguments.
// Before and After are JSON-encoded by the writer.
type AuditEntry struct {
	Actor      Actor  `json:"actor"`
	ActionType string `json:"action_type"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Summary    string `json:"summary"`
	Before     any    `json:"before,omitempty"`
	After      any    `json:"after,omitempty"`
}
