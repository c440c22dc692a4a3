// Package service implements the admission engine: the registration state
// machine, capacity checks, waitlist sequencing, promotion and payment
// reconciliation. Every state change runs inside one database transaction
// that starts by locking the event row.
package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/event-admission/internal/clock"
	"github.com/Shivanand-hulikatti/event-admission/internal/metrics"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// TxRunner scopes a unit of work. Stores called with the ctx handed to fn
// participate in the same transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventStore reads event capacity configuration. Both methods return nil,
// nil for an unknown event.
type EventStore interface {
	GetEvent(ctx context.Context, eventID string) (*model.Event, error)
	// LockEvent reads the event with a row lock held until the transaction
	// ends. All capacity decisions for the event are serialised on it.
	LockEvent(ctx context.Context, eventID string) (*model.Event, error)
}

// RegistrationStore persists registration rows.
type RegistrationStore interface {
	// GetRegistration returns nil, nil when the user has no row. Inside a
	// transaction the row is locked.
	GetRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error)
	SaveRegistration(ctx context.Context, reg *model.Registration) error
	DeleteRegistration(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, eventID string, status model.Status) (int, error)
	MaxWaitlistOrder(ctx context.Context, eventID string) (int, error)
	// NextWaitlisted returns the lowest-ordered WAITLISTED row, or nil.
	NextWaitlisted(ctx context.Context, eventID string) (*model.Registration, error)
	// ListRegistrations returns rows with the given status (all when empty);
	// WAITLISTED rows come back in waitlist order.
	ListRegistrations(ctx context.Context, eventID string, status model.Status) ([]model.Registration, error)
	// RewriteWaitlistOrder assigns positions 1..n to ids in one statement.
	RewriteWaitlistOrder(ctx context.Context, eventID string, ids []string) error
}

// PaymentStore persists payments. Lookups return nil, nil when nothing
// matches.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	GetPaymentByProviderRef(ctx context.Context, ref string) (*model.Payment, error)
	LockPayment(ctx context.Context, id string) (*model.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id string, status model.PaymentStatus) error
	SetPaymentProviderRef(ctx context.Context, id, ref string) error
}

// AttendanceStore reads check-ins.
type AttendanceStore interface {
	ListAttendance(ctx context.Context, eventID string) ([]model.Attendance, error)
}

// AuditLogger records who changed what. It is called inside the
// transaction of the change it describes.
type AuditLogger interface {
	CreateAuditLog(ctx context.Context, entry model.AuditEntry) error
}

// Notifier delivers user notifications. Calls are fire-and-forget.
type Notifier interface {
	SendNotification(ctx context.Context, n model.Notification) error
}

// Stores bundles the persistence dependencies of the engine.
type Stores struct {
	Tx            TxRunner
	Events        EventStore
	Registrations RegistrationStore
	Payments      PaymentStore
	Attendance    AttendanceStore
	Audit         AuditLogger
}

// AdmissionService owns every registration transition.
type AdmissionService struct {
	tx            TxRunner
	events        EventStore
	registrations RegistrationStore
	payments      PaymentStore
	attendance    AttendanceStore
	audit         AuditLogger
	notifier      Notifier
	clock         clock.Clock
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	baseURL       string
}

// Option customises an AdmissionService.
type Option func(*AdmissionService)

// WithClock overrides the system clock.
func WithClock(c clock.Clock) Option {
	return func(s *AdmissionService) { s.clock = c }
}

// WithMetrics records transition counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *AdmissionService) { s.metrics = m }
}

// WithBaseURL sets the public site URL used in notification links.
func WithBaseURL(url string) Option {
	return func(s *AdmissionService) { s.baseURL = url }
}

// NewAdmissionService constructs the engine.
func NewAdmissionService(stores Stores, notifier Notifier, opts ...Option) *AdmissionService {
	s := &AdmissionService{
		tx:            stores.Tx,
		events:        stores.Events,
		registrations: stores.Registrations,
		payments:      stores.Payments,
		attendance:    stores.Attendance,
		audit:         stores.Audit,
		notifier:      notifier,
		clock:         clock.NewSystem(),
		tracer:        otel.Tracer("github.com/Shivanand-hulikatti/event-admission/internal/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
