package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/event-admission/internal/database"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// PaymentRepository handles persistence for payments.
type PaymentRepository struct {
	db *database.DB
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, user_id, event_id, amount_cents, status, provider_ref, metadata, created_at, updated_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(&p.ID, &p.UserID, &p.EventID, &p.AmountCents, &p.Status, &p.ProviderRef,
		&p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) getOne(ctx context.Context, op, sql string, args ...any) (*model.Payment, error) {
	p, err := scanPayment(r.db.Conn(ctx).QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, translate(op, err)
	}
	return p, nil
}

// CreatePayment inserts a new payment. Metadata is stored as JSONB.
func (r *PaymentRepository) CreatePayment(ctx context.Context, p *model.Payment) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.UserID, p.EventID, p.AmountCents, p.Status, p.ProviderRef, p.Metadata, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return translate("insert payment", err)
	}
	return nil
}

// GetPayment returns a payment by ID, or nil.
func (r *PaymentRepository) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	return r.getOne(ctx, "get payment", `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

// GetPaymentByProviderRef returns the payment for a processor session, or nil.
func (r *PaymentRepository) GetPaymentByProviderRef(ctx context.Context, ref string) (*model.Payment, error) {
	return r.getOne(ctx, "get payment by provider ref",
		`SELECT `+paymentColumns+` FROM payments WHERE provider_ref = $1`, ref)
}

// LockPayment reads a payment with a row lock. Callers that also touch the
// event must lock the event first.
func (r *PaymentRepository) LockPayment(ctx context.Context, id string) (*model.Payment, error) {
	if database.TxFromContext(ctx) == nil {
		return nil, errors.New("lock payment: no transaction in context")
	}
	return r.getOne(ctx, "lock payment",
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

// UpdatePaymentStatus sets the status column.
func (r *PaymentRepository) UpdatePaymentStatus(ctx context.Context, id string, status model.PaymentStatus) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return translate("update payment status", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFoundf("payment %s not found", id)
	}
	return nil
}

// SetPaymentProviderRef records the processor's session reference.
func (r *PaymentRepository) SetPaymentProviderRef(ctx context.Context, id, ref string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE payments SET provider_ref = $2, updated_at = NOW() WHERE id = $1`,
		id, ref,
	)
	if err != nil {
		return translate("set provider ref", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFoundf("payment %s not found", id)
	}
	return nil
}

// AttendanceRepository reads check-ins written by the check-in flow.
type AttendanceRepository struct {
	db *database.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *database.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// ListAttendance returns every check-in for the event.
func (r *AttendanceRepository) ListAttendance(ctx context.Context, eventID string) ([]model.Attendance, error) {
	rows, err := r.db.Conn(ctx).Query(ctx,
		`SELECT id, event_id, user_id, method, checked_in_by_user_id, created_at
		 FROM attendance
		 WHERE event_id = $1
		 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, translate("list attendance", err)
	}
	defer rows.Close()

	var out []model.Attendance
	for rows.Next() {
		var a model.Attendance
		if err := rows.Scan(&a.ID, &a.EventID, &a.UserID, &a.Method, &a.CheckedInByUserID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AuditRepository stores audit entries in the caller's transaction.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateAuditLog inserts one entry. Before and After are stored as JSONB.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, e model.AuditEntry) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO audit_logs (id, actor_id, actor_role, action_type, entity_type, entity_id, summary, before, after)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New().String(), e.Actor.UserID, string(e.Actor.Role), e.ActionType, e.EntityType, e.EntityID,
		e.Summary, e.Before, e.After,
	)
	if err != nil {
		return translate("insert audit log", err)
	}
	return nil
}
