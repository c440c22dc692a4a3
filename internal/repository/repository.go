// Package repository implements all database queries for admission.
// It uses pgx directly (no ORM). Every method runs on the transaction carried
// by ctx when there is one, and on the pool otherwise.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/event-admission/internal/database"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// translate maps driver failures onto the domain taxonomy. Lock timeouts,
// deadlocks and serialization failures become retryable conflicts.
func translate(op string, err error) error {
	switch {
	case database.IsRetryable(err):
		return model.ConflictCause(op+": concurrent update, retry the request", err)
	case database.ErrorCode(err) == database.CodeUniqueViolation:
		return model.ConflictCause(op+": duplicate row", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// forUpdate appends a row lock when the query runs inside a transaction.
func forUpdate(ctx context.Context, sql string) string {
	if database.TxFromContext(ctx) != nil {
		return sql + " FOR UPDATE"
	}
	return sql
}

// EventRepository reads the event rows owned by the metadata service.
type EventRepository struct {
	db *database.DB
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, slug, title, registration_enabled, registration_max, waitlist_enabled,
	registration_fee_cents, registration_opens_at, registration_closes_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Slug, &e.Title, &e.RegistrationEnabled, &e.RegistrationMax,
		&e.WaitlistEnabled, &e.RegistrationFeeCents, &e.RegistrationOpensAt, &e.RegistrationClosesAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEvent returns the event or nil when it does not exist.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.Conn(ctx).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, translate("get event", err)
	}
	return e, nil
}

// LockEvent reads the event with SELECT … FOR UPDATE.
//
// This row lock is what serialises admission. Two transactions that both
// read the registered count before either writes would each see a free seat
// and both admit; holding the event row exclusively from the count until
// commit makes the read-then-write atomic per event. The lock is always the
// first one a transaction takes, so lock order stays event → registration →
// payment.
func (r *EventRepository) LockEvent(ctx context.Context, id string) (*model.Event, error) {
	if database.TxFromContext(ctx) == nil {
		return nil, errors.New("lock event: no transaction in context")
	}
	e, err := scanEvent(r.db.Conn(ctx).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, translate("lock event", err)
	}
	return e, nil
}

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository struct {
	db *database.DB
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *database.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `id, event_id, user_id, status, waitlist_order, promotion_source,
	source_payment_id, created_at, updated_at`

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var reg model.Registration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.WaitlistOrder,
		&reg.PromotionSource, &reg.SourcePaymentID, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *RegistrationRepository) getOne(ctx context.Context, op, sql string, args ...any) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.Conn(ctx).QueryRow(ctx, forUpdate(ctx, sql), args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, translate(op, err)
	}
	return reg, nil
}

// GetRegistration returns the user's row for the event, or nil.
func (r *RegistrationRepository) GetRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	return r.getOne(ctx, "get registration",
		`SELECT `+registrationColumns+` FROM registrations WHERE event_id = $1 AND user_id = $2`,
		eventID, userID)
}

// NextWaitlisted returns the head of the waitlist, or nil.
func (r *RegistrationRepository) NextWaitlisted(ctx context.Context, eventID string) (*model.Registration, error) {
	return r.getOne(ctx, "next waitlisted",
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND status = 'WAITLISTED'
		 ORDER BY waitlist_order ASC
		 LIMIT 1`,
		eventID)
}

// SaveRegistration inserts or updates the row keyed by ID.
func (r *RegistrationRepository) SaveRegistration(ctx context.Context, reg *model.Registration) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		     status = EXCLUDED.status,
		     waitlist_order = EXCLUDED.waitlist_order,
		     promotion_source = EXCLUDED.promotion_source,
		     source_payment_id = EXCLUDED.source_payment_id,
		     updated_at = EXCLUDED.updated_at`,
		reg.ID, reg.EventID, reg.UserID, reg.Status, reg.WaitlistOrder, reg.PromotionSource,
		reg.SourcePaymentID, reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		return translate("save registration", err)
	}
	return nil
}

// DeleteRegistration removes a row.
func (r *RegistrationRepository) DeleteRegistration(ctx context.Context, id string) error {
	if _, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id); err != nil {
		return translate("delete registration", err)
	}
	return nil
}

// CountByStatus counts the event's rows in status.
func (r *RegistrationRepository) CountByStatus(ctx context.Context, eventID string, status model.Status) (int, error) {
	var n int
	err := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = $2`,
		eventID, status,
	).Scan(&n)
	if err != nil {
		return 0, translate("count registrations", err)
	}
	return n, nil
}

// MaxWaitlistOrder returns the highest assigned position, 0 when the
// waitlist is empty.
func (r *RegistrationRepository) MaxWaitlistOrder(ctx context.Context, eventID string) (int, error) {
	var n int
	err := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(MAX(waitlist_order), 0) FROM registrations WHERE event_id = $1`,
		eventID,
	).Scan(&n)
	if err != nil {
		return 0, translate("max waitlist order", err)
	}
	return n, nil
}

// ListRegistrations returns the event's rows in status, or all rows when
// status is empty. Waitlisted rows come first in position order.
func (r *RegistrationRepository) ListRegistrations(ctx context.Context, eventID string, status model.Status) ([]model.Registration, error) {
	rows, err := r.db.Conn(ctx).Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = $1 AND ($2::text = '' OR status = $2::text)
		 ORDER BY waitlist_order ASC NULLS LAST, created_at ASC, id ASC`,
		eventID, string(status),
	)
	if err != nil {
		return nil, translate("list registrations", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list registrations", err)
	}
	return regs, nil
}

// RewriteWaitlistOrder assigns positions 1..n to ids in a single statement.
// The unique (event_id, waitlist_order) constraint is deferred, so the
// intermediate states of the update never collide. Fails with a conflict if
// any id is not a waitlisted row of the event.
func (r *RegistrationRepository) RewriteWaitlistOrder(ctx context.Context, eventID string, ids []string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE registrations AS r
		 SET waitlist_order = v.ord::int, updated_at = NOW()
		 FROM unnest($2::text[]) WITH ORDINALITY AS v(id, ord)
		 WHERE r.id = v.id AND r.event_id = $1 AND r.status = 'WAITLISTED'`,
		eventID, ids,
	)
	if err != nil {
		return translate("rewrite waitlist order", err)
	}
	if int(tag.RowsAffected()) != len(ids) {
		return model.Conflictf("waitlist changed while reordering: %d of %d rows updated", tag.RowsAffected(), len(ids))
	}
	return nil
}
