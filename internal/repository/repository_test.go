package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-admission/internal/database"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/service"
	"github.com/Shivanand-hulikatti/event-admission/internal/testutil"
)

func intPtr(n int) *int { return &n }

func testEvent(max *int, waitlist bool) model.Event {
	id := uuid.New().String()
	return model.Event{
		ID:                  id,
		Slug:                "ev-" + id[:8],
		Title:               "Integration Event",
		RegistrationEnabled: true,
		RegistrationMax:     max,
		WaitlistEnabled:     waitlist,
	}
}

func waitlisted(eventID, userID string, order int) *model.Registration {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Registration{
		ID:              uuid.New().String(),
		EventID:         eventID,
		UserID:          userID,
		Status:          model.StatusWaitlisted,
		WaitlistOrder:   &order,
		PromotionSource: model.PromotionNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestEventRepository(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.TruncateAll(t, db)
	repo := NewEventRepository(db)
	ctx := context.Background()

	ev := testEvent(intPtr(10), true)
	fee := int64(1200)
	ev.RegistrationFeeCents = &fee
	testutil.InsertEvent(t, db, ev)

	got, err := repo.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ev.Slug, got.Slug)
	assert.Equal(t, 10, *got.RegistrationMax)
	assert.True(t, got.IsPaid())

	missing, err := repo.GetEvent(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = repo.LockEvent(ctx, ev.ID)
	require.Error(t, err, "locking needs a transaction")

	err = db.WithTx(ctx, func(ctx context.Context) error {
		locked, err := repo.LockEvent(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, ev.ID, locked.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestRegistrationRepository(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.TruncateAll(t, db)
	repo := NewRegistrationRepository(db)
	ctx := context.Background()

	ev := testEvent(intPtr(1), true)
	testutil.InsertEvent(t, db, ev)

	t.Run("save, get and count", func(t *testing.T) {
		a := waitlisted(ev.ID, "alice", 1)
		require.NoError(t, repo.SaveRegistration(ctx, a))

		got, err := repo.GetRegistration(ctx, ev.ID, "alice")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, model.StatusWaitlisted, got.Status)
		assert.Equal(t, 1, *got.WaitlistOrder)

		a.Status = model.StatusRegistered
		a.WaitlistOrder = nil
		a.PromotionSource = model.PromotionAuto
		require.NoError(t, repo.SaveRegistration(ctx, a))

		n, err := repo.CountByStatus(ctx, ev.ID, model.StatusRegistered)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		none, err := repo.GetRegistration(ctx, ev.ID, "nobody")
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("one row per user", func(t *testing.T) {
		dup := waitlisted(ev.ID, "alice", 9)
		err := repo.SaveRegistration(ctx, dup)
		require.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("waitlist order and rewrite", func(t *testing.T) {
		b := waitlisted(ev.ID, "bob", 1)
		c := waitlisted(ev.ID, "carol", 2)
		d := waitlisted(ev.ID, "dave", 3)
		for _, r := range []*model.Registration{b, c, d} {
			require.NoError(t, repo.SaveRegistration(ctx, r))
		}

		max, err := repo.MaxWaitlistOrder(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, max)

		head, err := repo.NextWaitlisted(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, "bob", head.UserID)

		err = db.WithTx(ctx, func(ctx context.Context) error {
			return repo.RewriteWaitlistOrder(ctx, ev.ID, []string{d.ID, b.ID, c.ID})
		})
		require.NoError(t, err)

		rows, err := repo.ListRegistrations(ctx, ev.ID, model.StatusWaitlisted)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, []string{"dave", "bob", "carol"}, []string{rows[0].UserID, rows[1].UserID, rows[2].UserID})

		err = db.WithTx(ctx, func(ctx context.Context) error {
			return repo.RewriteWaitlistOrder(ctx, ev.ID, []string{b.ID, "missing"})
		})
		require.ErrorIs(t, err, model.ErrConflict)

		rows, err = repo.ListRegistrations(ctx, ev.ID, model.StatusWaitlisted)
		require.NoError(t, err)
		assert.Equal(t, "dave", rows[0].UserID, "failed rewrite rolled back")

		all, err := repo.ListRegistrations(ctx, ev.ID, model.StatusNone)
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("delete", func(t *testing.T) {
		r, err := repo.GetRegistration(ctx, ev.ID, "carol")
		require.NoError(t, err)
		require.NoError(t, repo.DeleteRegistration(ctx, r.ID))
		r, err = repo.GetRegistration(ctx, ev.ID, "carol")
		require.NoError(t, err)
		assert.Nil(t, r)
	})
}

func TestPaymentRepository(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.TruncateAll(t, db)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	ev := testEvent(nil, false)
	testutil.InsertEvent(t, db, ev)

	now := time.Now().UTC()
	p := &model.Payment{
		ID:          uuid.New().String(),
		UserID:      "bob",
		EventID:     ev.ID,
		AmountCents: 2500,
		Status:      model.PaymentPending,
		Metadata:    model.PaymentMetadata{EventID: ev.ID, EventSlug: ev.Slug, EventTitle: ev.Title},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.CreatePayment(ctx, p))
	require.NoError(t, repo.SetPaymentProviderRef(ctx, p.ID, "cs_123"))

	got, err := repo.GetPaymentByProviderRef(ctx, "cs_123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, ev.Slug, got.Metadata.EventSlug)

	err = db.WithTx(ctx, func(ctx context.Context) error {
		locked, err := repo.LockPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentPending, locked.Status)
		return repo.UpdatePaymentStatus(ctx, p.ID, model.PaymentSucceeded)
	})
	require.NoError(t, err)

	got, err = repo.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentSucceeded, got.Status)

	missing, err := repo.GetPaymentByProviderRef(ctx, "cs_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.UpdatePaymentStatus(ctx, "missing", model.PaymentRefunded)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestAuditAndAttendance(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.TruncateAll(t, db)
	ctx := context.Background()

	ev := testEvent(nil, false)
	testutil.InsertEvent(t, db, ev)
	officer := "officer-1"
	testutil.InsertAttendance(t, db, model.Attendance{ID: "att-1", EventID: ev.ID, UserID: "alice", Method: model.CheckInAdmin, CheckedInByUserID: &officer})

	rows, err := NewAttendanceRepository(db).ListAttendance(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.CheckInAdmin, rows[0].Method)
	assert.Equal(t, officer, *rows[0].CheckedInByUserID)

	err = NewAuditRepository(db).CreateAuditLog(ctx, model.AuditEntry{
		Actor:      model.Actor{UserID: officer, Role: model.RoleOfficer},
		ActionType: model.AuditRegistrationChanged,
		EntityType: model.EntityRegistration,
		EntityID:   "reg-1",
		Summary:    "override: NONE -> REGISTERED",
		After:      map[string]string{"status": "REGISTERED"},
	})
	require.NoError(t, err)

	var status string
	err = db.Pool.QueryRow(ctx, `SELECT after->>'status' FROM audit_logs WHERE entity_id = 'reg-1'`).Scan(&status)
	require.NoError(t, err)
	assert.Equal(t, "REGISTERED", status)
}

func newAdmission(db *database.DB) *service.AdmissionService {
	return service.NewAdmissionService(service.Stores{
		Tx:            db,
		Events:        NewEventRepository(db),
		Registrations: NewRegistrationRepository(db),
		Payments:      NewPaymentRepository(db),
		Attendance:    NewAttendanceRepository(db),
		Audit:         NewAuditRepository(db),
	}, nil)
}

func TestConcurrentAdmissionAgainstPostgres(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.TruncateAll(t, db)
	ctx := context.Background()

	const capacity, users = 4, 24
	ev := testEvent(intPtr(capacity), true)
	testutil.InsertEvent(t, db, ev)
	svc := newAdmission(db)

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Register(ctx, model.Actor{UserID: fmt.Sprintf("user-%d", i), Role: model.RoleMember}, ev.ID, model.IntentYes)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	regs := NewRegistrationRepository(db)
	n, err := regs.CountByStatus(ctx, ev.ID, model.StatusRegistered)
	require.NoError(t, err)
	assert.Equal(t, capacity, n)

	waiting, err := regs.ListRegistrations(ctx, ev.ID, model.StatusWaitlisted)
	require.NoError(t, err)
	require.Len(t, waiting, users-capacity)
	for i, r := range waiting {
		assert.Equal(t, i+1, *r.WaitlistOrder)
	}
}

func TestLockTimeoutIsRetryableConflict(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.TruncateAll(t, db)
	ctx := context.Background()

	ev := testEvent(intPtr(1), false)
	testutil.InsertEvent(t, db, ev)
	short := database.New(db.Pool, 100*time.Millisecond)
	events := NewEventRepository(short)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = short.WithTx(ctx, func(ctx context.Context) error {
			if _, err := events.LockEvent(ctx, ev.ID); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	err := short.WithTx(ctx, func(ctx context.Context) error {
		_, err := events.LockEvent(ctx, ev.ID)
		return err
	})
	require.ErrorIs(t, err, model.ErrConflict)
}
