package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/clock"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

type fakeTxKey struct{}

// fakeStore is an in-memory database. WithTx holds one lock for the whole
// unit of work, which is at least as strict as the row lock on the event,
// and restores the previous state when fn fails.
type fakeStore struct {
	txMu sync.Mutex

	mu         sync.Mutex
	events     map[string]model.Event
	regs       map[string]model.Registration
	payments   map[string]model.Payment
	attendance []model.Attendance
	audits     []model.AuditEntry

	txCount   int
	failAudit error
}

func newFakeStore(events ...model.Event) *fakeStore {
	s := &fakeStore{
		events:   map[string]model.Event{},
		regs:     map[string]model.Registration{},
		payments: map[string]model.Payment{},
	}
	for _, ev := range events {
		s.events[ev.ID] = ev
	}
	return s
}

func (s *fakeStore) stores() Stores {
	return Stores{Tx: s, Events: s, Registrations: s, Payments: s, Attendance: s, Audit: s}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.txCount++
	saved := s.copyState()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.restore(saved)
		s.mu.Unlock()
		return err
	}
	return nil
}

type fakeState struct {
	regs     map[string]model.Registration
	payments map[string]model.Payment
	audits   []model.AuditEntry
}

func (s *fakeStore) copyState() fakeState {
	st := fakeState{
		regs:     make(map[string]model.Registration, len(s.regs)),
		payments: make(map[string]model.Payment, len(s.payments)),
		audits:   append([]model.AuditEntry(nil), s.audits...),
	}
	for k, v := range s.regs {
		st.regs[k] = v
	}
	for k, v := range s.payments {
		st.payments[k] = v
	}
	return st
}

func (s *fakeStore) restore(st fakeState) {
	s.regs = st.regs
	s.payments = st.payments
	s.audits = st.audits
}

func (s *fakeStore) GetEvent(_ context.Context, eventID string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (s *fakeStore) LockEvent(ctx context.Context, eventID string) (*model.Event, error) {
	if ctx.Value(fakeTxKey{}) == nil {
		return nil, errors.New("LockEvent outside transaction")
	}
	return s.GetEvent(ctx, eventID)
}

func (s *fakeStore) setEvent(ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev
}

func (s *fakeStore) GetRegistration(_ context.Context, eventID, userID string) (*model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.regs {
		if r.EventID == eventID && r.UserID == userID {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) SaveRegistration(_ context.Context, reg *model.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.regs {
		if r.ID != reg.ID && r.EventID == reg.EventID && r.UserID == reg.UserID {
			return model.Conflictf("duplicate registration")
		}
		if r.ID != reg.ID && r.EventID == reg.EventID && r.WaitlistOrder != nil && reg.WaitlistOrder != nil && *r.WaitlistOrder == *reg.WaitlistOrder {
			return model.Conflictf("duplicate waitlist order")
		}
	}
	s.regs[reg.ID] = *reg
	return nil
}

func (s *fakeStore) DeleteRegistration(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.regs, id)
	return nil
}

func (s *fakeStore) CountByStatus(_ context.Context, eventID string, status model.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.regs {
		if r.EventID == eventID && r.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) MaxWaitlistOrder(_ context.Context, eventID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, r := range s.regs {
		if r.EventID == eventID && r.WaitlistOrder != nil && *r.WaitlistOrder > max {
			max = *r.WaitlistOrder
		}
	}
	return max, nil
}

func (s *fakeStore) NextWaitlisted(ctx context.Context, eventID string) (*model.Registration, error) {
	rows, _ := s.ListRegistrations(ctx, eventID, model.StatusWaitlisted)
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *fakeStore) ListRegistrations(_ context.Context, eventID string, status model.Status) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Registration
	for _, r := range s.regs {
		if r.EventID == eventID && (status == model.StatusNone || r.Status == status) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.WaitlistOrder != nil && b.WaitlistOrder != nil {
			return *a.WaitlistOrder < *b.WaitlistOrder
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *fakeStore) RewriteWaitlistOrder(_ context.Context, eventID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range ids {
		r, ok := s.regs[id]
		if !ok || r.EventID != eventID || r.Status != model.StatusWaitlisted {
			return model.Conflictf("registration %s not waitlisted", id)
		}
		order := i + 1
		r.WaitlistOrder = &order
		s.regs[id] = r
	}
	return nil
}

func (s *fakeStore) CreatePayment(_ context.Context, p *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = *p
	return nil
}

func (s *fakeStore) GetPayment(_ context.Context, id string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *fakeStore) GetPaymentByProviderRef(_ context.Context, ref string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.ProviderRef != nil && *p.ProviderRef == ref {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) LockPayment(ctx context.Context, id string) (*model.Payment, error) {
	return s.GetPayment(ctx, id)
}

func (s *fakeStore) UpdatePaymentStatus(_ context.Context, id string, status model.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return model.NotFoundf("payment %s", id)
	}
	p.Status = status
	s.payments[id] = p
	return nil
}

func (s *fakeStore) SetPaymentProviderRef(_ context.Context, id, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return model.NotFoundf("payment %s", id)
	}
	p.ProviderRef = &ref
	s.payments[id] = p
	return nil
}

func (s *fakeStore) ListAttendance(_ context.Context, eventID string) ([]model.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attendance
	for _, a := range s.attendance {
		if a.EventID == eventID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateAuditLog(_ context.Context, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAudit != nil {
		return s.failAudit
	}
	s.audits = append(s.audits, entry)
	return nil
}

func (s *fakeStore) auditCount(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.audits {
		if a.ActionType == action {
			n++
		}
	}
	return n
}

func (s *fakeStore) status(eventID, userID string) model.Status {
	r, _ := s.GetRegistration(context.Background(), eventID, userID)
	return model.StatusOf(r)
}

func (s *fakeStore) registration(eventID, userID string) *model.Registration {
	r, _ := s.GetRegistration(context.Background(), eventID, userID)
	return r
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (n *fakeNotifier) SendNotification(_ context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *fakeNotifier) messages() []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Notification(nil), n.sent...)
}

type fakeProvider struct {
	mu       sync.Mutex
	requests []model.CheckoutSessionRequest
	err      error
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, req model.CheckoutSessionRequest) (*model.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.requests = append(p.requests, req)
	return &model.CheckoutSession{
		Reference:   "cs_" + req.PaymentID,
		RedirectURL: "https://pay.test/checkout/cs_" + req.PaymentID,
	}, nil
}

// fakeVerifier accepts any body whose signature is "ok" and returns event.
type fakeVerifier struct {
	event *model.PaymentEvent
}

func (v fakeVerifier) Verify(_ []byte, signature string) (*model.PaymentEvent, error) {
	if signature != "ok" {
		return nil, model.ExternalPayload("bad signature", nil)
	}
	return v.event, nil
}

var testNow = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func int64Ptr(n int64) *int64 { return &n }

func freeEvent(id string, max *int, waitlist bool) model.Event {
	return model.Event{
		ID:                  id,
		Slug:                id,
		Title:               "Event " + id,
		RegistrationEnabled: true,
		RegistrationMax:     max,
		WaitlistEnabled:     waitlist,
	}
}

func paidEvent(id string, max *int, fee int64) model.Event {
	ev := freeEvent(id, max, true)
	ev.RegistrationFeeCents = int64Ptr(fee)
	return ev
}

func member(id string) model.Actor { return model.Actor{UserID: id, Role: model.RoleMember} }

var officer = model.Actor{UserID: "officer-1", Role: model.RoleOfficer}

type harness struct {
	store    *fakeStore
	notifier *fakeNotifier
	provider *fakeProvider
	svc      *AdmissionService
	clock    *clock.Fixed
}

func newHarness(events ...model.Event) *harness {
	h := &harness{
		store:    newFakeStore(events...),
		notifier: &fakeNotifier{},
		provider: &fakeProvider{},
		clock:    clock.NewFixed(testNow),
	}
	h.svc = NewAdmissionService(h.store.stores(), h.notifier,
		WithClock(h.clock),
		WithBaseURL("https://club.test"),
	)
	return h
}

func (h *harness) gateway(event *model.PaymentEvent) *PaymentGateway {
	return NewPaymentGateway(h.svc, h.provider, fakeVerifier{event: event}, GatewayURLs{})
}
