package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

func (s *AdmissionService) startSpan(ctx context.Context, name, eventID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("event.id", eventID)))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Register records the caller's response to an event.
//
// YES admits the caller when there is room, or puts them on the waitlist
// when the event is full and has one. On a paid event with room, YES is
// rejected: the seat is only granted by a confirmed checkout. YES while
// already REGISTERED or WAITLISTED changes nothing.
//
// NO marks the caller NOT_ATTENDING. Giving up a seat promotes from the
// waitlist in the same transaction.
func (s *AdmissionService) Register(ctx context.Context, actor model.Actor, eventID string, intent model.Intent) (res *model.AdmissionResult, err error) {
	ctx, span := s.startSpan(ctx, "admission.Register", eventID)
	defer func() { finish(span, err) }()

	if actor.UserID == "" {
		return nil, model.Unauthorizedf("sign in to register")
	}
	var target model.Status
	switch intent {
	case model.IntentYes:
		target = model.StatusRegistered
	case model.IntentNo:
		target = model.StatusNotAttending
	default:
		return nil, model.Validationf("intent must be YES or NO")
	}

	err = s.inTx(ctx, func(ctx context.Context, fx *effects) error {
		ev, err := s.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		current, err := s.registrations.GetRegistration(ctx, eventID, actor.UserID)
		if err != nil {
			return fmt.Errorf("get registration: %w", err)
		}

		status := model.StatusOf(current)
		if target == model.StatusRegistered && (status == model.StatusRegistered || status == model.StatusWaitlisted) {
			res = &model.AdmissionResult{Registration: current, Status: status}
			return nil
		}

		out, err := s.apply(ctx, transition{
			event:          ev,
			current:        current,
			userID:         actor.UserID,
			target:         target,
			actor:          actor,
			source:         model.PromotionNone,
			waitlistOnFull: true,
			operation:      "register",
		}, fx)
		if err != nil {
			return err
		}
		res = resultOf(out)
		if out.seatFreed {
			res.Promoted, err = s.promote(ctx, ev, fx)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("registration.status", string(res.Status)))
	return res, nil
}

// OverrideStatus forces a user's status. Eligibility, window and payment
// checks do not apply, but admitting past capacity is still refused.
// Any override that releases a seat promotes from the waitlist head, so a
// demoted user goes behind everyone already waiting.
func (s *AdmissionService) OverrideStatus(ctx context.Context, actor model.Actor, eventID, userID string, status model.Status, reason string) (res *model.AdmissionResult, err error) {
	ctx, span := s.startSpan(ctx, "admission.OverrideStatus", eventID)
	defer func() { finish(span, err) }()

	if !actor.IsPrivileged() {
		return nil, model.Unauthorizedf("only officers can override registrations")
	}
	if userID == "" {
		return nil, model.Validationf("user id is required")
	}
	if !status.Valid() {
		return nil, model.Validationf("invalid status %q", status)
	}

	err = s.inTx(ctx, func(ctx context.Context, fx *effects) error {
		ev, err := s.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		current, err := s.registrations.GetRegistration(ctx, eventID, userID)
		if err != nil {
			return fmt.Errorf("get registration: %w", err)
		}

		out, err := s.apply(ctx, transition{
			event:             ev,
			current:           current,
			userID:            userID,
			target:            status,
			actor:             actor,
			reason:            reason,
			source:            model.PromotionAdmin,
			bypassEligibility: true,
			operation:         "override",
		}, fx)
		if err != nil {
			return err
		}
		res = resultOf(out)
		if out.seatFreed {
			res.Promoted, err = s.promote(ctx, ev, fx)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RemoveRegistration deletes a user's row outright and promotes if it held
// a seat.
func (s *AdmissionService) RemoveRegistration(ctx context.Context, actor model.Actor, eventID, userID string) (promoted []string, err error) {
	ctx, span := s.startSpan(ctx, "admission.RemoveRegistration", eventID)
	defer func() { finish(span, err) }()

	if !actor.IsPrivileged() {
		return nil, model.Unauthorizedf("only officers can remove registrations")
	}

	err = s.inTx(ctx, func(ctx context.Context, fx *effects) error {
		ev, err := s.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		current, err := s.registrations.GetRegistration(ctx, eventID, userID)
		if err != nil {
			return fmt.Errorf("get registration: %w", err)
		}
		if current == nil {
			return model.NotFoundf("no registration for user %s", userID)
		}

		if err := s.registrations.DeleteRegistration(ctx, current.ID); err != nil {
			return fmt.Errorf("delete registration: %w", err)
		}
		if err := s.audit.CreateAuditLog(ctx, model.AuditEntry{
			Actor:      actor,
			ActionType: model.AuditRegistrationRemoved,
			EntityType: model.EntityRegistration,
			EntityID:   current.ID,
			Summary:    fmt.Sprintf("remove: %s -> NONE", current.Status),
			Before:     snapshotOf(current),
		}); err != nil {
			return fmt.Errorf("audit removal: %w", err)
		}
		fx.transitions = append(fx.transitions, recordedTransition{operation: "remove", status: model.StatusNone})

		if current.Status == model.StatusRegistered {
			promoted, err = s.promote(ctx, ev, fx)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// GetSnapshot reads the admission state of an event. It takes no locks, so
// counts may trail a concurrent write. An anonymous actor gets no personal
// fields; officers also get the ordered waitlist.
func (s *AdmissionService) GetSnapshot(ctx context.Context, actor model.Actor, eventID string) (*model.Snapshot, error) {
	ctx, span := s.startSpan(ctx, "admission.GetSnapshot", eventID)
	defer span.End()

	ev, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, model.NotFoundf("event %s not found", eventID)
	}

	registered, err := s.registrations.ListRegistrations(ctx, eventID, model.StatusRegistered)
	if err != nil {
		return nil, fmt.Errorf("list registered: %w", err)
	}
	waitlist, err := s.waitlist(ctx, eventID)
	if err != nil {
		return nil, err
	}
	checkIns, err := s.attendance.ListAttendance(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	checkedIn := make(map[string]bool, len(checkIns))
	for _, a := range checkIns {
		checkedIn[a.UserID] = true
	}

	snap := &model.Snapshot{
		EventID:         ev.ID,
		Status:          ev.WindowState(s.clock.Now(), len(registered)),
		RegisteredCount: len(registered),
		Capacity:        ev.RegistrationMax,
		WaitlistCount:   len(waitlist),
		FeeCents:        ev.Fee(),
		Attendees:       make([]model.Attendee, 0, len(registered)),
	}
	for _, r := range registered {
		snap.Attendees = append(snap.Attendees, model.Attendee{
			UserID:          r.UserID,
			RegistrationID:  r.ID,
			PromotionSource: r.PromotionSource,
			CheckedIn:       checkedIn[r.UserID],
			RegisteredAt:    r.UpdatedAt,
		})
	}

	if actor.UserID != "" {
		mine, err := s.registrations.GetRegistration(ctx, eventID, actor.UserID)
		if err != nil {
			return nil, fmt.Errorf("get registration: %w", err)
		}
		snap.MyStatus = model.StatusOf(mine)
		for _, e := range waitlist {
			if e.UserID == actor.UserID {
				pos := e.Position
				snap.MyWaitlistPosition = &pos
				break
			}
		}
	}
	if actor.IsPrivileged() {
		snap.Waitlist = waitlist
	}
	return snap, nil
}

// ListRegistrations returns the event's rows, optionally filtered by status.
func (s *AdmissionService) ListRegistrations(ctx context.Context, actor model.Actor, eventID string, status model.Status) ([]model.Registration, error) {
	if !actor.IsPrivileged() {
		return nil, model.Unauthorizedf("only officers can list registrations")
	}
	if status != model.StatusNone && !status.Valid() {
		return nil, model.Validationf("invalid status %q", status)
	}
	ev, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, model.NotFoundf("event %s not found", eventID)
	}
	regs, err := s.registrations.ListRegistrations(ctx, eventID, status)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

func resultOf(out outcome) *model.AdmissionResult {
	return &model.AdmissionResult{
		Registration: out.reg,
		Status:       model.StatusOf(out.reg),
		Changed:      out.changed,
	}
}
