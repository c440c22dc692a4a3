package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// transition describes one requested status change for a (event, user) pair.
// The event must already be locked by the caller's transaction.
type transition struct {
	event   *model.Event
	current *model.Registration
	userID  string
	target  model.Status
	actor   model.Actor
	reason  string

	// source is the provenance recorded when the row lands on REGISTERED.
	source model.PromotionSource
	// paymentID is attached atomically with the write when set.
	paymentID *string
	// bypassEligibility skips the enabled/window/payment/edge checks. The
	// capacity check is never skipped.
	bypassEligibility bool
	// waitlistOnFull turns a REGISTERED request on a full event into
	// WAITLISTED instead of failing. Without bypassEligibility the event must
	// also have its waitlist enabled.
	waitlistOnFull bool
	operation      string
}

// outcome is what apply did.
type outcome struct {
	reg       *model.Registration
	before    model.Status
	changed   bool
	seatFreed bool
}

// effects collects side effects that must only be observed after commit.
type effects struct {
	notifications []model.Notification
	transitions   []recordedTransition
}

type recordedTransition struct {
	operation string
	status    model.Status
	source    model.PromotionSource
}

func (fx *effects) notify(n model.Notification) {
	fx.notifications = append(fx.notifications, n)
}

// apply is the single guarded-write primitive behind every registration
// change: self-service, promotion, payment reconciliation and overrides.
func (s *AdmissionService) apply(ctx context.Context, t transition, fx *effects) (outcome, error) {
	before := model.StatusOf(t.current)
	out := outcome{reg: t.current, before: before}

	if !t.target.Valid() {
		return out, model.Validationf("invalid target status %q", t.target)
	}
	if !t.bypassEligibility && !ownerEdgeAllowed(before, t.target) {
		return out, model.Validationf("cannot change registration from %s to %s", statusLabel(before), t.target)
	}

	target := t.target
	switch target {
	case model.StatusRegistered:
		if before == model.StatusRegistered {
			return out, nil
		}
		if !t.bypassEligibility {
			if err := checkEligible(t.event, s.clock.Now()); err != nil {
				return out, err
			}
		}
		count, err := s.confirmedCount(ctx, t.event.ID)
		if err != nil {
			return out, err
		}
		if !t.event.HasRoom(count) {
			if !t.waitlistOnFull || (!t.bypassEligibility && !t.event.WaitlistEnabled) {
				return out, model.Capacityf("event is full (%d/%d)", count, *t.event.RegistrationMax)
			}
			target = model.StatusWaitlisted
			break
		}
		if t.event.IsPaid() && t.paymentID == nil && !t.bypassEligibility {
			return out, model.Validationf("event requires payment; start a checkout instead")
		}

	case model.StatusWaitlisted:
		if before == model.StatusWaitlisted {
			return out, nil
		}
		if !t.bypassEligibility {
			if err := checkEligible(t.event, s.clock.Now()); err != nil {
				return out, err
			}
			if !t.event.WaitlistEnabled {
				return out, model.Validationf("event has no waitlist")
			}
		}

	case model.StatusNotAttending:
		if before == model.StatusNotAttending {
			return out, nil
		}
	}

	if target == model.StatusWaitlisted && before == model.StatusWaitlisted {
		// Payment landed while still full: keep the existing position.
		if t.paymentID != nil {
			reg := *t.current
			reg.SourcePaymentID = t.paymentID
			reg.UpdatedAt = s.clock.Now()
			if err := s.registrations.SaveRegistration(ctx, &reg); err != nil {
				return out, fmt.Errorf("save registration: %w", err)
			}
			out.reg = &reg
		}
		return out, nil
	}

	reg, err := s.write(ctx, t, target)
	if err != nil {
		return out, err
	}
	out.reg = reg
	out.changed = true
	out.seatFreed = before == model.StatusRegistered && target != model.StatusRegistered

	if err := s.audit.CreateAuditLog(ctx, model.AuditEntry{
		Actor:      t.actor,
		ActionType: model.AuditRegistrationChanged,
		EntityType: model.EntityRegistration,
		EntityID:   reg.ID,
		Summary:    transitionSummary(t, before, target),
		Before:     snapshotOf(t.current),
		After:      snapshotOf(reg),
	}); err != nil {
		return out, fmt.Errorf("audit registration: %w", err)
	}

	fx.transitions = append(fx.transitions, recordedTransition{operation: t.operation, status: target, source: reg.PromotionSource})
	if target == model.StatusRegistered {
		fx.notify(s.registeredNotification(t, reg))
	}
	return out, nil
}

// write persists the new row state, assigning a waitlist tail when needed.
func (s *AdmissionService) write(ctx context.Context, t transition, target model.Status) (*model.Registration, error) {
	now := s.clock.Now()

	var reg model.Registration
	if t.current != nil {
		reg = *t.current
	} else {
		reg = model.Registration{
			ID:        uuid.New().String(),
			EventID:   t.event.ID,
			UserID:    t.userID,
			CreatedAt: now,
		}
	}
	reg.Status = target
	reg.UpdatedAt = now
	reg.WaitlistOrder = nil
	reg.PromotionSource = model.PromotionNone

	switch target {
	case model.StatusRegistered:
		reg.PromotionSource = t.source
		if reg.PromotionSource == "" {
			reg.PromotionSource = model.PromotionNone
		}
	case model.StatusWaitlisted:
		order, err := s.nextWaitlistOrder(ctx, t.event.ID)
		if err != nil {
			return nil, err
		}
		reg.WaitlistOrder = &order
	}
	if t.paymentID != nil {
		reg.SourcePaymentID = t.paymentID
	}

	if err := s.registrations.SaveRegistration(ctx, &reg); err != nil {
		return nil, fmt.Errorf("save registration: %w", err)
	}
	return &reg, nil
}

// ownerEdgeAllowed lists the transitions a user may make on their own row.
func ownerEdgeAllowed(from, to model.Status) bool {
	switch to {
	case model.StatusRegistered, model.StatusWaitlisted:
		return from == model.StatusNone || from == model.StatusNotAttending
	case model.StatusNotAttending:
		return true
	}
	return false
}

func checkEligible(ev *model.Event, now time.Time) error {
	if !ev.RegistrationEnabled {
		return model.Validationf("registration is disabled for this event")
	}
	if !ev.InWindow(now) {
		return model.Validationf("registration window is closed")
	}
	return nil
}

func statusLabel(s model.Status) string {
	if s == model.StatusNone {
		return "NONE"
	}
	return string(s)
}

func transitionSummary(t transition, from, to model.Status) string {
	summary := fmt.Sprintf("%s: %s -> %s", t.operation, statusLabel(from), to)
	if t.reason != "" {
		summary += " (" + t.reason + ")"
	}
	return summary
}

type registrationSnapshot struct {
	Status          model.Status          `json:"status"`
	WaitlistOrder   *int                  `json:"waitlist_order,omitempty"`
	PromotionSource model.PromotionSource `json:"promotion_source,omitempty"`
	SourcePaymentID *string               `json:"source_payment_id,omitempty"`
}

func snapshotOf(r *model.Registration) any {
	if r == nil {
		return registrationSnapshot{Status: model.StatusNone}
	}
	return registrationSnapshot{
		Status:          r.Status,
		WaitlistOrder:   r.WaitlistOrder,
		PromotionSource: r.PromotionSource,
		SourcePaymentID: r.SourcePaymentID,
	}
}
