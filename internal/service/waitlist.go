package service

import (
	"context"
	"fmt"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// nextWaitlistOrder returns the tail position for a new WAITLISTED row.
// Gaps left by withdrawals are not compacted.
func (s *AdmissionService) nextWaitlistOrder(ctx context.Context, eventID string) (int, error) {
	max, err := s.registrations.MaxWaitlistOrder(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("max waitlist order: %w", err)
	}
	return max + 1, nil
}

// ReorderWaitlist moves the named registrations to the head of the waitlist
// in the given order. Waitlisted rows not named keep their relative order
// behind them. The whole batch fails if any ID is not currently waitlisted
// for the event.
func (s *AdmissionService) ReorderWaitlist(ctx context.Context, actor model.Actor, eventID string, ids []string) ([]model.WaitlistEntry, error) {
	ctx, span := s.tracer.Start(ctx, "admission.ReorderWaitlist")
	defer span.End()

	if !actor.IsPrivileged() {
		return nil, model.Unauthorizedf("only officers can reorder the waitlist")
	}
	if len(ids) == 0 {
		return nil, model.Validationf("registration_ids must not be empty")
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, model.Validationf("registration_ids must not contain blanks")
		}
		if _, dup := seen[id]; dup {
			return nil, model.Validationf("registration %s listed twice", id)
		}
		seen[id] = struct{}{}
	}

	var entries []model.WaitlistEntry
	err := s.inTx(ctx, func(ctx context.Context, fx *effects) error {
		if _, err := s.lockEvent(ctx, eventID); err != nil {
			return err
		}
		current, err := s.registrations.ListRegistrations(ctx, eventID, model.StatusWaitlisted)
		if err != nil {
			return fmt.Errorf("list waitlist: %w", err)
		}

		waiting := make(map[string]struct{}, len(current))
		for _, r := range current {
			waiting[r.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := waiting[id]; !ok {
				return model.Conflictf("registration %s is no longer waitlisted for this event", id)
			}
		}

		order := make([]string, 0, len(current))
		order = append(order, ids...)
		for _, r := range current {
			if _, named := seen[r.ID]; !named {
				order = append(order, r.ID)
			}
		}

		if err := s.registrations.RewriteWaitlistOrder(ctx, eventID, order); err != nil {
			return fmt.Errorf("rewrite waitlist: %w", err)
		}
		if err := s.audit.CreateAuditLog(ctx, model.AuditEntry{
			Actor:      actor,
			ActionType: model.AuditWaitlistReordered,
			EntityType: model.EntityEvent,
			EntityID:   eventID,
			Summary:    fmt.Sprintf("waitlist reordered (%d entries)", len(order)),
			Before:     idsOf(current),
			After:      order,
		}); err != nil {
			return fmt.Errorf("audit reorder: %w", err)
		}

		entries, err = s.waitlist(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// waitlist lists the event's waitlist with 1-based positions.
func (s *AdmissionService) waitlist(ctx context.Context, eventID string) ([]model.WaitlistEntry, error) {
	rows, err := s.registrations.ListRegistrations(ctx, eventID, model.StatusWaitlisted)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	entries := make([]model.WaitlistEntry, 0, len(rows))
	for i, r := range rows {
		e := model.WaitlistEntry{RegistrationID: r.ID, UserID: r.UserID, Position: i + 1}
		if r.WaitlistOrder != nil {
			e.WaitlistOrder = *r.WaitlistOrder
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func idsOf(regs []model.Registration) []string {
	ids := make([]string, len(regs))
	for i, r := range regs {
		ids[i] = r.ID
	}
	return ids
}
