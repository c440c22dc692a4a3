package service

import (
	"context"
	"fmt"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// promote fills free seats from the head of the waitlist. It must run in the
// transaction that freed the seat, after the event lock was taken. Unlimited
// and paid events never auto-promote.
func (s *AdmissionService) promote(ctx context.Context, ev *model.Event, fx *effects) ([]string, error) {
	if ev.Unlimited() || ev.IsPaid() {
		return nil, nil
	}

	var promoted []string
	for {
		count, err := s.confirmedCount(ctx, ev.ID)
		if err != nil {
			return promoted, err
		}
		if !ev.HasRoom(count) {
			return promoted, nil
		}

		next, err := s.registrations.NextWaitlisted(ctx, ev.ID)
		if err != nil {
			return promoted, fmt.Errorf("next waitlisted: %w", err)
		}
		if next == nil {
			return promoted, nil
		}

		out, err := s.apply(ctx, transition{
			event:             ev,
			current:           next,
			userID:            next.UserID,
			target:            model.StatusRegistered,
			actor:             model.SystemActor,
			source:            model.PromotionAuto,
			bypassEligibility: true,
			operation:         "promote",
		}, fx)
		if err != nil {
			return promoted, err
		}
		if !out.changed {
			// The head did not move; stop instead of spinning on it.
			return promoted, nil
		}
		promoted = append(promoted, out.reg.UserID)
	}
}

// CapacityChanged runs promotion after the event's capacity configuration
// changed, typically a raised registrationMax.
func (s *AdmissionService) CapacityChanged(ctx context.Context, actor model.Actor, eventID string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "admission.CapacityChanged")
	defer span.End()

	if !actor.IsPrivileged() {
		return nil, model.Unauthorizedf("only officers can trigger promotion")
	}

	var promoted []string
	err := s.inTx(ctx, func(ctx context.Context, fx *effects) error {
		ev, err := s.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		promoted, err = s.promote(ctx, ev, fx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}
