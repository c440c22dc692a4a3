package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Shivanand-hulikatti/event-admission/internal/logger"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// registeredNotification builds the message for a row that just became
// REGISTERED. The type depends on how the seat was obtained.
func (s *AdmissionService) registeredNotification(t transition, reg *model.Registration) model.Notification {
	name := t.event.Title
	if name == "" {
		name = "the event"
	}

	n := model.Notification{
		UserID:    reg.UserID,
		ActionURL: s.eventURL(t.event),
		Channels:  []string{model.ChannelInApp, model.ChannelEmail},
	}
	switch {
	case reg.PromotionSource == model.PromotionAuto:
		n.Type = model.NotifyPromoted
		n.Title = "You're off the waitlist"
		n.Body = fmt.Sprintf("A seat opened up and you are now registered for %s.", name)
	case t.paymentID != nil:
		n.Type = model.NotifyPaymentConfirmed
		n.Title = "Payment received"
		n.Body = fmt.Sprintf("Your payment was confirmed and you are registered for %s.", name)
	default:
		n.Type = model.NotifyRegistered
		n.Title = "Registration confirmed"
		n.Body = fmt.Sprintf("You are registered for %s.", name)
	}
	return n
}

func (s *AdmissionService) eventURL(ev *model.Event) string {
	key := ev.Slug
	if key == "" {
		key = ev.ID
	}
	return strings.TrimRight(s.baseURL, "/") + "/events/" + key
}

// dispatch runs after the transaction committed. Notification failures are
// logged and never surface to the caller.
func (s *AdmissionService) dispatch(ctx context.Context, fx *effects) {
	for _, t := range fx.transitions {
		s.metrics.Transition(t.operation, string(t.status))
		if t.status == model.StatusRegistered && t.source != model.PromotionNone {
			s.metrics.Promotion(string(t.source))
		}
	}
	if s.notifier == nil {
		return
	}
	log := logger.WithContext(ctx)
	for _, n := range fx.notifications {
		if err := s.notifier.SendNotification(ctx, n); err != nil {
			log.Error("failed to send notification",
				slog.String("user_id", n.UserID),
				slog.String("type", n.Type),
				slog.Any("error", err),
			)
		}
	}
}

// inTx runs fn in a transaction and dispatches the collected effects only
// if it commits.
func (s *AdmissionService) inTx(ctx context.Context, fn func(ctx context.Context, fx *effects) error) error {
	fx := &effects{}
	if err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		return fn(ctx, fx)
	}); err != nil {
		return err
	}
	s.dispatch(ctx, fx)
	return nil
}
