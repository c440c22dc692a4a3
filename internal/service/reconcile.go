package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Shivanand-hulikatti/event-admission/internal/logger"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// CheckoutProvider creates hosted checkout sessions at the payment processor.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req model.CheckoutSessionRequest) (*model.CheckoutSession, error)
}

// WebhookVerifier authenticates a raw callback and decodes it. Failures are
// ExternalPayload errors.
type WebhookVerifier interface {
	Verify(body []byte, signature string) (*model.PaymentEvent, error)
}

// Webhook outcomes reported to metrics.
const (
	webhookProcessed = "processed"
	webhookDuplicate = "duplicate"
	webhookIgnored   = "ignored"
	webhookRejected  = "rejected"
	webhookFailed    = "failed"
)

// GatewayURLs are the pages the processor sends the user back to. Empty
// values fall back to the event page.
type GatewayURLs struct {
	Success string
	Cancel  string
}

// PaymentGateway starts checkouts and reconciles processor callbacks with
// registration state.
type PaymentGateway struct {
	admission *AdmissionService
	provider  CheckoutProvider
	verifier  WebhookVerifier
	urls      GatewayURLs
}

// NewPaymentGateway wires the gateway onto the admission engine it writes
// through.
func NewPaymentGateway(admission *AdmissionService, provider CheckoutProvider, verifier WebhookVerifier, urls GatewayURLs) *PaymentGateway {
	return &PaymentGateway{admission: admission, provider: provider, verifier: verifier, urls: urls}
}

// InitiateCheckout records a pending payment for the caller and returns the
// processor's checkout URL. The pending row is committed before the
// processor is contacted so no lock is held across the network call.
func (g *PaymentGateway) InitiateCheckout(ctx context.Context, actor model.Actor, eventID string) (resp *model.CheckoutResponse, err error) {
	s := g.admission
	ctx, span := s.startSpan(ctx, "payment.InitiateCheckout", eventID)
	defer func() { finish(span, err) }()

	if actor.UserID == "" {
		return nil, model.Unauthorizedf("sign in to check out")
	}

	var (
		payment *model.Payment
		ev      *model.Event
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		locked, err := s.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		ev = locked
		if !ev.IsPaid() {
			return model.Validationf("event is free; register directly")
		}
		if err := checkEligible(ev, s.clock.Now()); err != nil {
			return err
		}
		current, err := s.registrations.GetRegistration(ctx, eventID, actor.UserID)
		if err != nil {
			return fmt.Errorf("get registration: %w", err)
		}
		switch model.StatusOf(current) {
		case model.StatusRegistered:
			return model.Validationf("already registered for this event")
		case model.StatusWaitlisted:
			return model.Validationf("already on the waitlist for this event")
		}
		count, err := s.confirmedCount(ctx, eventID)
		if err != nil {
			return err
		}
		if !ev.HasRoom(count) {
			return model.Capacityf("event is full (%d/%d)", count, *ev.RegistrationMax)
		}

		now := s.clock.Now()
		payment = &model.Payment{
			ID:          uuid.New().String(),
			UserID:      actor.UserID,
			EventID:     eventID,
			AmountCents: ev.Fee(),
			Status:      model.PaymentPending,
			Metadata:    model.PaymentMetadata{EventID: ev.ID, EventSlug: ev.Slug, EventTitle: ev.Title},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.payments.CreatePayment(ctx, payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.id", payment.ID))

	session, err := g.provider.CreateCheckoutSession(ctx, model.CheckoutSessionRequest{
		PaymentID:   payment.ID,
		AmountCents: payment.AmountCents,
		Description: "Registration: " + ev.Title,
		CustomerRef: actor.UserID,
		SuccessURL:  g.returnURL(g.urls.Success, ev, "success"),
		CancelURL:   g.returnURL(g.urls.Cancel, ev, "cancelled"),
		Metadata:    payment.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if err := s.payments.SetPaymentProviderRef(ctx, payment.ID, session.Reference); err != nil {
		// The webhook can still correlate through the client reference.
		logger.WithContext(ctx).Error("failed to store provider reference",
			slog.String("payment_id", payment.ID),
			slog.Any("error", err),
		)
	}

	return &model.CheckoutResponse{PaymentID: payment.ID, RedirectURL: session.RedirectURL}, nil
}

func (g *PaymentGateway) returnURL(configured string, ev *model.Event, result string) string {
	if configured != "" {
		return configured
	}
	return g.admission.eventURL(ev) + "?checkout=" + result
}

// HandleWebhook verifies a raw processor callback and applies it. Unknown
// event types are acknowledged and ignored.
func (g *PaymentGateway) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	log := logger.WithContext(ctx)

	ev, err := g.verifier.Verify(body, signature)
	if err != nil {
		g.admission.metrics.Webhook("unknown", webhookRejected)
		return err
	}
	log = log.With(slog.String("webhook_id", ev.ID), slog.String("webhook_type", string(ev.Type)))

	var outcome string
	switch ev.Type {
	case model.PaymentEventCompleted:
		outcome, err = g.HandleConfirmation(ctx, ev)
	case model.PaymentEventRefunded:
		outcome, err = g.HandleRefund(ctx, ev)
	default:
		log.Info("ignoring payment webhook")
		outcome = webhookIgnored
	}
	if err != nil {
		outcome = webhookFailed
		if errors.Is(err, model.ErrExternalPayload) {
			outcome = webhookRejected
		}
		log.Error("payment webhook failed", slog.Any("error", err))
	}
	g.admission.metrics.Webhook(string(ev.Type), outcome)
	return err
}

// HandleConfirmation applies a completed checkout exactly once. A payment
// that is no longer pending has already been applied (or refunded) and the
// call is a no-op. When the event filled while the user was paying, the
// paid user lands on the waitlist instead of failing.
func (g *PaymentGateway) HandleConfirmation(ctx context.Context, pe *model.PaymentEvent) (outcome string, err error) {
	s := g.admission
	ctx, span := s.tracer.Start(ctx, "payment.HandleConfirmation")
	defer func() { finish(span, err) }()

	p, err := g.findPayment(ctx, pe)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("payment.id", p.ID), attribute.String("event.id", p.EventID))
	if p.Status != model.PaymentPending {
		logger.WithContext(ctx).Info("payment already settled", slog.String("payment_id", p.ID), slog.String("status", string(p.Status)))
		return webhookDuplicate, nil
	}
	if pe.AmountCents != 0 && pe.AmountCents != p.AmountCents {
		return "", model.ExternalPayload(fmt.Sprintf("amount %d does not match payment %s", pe.AmountCents, p.ID), nil)
	}
	if pe.Metadata.EventID != "" && pe.Metadata.EventID != p.EventID {
		return "", model.ExternalPayload(fmt.Sprintf("event %s does not match payment %s", pe.Metadata.EventID, p.ID), nil)
	}

	outcome = webhookProcessed
	err = s.inTx(ctx, func(ctx context.Context, fx *effects) error {
		ev, err := s.lockEvent(ctx, p.EventID)
		if err != nil {
			return err
		}
		locked, err := s.payments.LockPayment(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		if locked == nil {
			return model.NotFoundf("payment %s not found", p.ID)
		}
		if locked.Status != model.PaymentPending {
			outcome = webhookDuplicate
			return nil
		}

		if err := s.payments.UpdatePaymentStatus(ctx, locked.ID, model.PaymentSucceeded); err != nil {
			return fmt.Errorf("mark payment succeeded: %w", err)
		}
		if locked.ProviderRef == nil && pe.Reference != "" {
			if err := s.payments.SetPaymentProviderRef(ctx, locked.ID, pe.Reference); err != nil {
				return fmt.Errorf("set provider reference: %w", err)
			}
		}
		if err := s.audit.CreateAuditLog(ctx, model.AuditEntry{
			Actor:      model.SystemActor,
			ActionType: model.AuditPaymentSucceeded,
			EntityType: model.EntityPayment,
			EntityID:   locked.ID,
			Summary:    fmt.Sprintf("payment %s succeeded (%d cents)", locked.ID, locked.AmountCents),
			Before:     map[string]model.PaymentStatus{"status": locked.Status},
			After:      map[string]model.PaymentStatus{"status": model.PaymentSucceeded},
		}); err != nil {
			return fmt.Errorf("audit payment: %w", err)
		}

		current, err := s.registrations.GetRegistration(ctx, locked.EventID, locked.UserID)
		if err != nil {
			return fmt.Errorf("get registration: %w", err)
		}
		if model.StatusOf(current) == model.StatusRegistered {
			// Seat was granted some other way; just record the payment.
			reg := *current
			reg.SourcePaymentID = &locked.ID
			reg.UpdatedAt = s.clock.Now()
			if err := s.registrations.SaveRegistration(ctx, &reg); err != nil {
				return fmt.Errorf("save registration: %w", err)
			}
			if err := s.audit.CreateAuditLog(ctx, model.AuditEntry{
				Actor:      model.SystemActor,
				ActionType: model.AuditRegistrationChanged,
				EntityType: model.EntityRegistration,
				EntityID:   reg.ID,
				Summary:    fmt.Sprintf("payment: payment %s attached to REGISTERED", locked.ID),
				Before:     snapshotOf(current),
				After:      snapshotOf(&reg),
			}); err != nil {
				return fmt.Errorf("audit registration: %w", err)
			}
			return nil
		}

		_, err = s.apply(ctx, transition{
			event:             ev,
			current:           current,
			userID:            locked.UserID,
			target:            model.StatusRegistered,
			actor:             model.SystemActor,
			source:            model.PromotionNone,
			paymentID:         &locked.ID,
			bypassEligibility: true,
			waitlistOnFull:    true,
			operation:         "payment",
		}, fx)
		return err
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// HandleRefund marks a payment refunded. The registration is left alone;
// revoking a seat after a refund is an officer decision.
func (g *PaymentGateway) HandleRefund(ctx context.Context, pe *model.PaymentEvent) (outcome string, err error) {
	s := g.admission
	ctx, span := s.tracer.Start(ctx, "payment.HandleRefund")
	defer func() { finish(span, err) }()

	p, err := g.findPayment(ctx, pe)
	if err != nil {
		return "", err
	}
	if p.Status == model.PaymentRefunded {
		return webhookDuplicate, nil
	}

	outcome = webhookProcessed
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		locked, err := s.payments.LockPayment(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		if locked == nil {
			return model.NotFoundf("payment %s not found", p.ID)
		}
		if locked.Status == model.PaymentRefunded {
			outcome = webhookDuplicate
			return nil
		}
		if !locked.Status.CanTransition(model.PaymentRefunded) {
			return model.Conflictf("payment %s cannot move from %s to refunded", locked.ID, locked.Status)
		}
		if err := s.payments.UpdatePaymentStatus(ctx, locked.ID, model.PaymentRefunded); err != nil {
			return fmt.Errorf("mark payment refunded: %w", err)
		}
		return s.audit.CreateAuditLog(ctx, model.AuditEntry{
			Actor:      model.SystemActor,
			ActionType: model.AuditPaymentRefunded,
			EntityType: model.EntityPayment,
			EntityID:   locked.ID,
			Summary:    fmt.Sprintf("payment %s refunded", locked.ID),
			Before:     map[string]model.PaymentStatus{"status": locked.Status},
			After:      map[string]model.PaymentStatus{"status": model.PaymentRefunded},
		})
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// findPayment correlates a callback with a local payment, first by the
// processor's session reference, then by the payment ID echoed back as the
// client reference. The fallback covers a crash between session creation and
// storing the reference.
func (g *PaymentGateway) findPayment(ctx context.Context, pe *model.PaymentEvent) (*model.Payment, error) {
	payments := g.admission.payments
	if pe.Reference != "" {
		p, err := payments.GetPaymentByProviderRef(ctx, pe.Reference)
		if err != nil {
			return nil, fmt.Errorf("get payment by reference: %w", err)
		}
		if p != nil {
			return p, nil
		}
	}
	if pe.ClientReference != "" {
		p, err := payments.GetPayment(ctx, pe.ClientReference)
		if err != nil {
			return nil, fmt.Errorf("get payment: %w", err)
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, model.NotFoundf("no payment matches reference %q", pe.Reference)
}
