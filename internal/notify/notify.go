// Package notify delivers admission notifications to the notification
// service. Delivery is fire-and-forget: callers log failures and move on.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/event-admission/internal/logger"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// Publisher sends a JSON-encodable message on a subject.
type Publisher interface {
	Publish(subject string, data any) error
}

// Message is the envelope the notification service consumes.
type Message struct {
	model.Notification
	RequestID string `json:"requestId,omitempty"`
}

// NATSNotifier publishes notifications to a NATS subject.
type NATSNotifier struct {
	pub     Publisher
	subject string
}

// NewNATSNotifier publishes every notification on subject.
func NewNATSNotifier(pub Publisher, subject string) *NATSNotifier {
	return &NATSNotifier{pub: pub, subject: subject}
}

// SendNotification publishes msg with the request id attached.
func (n *NATSNotifier) SendNotification(ctx context.Context, msg model.Notification) error {
	env := Message{Notification: msg, RequestID: middleware.GetReqID(ctx)}
	if err := n.pub.Publish(n.subject, env); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	logger.WithContext(ctx).Debug("notification published",
		slog.String("subject", n.subject),
		slog.String("type", msg.Type),
		slog.String("recipient", msg.UserID),
	)
	return nil
}

// LogNotifier writes notifications to the log. It stands in when no broker
// is configured.
type LogNotifier struct{}

// SendNotification logs msg and always succeeds.
func (LogNotifier) SendNotification(ctx context.Context, msg model.Notification) error {
	logger.WithContext(ctx).Info("notification",
		slog.String("type", msg.Type),
		slog.String("recipient", msg.UserID),
		slog.String("title", msg.Title),
		slog.String("action_url", msg.ActionURL),
	)
	return nil
}
