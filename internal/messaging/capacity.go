package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// CapacityChanged is published by the event metadata service after an
// event's registrationMax or waitlist settings change.
type CapacityChanged struct {
	EventID string `json:"event_id"`
}

// PromoteFunc runs promotion for one event.
type PromoteFunc func(ctx context.Context, eventID string) ([]string, error)

// CapacityHandler returns a NATS handler that runs promote for every valid
// capacity-changed message. Each message gets its own bounded context.
func CapacityHandler(promote PromoteFunc, timeout time.Duration) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var ev CapacityChanged
		if err := json.Unmarshal(msg.Data, &ev); err != nil || ev.EventID == "" {
			slog.Warn("dropping malformed capacity message", "subject", msg.Subject, "error", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		promoted, err := promote(ctx, ev.EventID)
		if err != nil {
			slog.Error("capacity promotion failed", "event_id", ev.EventID, "error", err)
			return
		}
		if len(promoted) > 0 {
			slog.Info("promoted after capacity change", "event_id", ev.EventID, "count", len(promoted))
		}
	}
}
