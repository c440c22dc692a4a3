package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func TestCapacityHandler(t *testing.T) {
	var calls []string
	promote := func(ctx context.Context, eventID string) ([]string, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		calls = append(calls, eventID)
		if eventID == "broken" {
			return nil, errors.New("lock timeout")
		}
		return []string{"user-1"}, nil
	}
	handle := CapacityHandler(promote, time.Second)

	handle(&nats.Msg{Subject: "events.capacity_changed", Data: []byte(`{"event_id":"ev-1"}`)})
	handle(&nats.Msg{Subject: "events.capacity_changed", Data: []byte(`{"event_id":"broken"}`)})
	handle(&nats.Msg{Subject: "events.capacity_changed", Data: []byte(`not json`)})
	handle(&nats.Msg{Subject: "events.capacity_changed", Data: []byte(`{}`)})

	assert.Equal(t, []string{"ev-1", "broken"}, calls)
}
