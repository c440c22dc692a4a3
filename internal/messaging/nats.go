// Package messaging wraps the NATS connection used for outbound
// notifications and inbound capacity-change signals.
package messaging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Shivanand-hulikatti/event-admission/internal/config"
)

// Client is a thin JSON layer over a core NATS connection.
type Client struct {
	conn *nats.Conn
}

// Connect dials NATS with reconnects enabled.
func Connect(cfg config.NATS) (*Client, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("connected to nats", "url", conn.ConnectedUrl(), "name", cfg.Name)
	return &Client{conn: conn}, nil
}

// Publish marshals data as JSON and publishes it on subject.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	return nil
}

// QueueSubscribe delivers each message on subject to one member of queue.
func (c *Client) QueueSubscribe(subject, queue string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.conn.QueueSubscribe(subject, queue, handler)
	if err != nil {
		return nil, fmt.Errorf("failed to queue subscribe to subject %s: %w", subject, err)
	}
	slog.Info("subscribed", "subject", subject, "queue", queue)
	return sub, nil
}

// Connected reports whether the connection is currently usable.
func (c *Client) Connected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains subscriptions and closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Drain()
}
