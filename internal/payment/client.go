// Package payment talks to the external payment processor: it creates hosted
// checkout sessions and authenticates the processor's webhook callbacks.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/config"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// Client creates checkout sessions over the processor's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	currency   string
	httpClient *http.Client
}

type sessionRequest struct {
	ClientReference string                `json:"client_reference"`
	Amount          int64                 `json:"amount"`
	Currency        string                `json:"currency"`
	Description     string                `json:"description,omitempty"`
	Customer        string                `json:"customer,omitempty"`
	SuccessURL      string                `json:"success_url"`
	CancelURL       string                `json:"cancel_url"`
	Metadata        model.PaymentMetadata `json:"metadata"`
}

type sessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.Payment) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		currency: cfg.Currency,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateCheckoutSession asks the processor for a hosted checkout page. The
// local payment ID travels as the client reference so callbacks can be
// correlated even if the session ID was never stored.
func (c *Client) CreateCheckoutSession(ctx context.Context, req model.CheckoutSessionRequest) (*model.CheckoutSession, error) {
	body, err := json.Marshal(sessionRequest{
		ClientReference: req.PaymentID,
		Amount:          req.AmountCents,
		Currency:        c.currency,
		Description:     req.Description,
		Customer:        req.CustomerRef,
		SuccessURL:      req.SuccessURL,
		CancelURL:       req.CancelURL,
		Metadata:        req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	// Retrying with the same key never creates a second session.
	httpReq.Header.Set("Idempotency-Key", req.PaymentID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
			return nil, fmt.Errorf("checkout session rejected (%d): %s", resp.StatusCode, e.Error.Message)
		}
		return nil, fmt.Errorf("checkout session rejected (%d)", resp.StatusCode)
	}

	var result sessionResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.ID == "" || result.URL == "" {
		return nil, fmt.Errorf("checkout session response missing id or url")
	}
	return &model.CheckoutSession{Reference: result.ID, RedirectURL: result.URL}, nil
}
