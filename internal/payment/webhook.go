package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/clock"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// SignatureHeader carries "t=<unix seconds>,v1=<hex hmac>" on every callback.
const SignatureHeader = "Payment-Signature"

var (
	errMalformedSignature = errors.New("malformed signature header")
	errSignatureMismatch  = errors.New("signature mismatch")
	errStaleTimestamp     = errors.New("timestamp outside tolerance")
)

// Verifier authenticates webhook bodies with the shared signing secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	clock     clock.Clock
}

// NewVerifier returns a Verifier. A zero tolerance disables the timestamp
// check.
func NewVerifier(secret string, tolerance time.Duration, c clock.Clock) *Verifier {
	if c == nil {
		c = clock.NewSystem()
	}
	return &Verifier{secret: []byte(secret), tolerance: tolerance, clock: c}
}

// Sign computes the header value for body at ts. The processor does the same
// on its side; tests use it to build valid deliveries.
func Sign(secret string, ts time.Time, body []byte) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + t + ",v1=" + hex.EncodeToString(mac([]byte(secret), t, body))
}

func mac(secret []byte, t string, body []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(t))
	h.Write([]byte("."))
	h.Write(body)
	return h.Sum(nil)
}

// Verify checks the signature and timestamp and decodes the event. Nothing
// in body is trusted until the signature matches.
func (v *Verifier) Verify(body []byte, header string) (*model.PaymentEvent, error) {
	ts, sigs, err := parseHeader(header)
	if err != nil {
		return nil, model.ExternalPayload("invalid webhook signature", err)
	}

	expected := mac(v.secret, ts, body)
	matched := false
	for _, sig := range sigs {
		got, err := hex.DecodeString(sig)
		if err == nil && hmac.Equal(got, expected) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, model.ExternalPayload("invalid webhook signature", errSignatureMismatch)
	}

	if v.tolerance > 0 {
		unix, _ := strconv.ParseInt(ts, 10, 64)
		age := v.clock.Now().Sub(time.Unix(unix, 0))
		if age < 0 {
			age = -age
		}
		if age > v.tolerance {
			return nil, model.ExternalPayload("invalid webhook signature", errStaleTimestamp)
		}
	}

	var ev model.PaymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, model.ExternalPayload("invalid webhook body", err)
	}
	if ev.Type == "" {
		return nil, model.ExternalPayload("invalid webhook body", fmt.Errorf("missing event type"))
	}
	known := ev.Type == model.PaymentEventCompleted || ev.Type == model.PaymentEventRefunded
	if known && ev.Reference == "" && ev.ClientReference == "" {
		return nil, model.ExternalPayload("invalid webhook body", fmt.Errorf("missing payment reference"))
	}
	return &ev, nil
}

func parseHeader(header string) (string, []string, error) {
	var (
		ts   string
		sigs []string
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			sigs = append(sigs, val)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return "", nil, errMalformedSignature
	}
	if _, err := strconv.ParseInt(ts, 10, 64); err != nil {
		return "", nil, errMalformedSignature
	}
	return ts, sigs, nil
}
