// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the admission services.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/event-admission/internal/logger"
	"github.com/Shivanand-hulikatti/event-admission/internal/model"
	"github.com/Shivanand-hulikatti/event-admission/internal/payment"
)

// Admission is the registration surface of the admission service.
type Admission interface {
	Register(ctx context.Context, actor model.Actor, eventID string, intent model.Intent) (*model.AdmissionResult, error)
	GetSnapshot(ctx context.Context, actor model.Actor, eventID string) (*model.Snapshot, error)
	OverrideStatus(ctx context.Context, actor model.Actor, eventID, userID string, status model.Status, reason string) (*model.AdmissionResult, error)
	RemoveRegistration(ctx context.Context, actor model.Actor, eventID, userID string) ([]string, error)
	ReorderWaitlist(ctx context.Context, actor model.Actor, eventID string, ids []string) ([]model.WaitlistEntry, error)
	CapacityChanged(ctx context.Context, actor model.Actor, eventID string) ([]string, error)
	ListRegistrations(ctx context.Context, actor model.Actor, eventID string, status model.Status) ([]model.Registration, error)
}

// Payments is the checkout and webhook surface of the payment gateway.
type Payments interface {
	InitiateCheckout(ctx context.Context, actor model.Actor, eventID string) (*model.CheckoutResponse, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

// AdmissionHandler holds all HTTP handlers for the admission API.
type AdmissionHandler struct {
	admission Admission
	payments  Payments
}

// NewAdmissionHandler constructs an AdmissionHandler.
func NewAdmissionHandler(admission Admission, payments Payments) *AdmissionHandler {
	return &AdmissionHandler{admission: admission, payments: payments}
}

// PromotedResponse lists users promoted as a side effect of the call.
type PromotedResponse struct {
	Promoted []string `json:"promoted"`
}

// WaitlistResponse is the waitlist after a reorder.
type WaitlistResponse struct {
	Waitlist []model.WaitlistEntry `json:"waitlist"`
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code})
}

// writeDomainError maps an error kind to its status code. Anything that is
// not a domain error is logged and reported as a bare 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case model.KindValidation, model.KindExternalPayload:
		status = http.StatusBadRequest
	case model.KindCapacity, model.KindConflict:
		status = http.StatusConflict
	case model.KindUnauthorized:
		status = http.StatusForbidden
	case model.KindNotFound:
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, "internal", "internal server error")
		return
	}
	writeError(w, status, string(kind), err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func emptyIfNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// ─── Member handlers ──────────────────────────────────────────────────────────

// Register handles POST /events/{eventID}/registration.
// A full event answers 200 with WAITLISTED when the waitlist is open.
func (h *AdmissionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(model.KindValidation), "invalid request body: "+err.Error())
		return
	}

	res, err := h.admission.Register(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "eventID"), req.Intent)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetSnapshot handles GET /events/{eventID}/admission. Anonymous callers get
// counts and attendees only.
func (h *AdmissionHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.admission.GetSnapshot(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "eventID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if snap.Attendees == nil {
		snap.Attendees = []model.Attendee{}
	}
	writeJSON(w, http.StatusOK, snap)
}

// InitiateCheckout handles POST /events/{eventID}/checkout.
func (h *AdmissionHandler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	resp, err := h.payments.InitiateCheckout(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "eventID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ─── Admin handlers ───────────────────────────────────────────────────────────

// OverrideStatus handles PUT /admin/events/{eventID}/registrations/{userID}.
func (h *AdmissionHandler) OverrideStatus(w http.ResponseWriter, r *http.Request) {
	var req model.OverrideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(model.KindValidation), "invalid request body: "+err.Error())
		return
	}

	res, err := h.admission.OverrideStatus(r.Context(), actorFrom(r.Context()),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "userID"), req.Status, req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RemoveRegistration handles DELETE /admin/events/{eventID}/registrations/{userID}.
func (h *AdmissionHandler) RemoveRegistration(w http.ResponseWriter, r *http.Request) {
	promoted, err := h.admission.RemoveRegistration(r.Context(), actorFrom(r.Context()),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PromotedResponse{Promoted: emptyIfNil(promoted)})
}

// ListRegistrations handles GET /admin/events/{eventID}/registrations,
// optionally filtered by ?status=.
func (h *AdmissionHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	status := model.Status(r.URL.Query().Get("status"))
	if status != model.StatusNone && !status.Valid() {
		writeError(w, http.StatusBadRequest, string(model.KindValidation), "unknown status filter "+string(status))
		return
	}

	regs, err := h.admission.ListRegistrations(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "eventID"), status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// ReorderWaitlist handles PUT /admin/events/{eventID}/waitlist.
func (h *AdmissionHandler) ReorderWaitlist(w http.ResponseWriter, r *http.Request) {
	var req model.ReorderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(model.KindValidation), "invalid request body: "+err.Error())
		return
	}

	entries, err := h.admission.ReorderWaitlist(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "eventID"), req.RegistrationIDs)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.WaitlistEntry{}
	}
	writeJSON(w, http.StatusOK, WaitlistResponse{Waitlist: entries})
}

// CapacityChanged handles POST /admin/events/{eventID}/capacity-changed.
func (h *AdmissionHandler) CapacityChanged(w http.ResponseWriter, r *http.Request) {
	promoted, err := h.admission.CapacityChanged(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "eventID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PromotedResponse{Promoted: emptyIfNil(promoted)})
}

// ─── Webhooks ─────────────────────────────────────────────────────────────────

// PaymentWebhook handles POST /webhooks/payments. The body is read raw so the
// signature is checked over the exact bytes the processor sent. Any non-2xx
// answer makes the processor retry.
func (h *AdmissionHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(model.KindExternalPayload), "unreadable body")
		return
	}

	if err := h.payments.HandleWebhook(r.Context(), body, r.Header.Get(payment.SignatureHeader)); err != nil {
		logger.WithContext(r.Context()).Warn("payment webhook not accepted", "error", err)
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck handles GET /health. It answers 503 while the database is
// unreachable.
func HealthCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				logger.WithContext(r.Context()).Warn("health check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
