/**
 * @description
 * This file contains the HTTP handlers for the treasury-service's API
 * endpoints. Handlers parse incoming requests, call the workflow service,
 * and write the HTTP response. They are the bridge between the web layer and
 * the approval engine; none of them contain workflow logic themselves.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: Service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/transfa/treasury-service/internal/app"
	"github.com/transfa/treasury-service/internal/domain"
	"github.com/transfa/treasury-service/internal/store"
)

// TreasuryHandlers holds the application service that handlers will use.
type TreasuryHandlers struct {
	service           *app.Service
	actionRateLimiter *app.RedisActionRateLimiter
	actionRatePerMin  int
}

// NewTreasuryHandlers creates a new instance of TreasuryHandlers.
func NewTreasuryHandlers(service *app.Service) *TreasuryHandlers {
	return &TreasuryHandlers{service: service}
}

// SetActionRateLimiter enables Redis-backed throttling of the public action
// link endpoint.
func (h *TreasuryHandlers) SetActionRateLimiter(limiter *app.RedisActionRateLimiter, perMinute int) {
	h.actionRateLimiter = limiter
	h.actionRatePerMin = perMinute
}

func (h *TreasuryHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

func (h *TreasuryHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// InboundEmailWebhookHandler receives treasurer reply emails from the mail
// webhook collaborator. Provenance rejections and unclear classifications
// answer 200; only a malformed payload or a storage failure is an error.
func (h *TreasuryHandlers) InboundEmailWebhookHandler(w http.ResponseWriter, r *http.Request) {
	var email domain.InboundEmail
	if err := json.NewDecoder(r.Body).Decode(&email); err != nil {
		log.Printf("level=warn component=api endpoint=inbound_email outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.HandleInboundEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, app.ErrInvalidEmailPayload) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=inbound_email outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	log.Printf("level=info component=api endpoint=inbound_email outcome=%s request_number=%s transitioned=%t", result.Outcome, result.RequestNumber, result.Transitioned)
	h.writeJSON(w, http.StatusOK, result)
}

// ActionLinkHandler serves the tokenized approve/reject links embedded in
// treasurer emails. Responses are plain text because the link is opened from
// a mail client, not by an API consumer.
func (h *TreasuryHandlers) ActionLinkHandler(w http.ResponseWriter, r *http.Request) {
	if h.actionRateLimiter != nil && h.actionRatePerMin > 0 {
		clientIP := clientAddress(r)
		count, retryAfter, err := h.actionRateLimiter.ConsumeRateLimit(r.Context(), "action_link", clientIP, h.actionRatePerMin, time.Minute)
		if err != nil {
			log.Printf("level=warn component=api endpoint=action_link msg=\"rate limiter unavailable; allowing request\" err=%v", err)
		} else if count > h.actionRatePerMin {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, "Too many requests. Please try again shortly.", http.StatusTooManyRequests)
			return
		}
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		http.Error(w, "Invalid request id.", http.StatusBadRequest)
		return
	}
	action := r.URL.Query().Get("action")
	rawToken := r.URL.Query().Get("token")

	result, err := h.service.HandleWebAction(r.Context(), requestID, action, rawToken)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAction):
			http.Error(w, "Unknown action.", http.StatusBadRequest)
		case errors.Is(err, app.ErrInvalidToken):
			log.Printf("level=warn component=api endpoint=action_link outcome=reject reason=invalid_token request_id=%s action=%s", requestID, action)
			http.Error(w, "This link is invalid or has expired. Please use the dashboard instead.", http.StatusForbidden)
		case errors.Is(err, store.ErrRequestNotFound):
			http.Error(w, "Draw request not found.", http.StatusNotFound)
		default:
			log.Printf("level=error component=api endpoint=action_link outcome=failed request_id=%s err=%v", requestID, err)
			http.Error(w, "Something went wrong. Please try again.", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !result.Transitioned {
		fmt.Fprintf(w, "Draw request %s was already decided (current status: %s). No changes were made.\n",
			result.Request.RequestNumber, result.Request.Status)
		return
	}
	fmt.Fprintf(w, "Draw request %s has been %s. Thank you!\n", result.Request.RequestNumber, result.Request.Status)
}

func clientAddress(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// CreateDrawRequestHandler creates a new draw request from unclaimed
// withdrawals.
func (h *TreasuryHandlers) CreateDrawRequestHandler(w http.ResponseWriter, r *http.Request) {
	var payload domain.CreateDrawRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if subject, ok := GetAuthSubject(r.Context()); ok && payload.CreatedBy == "" {
		payload.CreatedBy = subject
	}

	request, items, err := h.service.CreateDrawRequest(r.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrNoWithdrawals), errors.Is(err, app.ErrTreasurerRequired):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrWithdrawalUnavailable):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			log.Printf("level=error component=api endpoint=create_request outcome=failed err=%v", err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	log.Printf("level=info component=api endpoint=create_request outcome=created request_number=%s total_cents=%d items=%d", request.RequestNumber, request.TotalAmountCents, len(items))
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"request": request,
		"items":   items,
	})
}

// ListDrawRequestsHandler lists requests with optional typed filters.
func (h *TreasuryHandlers) ListDrawRequestsHandler(w http.ResponseWriter, r *http.Request) {
	opts := domain.DrawRequestListOptions{
		Status:        r.URL.Query().Get("status"),
		PayeeContains: r.URL.Query().Get("payee"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	if v := r.URL.Query().Get("created_after"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.CreatedAfter = &t
		}
	}
	if v := r.URL.Query().Get("created_before"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.CreatedBefore = &t
		}
	}

	requests, err := h.service.ListDrawRequests(r.Context(), opts)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_requests outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

// GetDrawRequestHandler returns one request with its items and communication
// trail.
func (h *TreasuryHandlers) GetDrawRequestHandler(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request id")
		return
	}

	request, items, err := h.service.GetDrawRequest(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			h.writeError(w, http.StatusNotFound, "Draw request not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_request outcome=failed request_id=%s err=%v", requestID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	communications, err := h.service.ListCommunications(r.Context(), requestID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=get_request msg=\"failed to load communications\" request_id=%s err=%v", requestID, err)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"request":        request,
		"items":          items,
		"communications": communications,
	})
}

type transitionPayload struct {
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type transitionResponse struct {
	Transitioned bool   `json:"transitioned"`
	Message      string `json:"message"`
}

func (h *TreasuryHandlers) decideRequest(w http.ResponseWriter, r *http.Request, decide func(requestID uuid.UUID, actor string, payload transitionPayload) (bool, error)) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request id")
		return
	}
	actor, _ := GetAuthSubject(r.Context())

	var payload transitionPayload
	if r.Body != nil {
		// An empty body is fine for approve/cancel.
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	transitioned, err := decide(requestID, actor, payload)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrReasonRequired):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrRequestNotFound):
			h.writeError(w, http.StatusNotFound, "Draw request not found")
		default:
			log.Printf("level=error component=api endpoint=transition outcome=failed request_id=%s err=%v", requestID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	response := transitionResponse{Transitioned: transitioned, Message: "Decision recorded"}
	if !transitioned {
		response.Message = "Request was already decided; no changes were made"
	}
	h.writeJSON(w, http.StatusOK, response)
}

// ApproveDrawRequestHandler approves a pending request on behalf of the
// authenticated dashboard user.
func (h *TreasuryHandlers) ApproveDrawRequestHandler(w http.ResponseWriter, r *http.Request) {
	h.decideRequest(w, r, func(requestID uuid.UUID, actor string, payload transitionPayload) (bool, error) {
		var message *string
		if payload.Message != "" {
			message = &payload.Message
		}
		return h.service.ApproveRequest(r.Context(), requestID, actor, message)
	})
}

// RejectDrawRequestHandler rejects a pending request; a reason is required.
func (h *TreasuryHandlers) RejectDrawRequestHandler(w http.ResponseWriter, r *http.Request) {
	h.decideRequest(w, r, func(requestID uuid.UUID, actor string, payload transitionPayload) (bool, error) {
		return h.service.RejectRequest(r.Context(), requestID, actor, payload.Reason)
	})
}

// CancelDrawRequestHandler cancels a pending request.
func (h *TreasuryHandlers) CancelDrawRequestHandler(w http.ResponseWriter, r *http.Request) {
	h.decideRequest(w, r, func(requestID uuid.UUID, actor string, payload transitionPayload) (bool, error) {
		return h.service.CancelRequest(r.Context(), requestID, actor)
	})
}

// AttachPDFHandler records the rendered request PDF's location.
func (h *TreasuryHandlers) AttachPDFHandler(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request id")
		return
	}

	var payload struct {
		PDFURL string `json:"pdf_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if err := h.service.AttachPDF(r.Context(), requestID, payload.PDFURL); err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			h.writeError(w, http.StatusNotFound, "Draw request not found")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "PDF attached"})
}

// GetSettingsHandler returns the auto-send configuration.
func (h *TreasuryHandlers) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetTreasurySettings(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=get_settings outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// UpdateSettingsHandler applies a partial settings update.
func (h *TreasuryHandlers) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var payload domain.UpdateTreasurySettingsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	settings, err := h.service.UpdateTreasurySettings(r.Context(), payload)
	if err != nil {
		if errors.Is(err, app.ErrInvalidSettings) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=update_settings outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// RunAutoSendHandler triggers one auto-send batch run. Intended for the
// external scheduler and for operators; batch item failures are reported in
// the body, never as an HTTP error.
func (h *TreasuryHandlers) RunAutoSendHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MaxRequests int `json:"max_requests"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	report, err := h.service.RunAutoSendBatch(r.Context(), payload.MaxRequests)
	if err != nil {
		log.Printf("level=error component=api endpoint=run_auto_send outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}
