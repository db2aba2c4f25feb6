/**
 * @description
 * This file sets up the HTTP router for the treasury-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies the necessary middleware for authentication and throttling.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TreasuryRoutes creates and returns a new router for the treasury service.
//
// The inbound email webhook and the action link endpoint are public by
// design: the webhook is authenticated by payload provenance checks and the
// action link by its signed token. Dashboard endpoints require a JWT, and
// the batch trigger requires the internal service key.
func TreasuryRoutes(h *TreasuryHandlers, jwksURL, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public endpoints reached from email infrastructure.
	r.Post("/treasury/webhooks/inbound-email", h.InboundEmailWebhookHandler)
	r.Get("/treasury/requests/{requestID}/action", h.ActionLinkHandler)

	// Group routes that require dashboard authentication.
	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(jwksURL))

		r.Post("/treasury/requests", h.CreateDrawRequestHandler)
		r.Get("/treasury/requests", h.ListDrawRequestsHandler)
		r.Get("/treasury/requests/{requestID}", h.GetDrawRequestHandler)
		r.Post("/treasury/requests/{requestID}/approve", h.ApproveDrawRequestHandler)
		r.Post("/treasury/requests/{requestID}/reject", h.RejectDrawRequestHandler)
		r.Post("/treasury/requests/{requestID}/cancel", h.CancelDrawRequestHandler)
		r.Put("/treasury/requests/{requestID}/pdf", h.AttachPDFHandler)

		r.Get("/treasury/settings", h.GetSettingsHandler)
		r.Put("/treasury/settings", h.UpdateSettingsHandler)
	})

	// Internal endpoint for service-to-service batch triggering.
	r.Group(func(r chi.Router) {
		r.Use(InternalKeyMiddleware(internalAPIKey))

		r.Post("/internal/treasury/auto-send/run", h.RunAutoSendHandler)
	})

	return r
}
