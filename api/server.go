/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/reservations/*   Reservation lifecycle
  /api/users/*          Per-user reservation lists
  /api/room-types/*     Capacity catalog and availability
  /api/webhooks/*       Payment gateway callbacks
  /api/admin/*          Sweep, reconciliation, audit trail

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public and
  webhook payloads are assumed signature-verified upstream.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Reservation routes
		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.CreateReservation)
			r.Get("/{id}", h.GetReservation)
			r.Post("/{id}/payment-proof", h.SubmitPaymentProof)
			r.Post("/{id}/confirm", h.ConfirmReservation)
			r.Post("/{id}/reject", h.RejectReservation)
			r.Post("/{id}/cancel", h.CancelReservation)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/{id}/reservations", h.ListUserReservations)
		})

		// Room type routes
		r.Route("/room-types", func(r chi.Router) {
			r.Post("/", h.CreateRoomType)
			r.Get("/{id}", h.GetRoomType)
			r.Put("/{id}/quantity", h.UpdateRoomTypeQuantity)
			r.Get("/{id}/availability", h.GetAvailability)
		})

		// Webhook routes
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/payment", h.PaymentWebhook)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
			r.Post("/reconcile", h.TriggerReconcile)
			r.Get("/corrections", h.ListCorrections)
		})
	})

	return r
}
