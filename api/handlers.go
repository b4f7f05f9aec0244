/*
handlers.go - HTTP API handlers for the booking engine

PURPOSE:
  Exposes the reservation and availability engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Reservations:
    POST   /api/reservations                      Create reservation (debits capacity)
    GET    /api/reservations/{id}                 Get reservation
    POST   /api/reservations/{id}/payment-proof   Attach payment evidence
    POST   /api/reservations/{id}/confirm         Owner confirms payment
    POST   /api/reservations/{id}/reject          Owner rejects payment
    POST   /api/reservations/{id}/cancel          Guest or owner cancels
    GET    /api/users/{id}/reservations           A user's reservations

  Room types:
    POST   /api/room-types                        Create room type
    GET    /api/room-types/{id}                   Get room type
    PUT    /api/room-types/{id}/quantity          Change capacity
    GET    /api/room-types/{id}/availability      Per-date remaining units

  Webhooks:
    POST   /api/webhooks/payment                  Verified gateway callback

  Admin:
    POST   /api/admin/sweep                       Run an expiry sweep now
    POST   /api/admin/reconcile                   Repair oversold ledger rows
    GET    /api/admin/corrections                 Reconciliation audit trail

ERROR HANDLING:
  Domain errors map to HTTP status codes in writeDomainError:
  - 400: Invalid range or malformed input
  - 403: Requester not allowed to act on the reservation
  - 404: Room type or reservation not found
  - 409: Insufficient capacity, invalid lifecycle transition
  - 500: Store failures

  Capacity conflicts deliberately return a generic "not available for the
  selected dates" message: remaining-unit counts are not leaked to guests.

SECURITY NOTE:
  Currently NO authentication middleware. Requester identity comes from
  request bodies and webhook signatures are assumed verified upstream.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/booking-engine/booking"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      booking.TxStore
	Ledger     *booking.Ledger
	Controller *booking.Controller
	Webhook    *booking.WebhookAdapter
	Sweeper    *booking.Sweeper
	Reconciler *booking.Reconciler
}

// NewHandler creates a new handler around a wired engine.
func NewHandler(store booking.TxStore, controller *booking.Controller, webhook *booking.WebhookAdapter, sweeper *booking.Sweeper, reconciler *booking.Reconciler) *Handler {
	return &Handler{
		Store:      store,
		Ledger:     booking.NewLedger(store),
		Controller: controller,
		Webhook:    webhook,
		Sweeper:    sweeper,
		Reconciler: reconciler,
	}
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// CreateReservation admits or rejects a booking request.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || req.RoomTypeID == "" {
		writeError(w, http.StatusBadRequest, "user_id and room_type_id are required", nil)
		return
	}

	rng, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	res, err := h.Controller.Create(r.Context(), booking.CreateInput{
		UserID:     booking.UserID(req.UserID),
		RoomTypeID: booking.RoomTypeID(req.RoomTypeID),
		Range:      rng,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toReservationDTO(res))
}

// GetReservation returns a single reservation.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id := booking.ReservationID(chi.URLParam(r, "id"))

	res, err := h.Controller.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// ListUserReservations returns a user's reservations, newest first.
func (h *Handler) ListUserReservations(w http.ResponseWriter, r *http.Request) {
	userID := booking.UserID(chi.URLParam(r, "id"))

	reservations, err := h.Controller.ListByUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTOs(reservations))
}

// SubmitPaymentProof attaches payment evidence to a pending reservation.
func (h *Handler) SubmitPaymentProof(w http.ResponseWriter, r *http.Request) {
	id := booking.ReservationID(chi.URLParam(r, "id"))

	var req SubmitProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.FileRef == "" {
		writeError(w, http.StatusBadRequest, "file_ref is required", nil)
		return
	}

	res, err := h.Controller.SubmitPaymentProof(r.Context(), id, req.FileRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// ConfirmReservation finalizes a paid reservation.
func (h *Handler) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	id := booking.ReservationID(chi.URLParam(r, "id"))

	res, err := h.Controller.Confirm(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// RejectReservation refuses a submitted payment and releases capacity.
func (h *Handler) RejectReservation(w http.ResponseWriter, r *http.Request) {
	id := booking.ReservationID(chi.URLParam(r, "id"))

	res, err := h.Controller.Reject(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// CancelReservation releases a not-yet-confirmed reservation.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id := booking.ReservationID(chi.URLParam(r, "id"))

	var req CancelReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.RequesterID == "" {
		writeError(w, http.StatusBadRequest, "requester_id is required", nil)
		return
	}

	res, err := h.Controller.Cancel(r.Context(), id, booking.UserID(req.RequesterID))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// =============================================================================
// ROOM TYPE HANDLERS
// =============================================================================

// CreateRoomType registers a new sellable room category.
func (h *Handler) CreateRoomType(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PropertyID == "" || req.OwnerID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "property_id, owner_id and name are required", nil)
		return
	}
	if req.TotalQuantity < 0 {
		writeError(w, http.StatusBadRequest, "total_quantity must not be negative", nil)
		return
	}

	rate, err := decimal.NewFromString(req.NightlyRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid nightly_rate", err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	rt := booking.RoomType{
		ID:            booking.RoomTypeID(id),
		PropertyID:    booking.PropertyID(req.PropertyID),
		OwnerID:       booking.UserID(req.OwnerID),
		Name:          req.Name,
		TotalQuantity: req.TotalQuantity,
		NightlyRate:   rate,
		CreatedAt:     time.Now().UTC(),
	}

	if err := h.Store.SaveRoomType(r.Context(), rt); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRoomTypeDTO(&rt))
}

// GetRoomType returns a single room type.
func (h *Handler) GetRoomType(w http.ResponseWriter, r *http.Request) {
	id := booking.RoomTypeID(chi.URLParam(r, "id"))

	rt, err := h.Store.GetRoomType(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRoomTypeDTO(rt))
}

// UpdateRoomTypeQuantity changes authoritative capacity. Oversold ledger
// rows left behind by a reduction are repaired by reconciliation.
func (h *Handler) UpdateRoomTypeQuantity(w http.ResponseWriter, r *http.Request) {
	id := booking.RoomTypeID(chi.URLParam(r, "id"))

	var req UpdateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TotalQuantity < 0 {
		writeError(w, http.StatusBadRequest, "total_quantity must not be negative", nil)
		return
	}

	if err := h.Store.UpdateRoomTypeQuantity(r.Context(), id, req.TotalQuantity); err != nil {
		writeDomainError(w, err)
		return
	}

	rt, err := h.Store.GetRoomType(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomTypeDTO(rt))
}

// GetAvailability returns per-date remaining units over ?start=..&end=..
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	id := booking.RoomTypeID(chi.URLParam(r, "id"))

	rng, err := parseRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start/end format (use YYYY-MM-DD)", err)
		return
	}

	days, err := h.Ledger.GetAvailabilityRange(r.Context(), id, rng)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]DayAvailabilityDTO, len(days))
	for i, d := range days {
		dtos[i] = DayAvailabilityDTO{Date: d.Date.String(), Available: d.Available}
	}
	writeJSON(w, http.StatusOK, AvailabilityDTO{RoomTypeID: string(id), Days: dtos})
}

// =============================================================================
// WEBHOOK HANDLERS
// =============================================================================

// PaymentWebhook applies a verified gateway event. Redeliveries of the same
// external payment id return 200 without re-applying anything.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req PaymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ExternalPaymentID == "" || req.ReservationID == "" {
		writeError(w, http.StatusBadRequest, "external_payment_id and reservation_id are required", nil)
		return
	}

	outcome := booking.PaymentOutcome(req.Outcome)
	if outcome != booking.PaymentSucceeded && outcome != booking.PaymentFailed {
		writeError(w, http.StatusBadRequest, "outcome must be \"success\" or \"failure\"", nil)
		return
	}

	err := h.Webhook.ProcessEvent(r.Context(), booking.PaymentEvent{
		ExternalPaymentID: req.ExternalPaymentID,
		ReservationID:     booking.ReservationID(req.ReservationID),
		Outcome:           outcome,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerSweep runs one expiry pass immediately.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	expired, skipped, err := h.Sweeper.SweepOnce(r.Context(), time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Expired: expired, Skipped: skipped})
}

// TriggerReconcile repairs oversold availability rows and returns the
// corrections applied.
func (h *Handler) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	corrections, err := h.Reconciler.Run(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCorrectionDTOs(corrections))
}

// ListCorrections returns the reconciliation audit trail.
func (h *Handler) ListCorrections(w http.ResponseWriter, r *http.Request) {
	corrections, err := h.Store.ListCorrections(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCorrectionDTOs(corrections))
}

// =============================================================================
// HELPERS
// =============================================================================

func parseRange(start, end string) (booking.DateRange, error) {
	s, err := booking.ParseDate(start)
	if err != nil {
		return booking.DateRange{}, err
	}
	e, err := booking.ParseDate(end)
	if err != nil {
		return booking.DateRange{}, err
	}
	return booking.NewDateRange(s, e), nil
}

// writeDomainError translates engine errors into HTTP responses.
func writeDomainError(w http.ResponseWriter, err error) {
	var capErr *booking.InsufficientCapacityError

	switch {
	case errors.Is(err, booking.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
	case booking.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.As(err, &capErr):
		// Do not leak remaining-unit counts to guests.
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "Room is not available for the selected dates",
			Code:  "insufficient_capacity",
		})
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Reservation is not in a state that allows this action", err)
	case errors.Is(err, booking.ErrNotAllowed):
		writeError(w, http.StatusForbidden, "Not allowed", nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
