/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/booking-engine/booking"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CreateReservationRequest is a guest's booking request.
type CreateReservationRequest struct {
	UserID     string `json:"user_id"`
	RoomTypeID string `json:"room_type_id"`
	StartDate  string `json:"start_date"` // YYYY-MM-DD, inclusive
	EndDate    string `json:"end_date"`   // YYYY-MM-DD, exclusive
}

// ReservationDTO represents a reservation in API responses.
type ReservationDTO struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	RoomTypeID      string  `json:"room_type_id"`
	PropertyID      string  `json:"property_id"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	Nights          int     `json:"nights"`
	Status          string  `json:"status"`
	PaymentAmount   string  `json:"payment_amount"`
	CreatedAt       string  `json:"created_at"`
	PaymentDeadline string  `json:"payment_deadline"`
	ConfirmedAt     *string `json:"confirmed_at,omitempty"`
	CancelledAt     *string `json:"cancelled_at,omitempty"`
}

// SubmitProofRequest attaches payment evidence to a reservation.
type SubmitProofRequest struct {
	FileRef string `json:"file_ref"`
}

// CancelReservationRequest identifies who is asking for the cancellation.
type CancelReservationRequest struct {
	RequesterID string `json:"requester_id"`
}

// CreateRoomTypeRequest defines a new sellable room category.
type CreateRoomTypeRequest struct {
	ID            string `json:"id,omitempty"`
	PropertyID    string `json:"property_id"`
	OwnerID       string `json:"owner_id"`
	Name          string `json:"name"`
	TotalQuantity int    `json:"total_quantity"`
	NightlyRate   string `json:"nightly_rate"`
}

// RoomTypeDTO represents a room type in API responses.
type RoomTypeDTO struct {
	ID            string `json:"id"`
	PropertyID    string `json:"property_id"`
	OwnerID       string `json:"owner_id"`
	Name          string `json:"name"`
	TotalQuantity int    `json:"total_quantity"`
	NightlyRate   string `json:"nightly_rate"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// UpdateQuantityRequest changes a room type's authoritative capacity.
type UpdateQuantityRequest struct {
	TotalQuantity int `json:"total_quantity"`
}

// DayAvailabilityDTO is one ledger reading.
type DayAvailabilityDTO struct {
	Date      string `json:"date"`
	Available int    `json:"available"`
}

// AvailabilityDTO is the per-date availability of a room type over a range.
type AvailabilityDTO struct {
	RoomTypeID string               `json:"room_type_id"`
	Days       []DayAvailabilityDTO `json:"days"`
}

// PaymentWebhookRequest is a gateway callback body. Signature verification
// happens in middleware before this is parsed.
type PaymentWebhookRequest struct {
	ExternalPaymentID string `json:"external_payment_id"`
	ReservationID     string `json:"reservation_id"`
	Outcome           string `json:"outcome"` // "success" or "failure"
}

// SweepResponse reports one manual sweep pass.
type SweepResponse struct {
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
}

// CorrectionDTO is one reconciliation audit record.
type CorrectionDTO struct {
	ID          string `json:"id"`
	RoomTypeID  string `json:"room_type_id"`
	Date        string `json:"date"`
	From        int    `json:"from"`
	To          int    `json:"to"`
	CorrectedAt string `json:"corrected_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toReservationDTO(res *booking.Reservation) ReservationDTO {
	dto := ReservationDTO{
		ID:              string(res.ID),
		UserID:          string(res.UserID),
		RoomTypeID:      string(res.RoomTypeID),
		PropertyID:      string(res.PropertyID),
		StartDate:       res.Range.Start.String(),
		EndDate:         res.Range.End.String(),
		Nights:          res.Range.Nights(),
		Status:          string(res.Status),
		PaymentAmount:   res.PaymentAmount.String(),
		CreatedAt:       res.CreatedAt.Format(time.RFC3339),
		PaymentDeadline: res.PaymentDeadline.Format(time.RFC3339),
	}
	if res.ConfirmedAt != nil {
		s := res.ConfirmedAt.Format(time.RFC3339)
		dto.ConfirmedAt = &s
	}
	if res.CancelledAt != nil {
		s := res.CancelledAt.Format(time.RFC3339)
		dto.CancelledAt = &s
	}
	return dto
}

func toReservationDTOs(reservations []booking.Reservation) []ReservationDTO {
	dtos := make([]ReservationDTO, len(reservations))
	for i := range reservations {
		dtos[i] = toReservationDTO(&reservations[i])
	}
	return dtos
}

func toRoomTypeDTO(rt *booking.RoomType) RoomTypeDTO {
	return RoomTypeDTO{
		ID:            string(rt.ID),
		PropertyID:    string(rt.PropertyID),
		OwnerID:       string(rt.OwnerID),
		Name:          rt.Name,
		TotalQuantity: rt.TotalQuantity,
		NightlyRate:   rt.NightlyRate.String(),
		CreatedAt:     rt.CreatedAt.Format(time.RFC3339),
	}
}

func toCorrectionDTOs(corrections []booking.Correction) []CorrectionDTO {
	dtos := make([]CorrectionDTO, len(corrections))
	for i, c := range corrections {
		dtos[i] = CorrectionDTO{
			ID:          c.ID,
			RoomTypeID:  string(c.RoomTypeID),
			Date:        c.Date.String(),
			From:        c.From,
			To:          c.To,
			CorrectedAt: c.CorrectedAt.Format(time.RFC3339),
		}
	}
	return dtos
}
