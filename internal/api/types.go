package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/staff-booking-engine/internal/booking"
)

type CreateBookingRequest struct {
	StaffID       string  `json:"staff_id"`
	ServiceID     string  `json:"service_id"`
	ShopID        string  `json:"shop_id"`
	Start         any     `json:"start"` // wall clock string, RFC 3339 or epoch millis
	CustomerName  string  `json:"customer_name"`
	CustomerPhone *string `json:"customer_phone,omitempty"`
	Source        string  `json:"source"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type BookingResponse struct {
	ID            uuid.UUID  `json:"id"`
	StaffID       uuid.UUID  `json:"staff_id"`
	ServiceID     uuid.UUID  `json:"service_id"`
	ShopID        uuid.UUID  `json:"shop_id"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         time.Time  `json:"end_at"`
	Status        string     `json:"status"`
	OccupiesSlot  bool       `json:"occupies_slot"`
	Source        string     `json:"source"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone *string    `json:"customer_phone,omitempty"`
	Price         int64      `json:"price"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	SettlementID  *uuid.UUID `json:"settlement_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type ListBookingsResponse struct {
	Bookings []BookingResponse `json:"bookings"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

type StatusResponse struct {
	Changed bool            `json:"changed"`
	Booking BookingResponse `json:"booking"`
}

type SettlementResponse struct {
	ID                uuid.UUID `json:"id"`
	BookingID         uuid.UUID `json:"booking_id"`
	TotalAmount       int64     `json:"total_amount"`
	PlatformFeeAmount int64     `json:"platform_fee_amount"`
	StaffFeeAmount    int64     `json:"staff_fee_amount"`
	ShopAmount        int64     `json:"shop_amount"`
	PlatformFeeBps    int       `json:"platform_fee_bps"`
	StaffFeeBps       int       `json:"staff_fee_bps"`
	CreatedAt         time.Time `json:"created_at"`
}

type SettleResponse struct {
	AlreadySettled bool               `json:"already_settled"`
	Settlement     SettlementResponse `json:"settlement"`
	Booking        BookingResponse    `json:"booking"`
}

type SlotResponse struct {
	Time      time.Time `json:"time"`
	Label     string    `json:"label"`
	Available bool      `json:"available"`
}

type AvailabilityResponse struct {
	StaffID  uuid.UUID      `json:"staff_id"`
	Date     string         `json:"date"`
	Timezone string         `json:"timezone"`
	Slots    []SlotResponse `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:            b.ID,
		StaffID:       b.StaffID,
		ServiceID:     b.ServiceID,
		ShopID:        b.ShopID,
		StartAt:       b.StartAt.UTC(),
		EndAt:         b.EndAt.UTC(),
		Status:        string(b.Status.Canonical()),
		OccupiesSlot:  b.OccupiesSlot,
		Source:        string(b.Source),
		CustomerName:  b.CustomerName,
		CustomerPhone: b.CustomerPhone,
		Price:         b.Price,
		CompletedAt:   b.CompletedAt,
		SettlementID:  b.SettlementID,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func toSettlementResponse(s *booking.Settlement) SettlementResponse {
	return SettlementResponse{
		ID:                s.ID,
		BookingID:         s.BookingID,
		TotalAmount:       s.TotalAmount,
		PlatformFeeAmount: s.PlatformFeeAmount,
		StaffFeeAmount:    s.StaffFeeAmount,
		ShopAmount:        s.ShopAmount,
		PlatformFeeBps:    s.PlatformFeeBps,
		StaffFeeBps:       s.StaffFeeBps,
		CreatedAt:         s.CreatedAt,
	}
}
