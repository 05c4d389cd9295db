package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/hackgods/staff-booking-engine/internal/bizday"
	"github.com/hackgods/staff-booking-engine/internal/booking"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps booking errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidInput), errors.Is(err, bizday.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, booking.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, booking.ErrTooSoon):
		writeError(w, http.StatusBadRequest, "too_soon", err.Error())

	case errors.Is(err, booking.ErrShopNotFound):
		writeError(w, http.StatusNotFound, "shop_not_found", err.Error())
	case errors.Is(err, booking.ErrStaffNotFound):
		writeError(w, http.StatusNotFound, "staff_not_found", err.Error())
	case errors.Is(err, booking.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, booking.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())

	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "the requested time overlaps another booking or time off")
	case errors.Is(err, booking.ErrCannotCancelCompleted):
		writeError(w, http.StatusConflict, "cannot_cancel_completed", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrCannotSettleCancelled):
		writeError(w, http.StatusConflict, "cannot_settle_cancelled", err.Error())

	case errors.Is(err, booking.ErrSystemBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "system_busy", "too many concurrent bookings for this staff member, please retry shortly")

	default:
		log.Printf("internal error method=%s path=%s request_id=%s err=%v", r.Method, r.URL.Path, GetRequestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
