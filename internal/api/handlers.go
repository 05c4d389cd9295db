package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/staff-booking-engine/internal/booking"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.UseNumber()
	return dec.Decode(v)
}

func pathUUID(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func createBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		staffID, err := uuid.Parse(req.StaffID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id must be a valid UUID")
			return
		}
		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		shopID, err := uuid.Parse(req.ShopID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_shop_id", "shop_id must be a valid UUID")
			return
		}

		source := booking.ChannelCustomer
		if req.Source != "" {
			ch, ok := booking.ParseChannel(req.Source)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_source", "source must be customer or staff")
				return
			}
			source = ch
		}

		b, err := svc.CreateBooking(r.Context(), booking.CreateRequest{
			StaffID:       staffID,
			ServiceID:     serviceID,
			ShopID:        shopID,
			Start:         req.Start,
			CustomerName:  req.CustomerName,
			CustomerPhone: req.CustomerPhone,
			Source:        source,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse(b))
	}
}

func getBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_booking_id")
		if !ok {
			return
		}

		b, err := svc.GetBooking(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func listBookingsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		q := booking.ListQuery{
			Date:   query.Get("date"),
			Status: query.Get("status"),
		}

		for _, p := range []struct {
			name string
			dst  **uuid.UUID
		}{{"staff_id", &q.StaffID}, {"shop_id", &q.ShopID}} {
			raw := query.Get(p.name)
			if raw == "" {
				continue
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_"+p.name, p.name+" must be a valid UUID")
				return
			}
			*p.dst = &id
		}

		for _, p := range []struct {
			name string
			dst  *int
		}{{"limit", &q.Limit}, {"offset", &q.Offset}} {
			raw := query.Get(p.name)
			if raw == "" {
				continue
			}
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid_"+p.name, p.name+" must be a non-negative integer")
				return
			}
			*p.dst = n
		}

		bookings, err := svc.ListBookings(r.Context(), q)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := ListBookingsResponse{
			Bookings: make([]BookingResponse, 0, len(bookings)),
			Limit:    q.Limit,
			Offset:   q.Offset,
		}
		for i := range bookings {
			resp.Bookings = append(resp.Bookings, toBookingResponse(&bookings[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func setStatusHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_booking_id")
		if !ok {
			return
		}

		var req StatusRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		res, err := svc.SetStatus(r.Context(), id, req.Status)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusResponse{Changed: res.Changed, Booking: toBookingResponse(res.Booking)})
	}
}

// transitionHandler serves the cancel and complete shortcuts.
func transitionHandler(fn func(ctx context.Context, id uuid.UUID) (*booking.StatusResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_booking_id")
		if !ok {
			return
		}

		res, err := fn(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusResponse{Changed: res.Changed, Booking: toBookingResponse(res.Booking)})
	}
}

func settleBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_booking_id")
		if !ok {
			return
		}

		res, err := svc.Settle(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, SettleResponse{
			AlreadySettled: res.AlreadySettled,
			Settlement:     toSettlementResponse(res.Entry),
			Booking:        toBookingResponse(res.Booking),
		})
	}
}

func availabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, ok := pathUUID(w, r, "id", "invalid_staff_id")
		if !ok {
			return
		}

		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "invalid_date", "date is required (YYYY-MM-DD)")
			return
		}

		var serviceID *uuid.UUID
		if raw := r.URL.Query().Get("service_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
				return
			}
			serviceID = &id
		}

		slots, err := svc.ListAvailability(r.Context(), staffID, date, serviceID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := AvailabilityResponse{
			StaffID:  staffID,
			Date:     date,
			Timezone: svc.Zone().String(),
			Slots:    []SlotResponse{},
		}
		for s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{Time: s.Time, Label: s.Label, Available: s.Available})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
