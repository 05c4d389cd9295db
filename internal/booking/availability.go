package booking

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/staff-booking-engine/internal/bizday"
)

// SlotAvailability is one start time on the slot grid.
type SlotAvailability struct {
	Time      time.Time // UTC instant
	Label     string    // HH:MM in the business zone
	Available bool
}

// DayPlan is everything FreeSlots needs to enumerate one business day.
type DayPlan struct {
	StaffID         uuid.UUID
	Date            string
	OpenMinute      int
	CloseMinute     int
	GridMinutes     int
	DurationMinutes int
	Now             time.Time
	MinAdvance      time.Duration
	Bookings        []Booking
	TimeOff         []TimeOffWindow
}

// FreeSlots yields every grid start between open and close with its
// availability. A slot is unavailable when the service would run past close,
// when it starts inside the same-day notice period, when the day is already
// over, or when it conflicts with a booking or time off.
func FreeSlots(zone *bizday.Zone, plan DayPlan) iter.Seq[SlotAvailability] {
	return func(yield func(SlotAvailability) bool) {
		grid := plan.GridMinutes
		if grid <= 0 {
			grid = 30
		}
		duration := plan.DurationMinutes
		if duration <= 0 {
			duration = grid
		}

		closeAt, err := zone.At(plan.Date, plan.CloseMinute)
		if err != nil {
			return
		}
		today := zone.Today(plan.Now)
		earliest := plan.Now.Add(plan.MinAdvance)

		var prev time.Time
		for m := plan.OpenMinute; m < plan.CloseMinute; m += grid {
			start, err := zone.At(plan.Date, m)
			if err != nil {
				return
			}
			// wall times inside a DST gap collapse onto the next valid instant
			if !prev.IsZero() && !start.After(prev) {
				continue
			}
			prev = start

			end := start.Add(minutes(duration))

			available := !end.After(closeAt)
			if available && plan.Date < today {
				available = false
			}
			if available && plan.Date == today && start.Before(earliest) {
				available = false
			}
			if available && HasConflict(zone, plan.StaffID, start, end, plan.Bookings, plan.TimeOff) {
				available = false
			}

			slot := SlotAvailability{
				Time:      start,
				Label:     start.In(zone.Location()).Format("15:04"),
				Available: available,
			}
			if !yield(slot) {
				return
			}
		}
	}
}

// ListAvailability enumerates the slot grid of one staff member's business day.
// Without a service the duration is one grid block.
func (s *Service) ListAvailability(ctx context.Context, staffID uuid.UUID, date string, serviceID *uuid.UUID) (iter.Seq[SlotAvailability], error) {
	dayStart, dayEnd, err := s.zone.DayBounds(date)
	if err != nil {
		return nil, fmt.Errorf("%w: date: %v", ErrInvalidInput, err)
	}

	staff, err := s.repo.GetStaffByID(ctx, staffID)
	if err != nil {
		return nil, wrapLookup("load staff", err, ErrStaffNotFound)
	}

	duration := s.cfg.SlotGridMinutes
	if serviceID != nil {
		duration, err = s.DurationFor(ctx, staffID, *serviceID)
		if err != nil {
			return nil, err
		}
	}

	openHour, closeHour := s.cfg.DefaultOpenHour, s.cfg.DefaultCloseHour
	if staff.WorkStartHour != nil {
		openHour = *staff.WorkStartHour
	}
	if staff.WorkEndHour != nil {
		closeHour = *staff.WorkEndHour
	}

	existing, err := s.repo.ListOccupyingBookings(ctx, staffID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	timeOff, err := s.repo.ListTimeOff(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("load time off: %w", err)
	}

	plan := DayPlan{
		StaffID:         staffID,
		Date:            s.zone.DayString(dayStart),
		OpenMinute:      openHour * 60,
		CloseMinute:     closeHour * 60,
		GridMinutes:     s.cfg.SlotGridMinutes,
		DurationMinutes: duration,
		Now:             s.clock.Now(),
		MinAdvance:      minutes(s.cfg.MinAdvanceMinutes),
		Bookings:        existing,
		TimeOff:         timeOff,
	}

	// an inactive staff member has an empty grid rather than an error
	if !staff.Active || plan.OpenMinute >= plan.CloseMinute {
		return func(func(SlotAvailability) bool) {}, nil
	}
	return FreeSlots(s.zone, plan), nil
}
