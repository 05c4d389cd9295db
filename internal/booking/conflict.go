package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/staff-booking-engine/internal/bizday"
)

const secondsPerDay = 24 * 60 * 60

// Overlaps is the half-open interval test used for every conflict check.
// Touching intervals (aEnd == bStart) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Conflict names what a candidate interval collided with.
type Conflict struct {
	BookingID *uuid.UUID
	TimeOffID *uuid.UUID
}

// HasConflict reports whether [start, end) for staffID overlaps an occupying
// booking or an enabled time-off window. existing is expected to be loaded
// for the relevant business day and already limited to occupying rows.
func HasConflict(zone *bizday.Zone, staffID uuid.UUID, start, end time.Time, existing []Booking, timeOff []TimeOffWindow) bool {
	return FindConflict(zone, staffID, start, end, existing, timeOff) != nil
}

func FindConflict(zone *bizday.Zone, staffID uuid.UUID, start, end time.Time, existing []Booking, timeOff []TimeOffWindow) *Conflict {
	for i := range existing {
		b := &existing[i]
		if b.StaffID != staffID || !b.OccupiesSlot {
			continue
		}
		if Overlaps(start, end, b.StartAt, b.EndAt) {
			id := b.ID
			return &Conflict{BookingID: &id}
		}
	}

	for i := range timeOff {
		w := &timeOff[i]
		if w.StaffID != staffID || !w.Enabled {
			continue
		}
		if timeOffOverlaps(zone, w, start, end) {
			id := w.ID
			return &Conflict{TimeOffID: &id}
		}
	}

	return nil
}

func timeOffOverlaps(zone *bizday.Zone, w *TimeOffWindow, start, end time.Time) bool {
	switch w.Kind {
	case TimeOffDailyRecurring:
		if w.StartMinute == nil || w.EndMinute == nil {
			return false
		}
		return dailyOverlaps(zone, *w.StartMinute, *w.EndMinute, start, end)
	case TimeOffAbsoluteRange, TimeOffAbsolutePartialDay:
		if w.StartAt == nil || w.EndAt == nil {
			return false
		}
		return Overlaps(start, end, *w.StartAt, *w.EndAt)
	default:
		return false
	}
}

// dailyOverlaps compares on time of day only. A window whose end is not after
// its start wraps past midnight.
func dailyOverlaps(zone *bizday.Zone, startMinute, endMinute int, start, end time.Time) bool {
	local := start.In(zone.Location())
	cs := local.Hour()*3600 + local.Minute()*60 + local.Second()
	ce := cs + int(end.Sub(start)/time.Second)

	ws, we := startMinute*60, endMinute*60
	if we <= ws {
		we += secondsPerDay
	}

	for _, shift := range []int{-secondsPerDay, 0, secondsPerDay} {
		if cs < we+shift && ce > ws+shift {
			return true
		}
	}
	return false
}
