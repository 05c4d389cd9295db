package booking

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/staff-booking-engine/internal/bizday"
)

func collectSlots(seq func(func(SlotAvailability) bool)) map[string]bool {
	out := make(map[string]bool)
	for s := range seq {
		out[s.Label] = s.Available
	}
	return out
}

func TestFreeSlots(t *testing.T) {
	zone := bizday.MustZone("UTC")
	staffID := uuid.New()

	plan := DayPlan{
		StaffID:         staffID,
		Date:            "2026-05-01",
		OpenMinute:      10 * 60,
		CloseMinute:     18 * 60,
		GridMinutes:     30,
		DurationMinutes: 60,
		Now:             time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC),
		Bookings: []Booking{
			{ID: uuid.New(), StaffID: staffID, StartAt: at(14, 0), EndAt: at(14, 30), OccupiesSlot: true},
		},
	}

	slots := collectSlots(FreeSlots(zone, plan))
	assert.Len(t, slots, 16)

	assert.True(t, slots["10:00"])
	assert.False(t, slots["13:30"], "runs into the 14:00 booking")
	assert.False(t, slots["14:00"])
	assert.True(t, slots["14:30"], "back to back with the booking")
	assert.True(t, slots["17:00"])
	assert.False(t, slots["17:30"], "ends after close")
}

func TestFreeSlotsSameDayNotice(t *testing.T) {
	zone := bizday.MustZone("UTC")

	plan := DayPlan{
		StaffID:         uuid.New(),
		Date:            "2026-05-01",
		OpenMinute:      10 * 60,
		CloseMinute:     14 * 60,
		GridMinutes:     30,
		DurationMinutes: 30,
		Now:             at(11, 10),
		MinAdvance:      time.Hour,
	}

	slots := collectSlots(FreeSlots(zone, plan))
	assert.False(t, slots["11:30"])
	assert.False(t, slots["12:00"], "starts before now + notice")
	assert.True(t, slots["12:30"])

	// a past day has nothing available
	plan.Date = "2026-04-30"
	for s := range FreeSlots(zone, plan) {
		assert.False(t, s.Available, s.Label)
	}
}

func TestFreeSlotsStopsEarly(t *testing.T) {
	zone := bizday.MustZone("UTC")
	plan := DayPlan{Date: "2026-05-01", OpenMinute: 0, CloseMinute: 24 * 60, GridMinutes: 15, Now: at(0, 0).AddDate(0, 0, -1)}

	var labels []string
	for s := range FreeSlots(zone, plan) {
		labels = append(labels, s.Label)
		if len(labels) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"00:00", "00:15", "00:30"}, labels)
}

func TestFreeSlotsDSTGapHasNoDuplicates(t *testing.T) {
	ny := bizday.MustZone("America/New_York")
	plan := DayPlan{
		Date:        "2026-03-08",
		OpenMinute:  0,
		CloseMinute: 6 * 60,
		GridMinutes: 30,
		Now:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	var times []time.Time
	for s := range FreeSlots(ny, plan) {
		times = append(times, s.Time)
	}
	require.NotEmpty(t, times)
	assert.True(t, slices.IsSortedFunc(times, func(a, b time.Time) int { return a.Compare(b) }))
	assert.Equal(t, len(times), len(slices.CompactFunc(slices.Clone(times), time.Time.Equal)))
}
