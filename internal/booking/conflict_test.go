package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/staff-booking-engine/internal/bizday"
)

func at(h, m int) time.Time {
	return time.Date(2026, 5, 1, h, m, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func TestOverlapsHalfOpen(t *testing.T) {
	assert.True(t, Overlaps(at(14, 0), at(15, 0), at(14, 30), at(15, 30)))
	assert.True(t, Overlaps(at(14, 0), at(15, 0), at(13, 0), at(16, 0)))
	assert.False(t, Overlaps(at(14, 0), at(15, 0), at(15, 0), at(16, 0)), "back to back after")
	assert.False(t, Overlaps(at(14, 0), at(15, 0), at(13, 0), at(14, 0)), "back to back before")
	assert.False(t, Overlaps(at(9, 0), at(10, 0), at(14, 0), at(15, 0)))
}

func TestFindConflictBookings(t *testing.T) {
	zone := bizday.MustZone("UTC")
	staffID := uuid.New()
	other := uuid.New()

	existing := []Booking{
		{ID: uuid.New(), StaffID: staffID, StartAt: at(14, 0), EndAt: at(14, 30), OccupiesSlot: true},
		{ID: uuid.New(), StaffID: staffID, StartAt: at(16, 0), EndAt: at(17, 0), OccupiesSlot: false},
		{ID: uuid.New(), StaffID: other, StartAt: at(18, 0), EndAt: at(19, 0), OccupiesSlot: true},
	}

	c := FindConflict(zone, staffID, at(14, 15), at(14, 45), existing, nil)
	require.NotNil(t, c)
	assert.Equal(t, existing[0].ID, *c.BookingID)

	assert.False(t, HasConflict(zone, staffID, at(14, 30), at(15, 0), existing, nil), "touching end")
	assert.False(t, HasConflict(zone, staffID, at(16, 0), at(17, 0), existing, nil), "released slot")
	assert.False(t, HasConflict(zone, staffID, at(18, 0), at(19, 0), existing, nil), "other staff")
}

func TestFindConflictTimeOff(t *testing.T) {
	tokyo := bizday.MustZone("Asia/Tokyo")
	staffID := uuid.New()

	// lunch 12:00-13:00 Tokyo = 03:00-04:00 UTC
	lunch := TimeOffWindow{ID: uuid.New(), StaffID: staffID, Kind: TimeOffDailyRecurring, StartMinute: intPtr(12 * 60), EndMinute: intPtr(13 * 60), Enabled: true}
	startAt, endAt := at(8, 0), at(9, 0)
	vacation := TimeOffWindow{ID: uuid.New(), StaffID: staffID, Kind: TimeOffAbsoluteRange, StartAt: &startAt, EndAt: &endAt, Enabled: true}
	disabled := TimeOffWindow{ID: uuid.New(), StaffID: staffID, Kind: TimeOffDailyRecurring, StartMinute: intPtr(0), EndMinute: intPtr(24 * 60), Enabled: false}
	windows := []TimeOffWindow{lunch, vacation, disabled}

	c := FindConflict(tokyo, staffID, at(3, 30), at(4, 30), nil, windows)
	require.NotNil(t, c)
	assert.Equal(t, lunch.ID, *c.TimeOffID)

	// the same lunch recurs on any day
	assert.True(t, HasConflict(tokyo, staffID, at(3, 0).AddDate(0, 0, 9), at(3, 30).AddDate(0, 0, 9), nil, windows))

	assert.False(t, HasConflict(tokyo, staffID, at(4, 0), at(5, 0), nil, windows), "right after lunch")
	assert.True(t, HasConflict(tokyo, staffID, at(8, 30), at(10, 0), nil, windows), "vacation")
	assert.False(t, HasConflict(tokyo, staffID, at(9, 0), at(10, 0), nil, windows), "after vacation")
}

func TestDailyWindowAcrossMidnight(t *testing.T) {
	zone := bizday.MustZone("UTC")
	staffID := uuid.New()
	night := []TimeOffWindow{{ID: uuid.New(), StaffID: staffID, Kind: TimeOffDailyRecurring, StartMinute: intPtr(22 * 60), EndMinute: intPtr(2 * 60), Enabled: true}}

	assert.True(t, HasConflict(zone, staffID, at(23, 0), at(23, 30), nil, night))
	assert.True(t, HasConflict(zone, staffID, at(1, 0), at(1, 30), nil, night))
	assert.True(t, HasConflict(zone, staffID, at(21, 30), at(22, 30), nil, night))
	assert.False(t, HasConflict(zone, staffID, at(2, 0), at(3, 0), nil, night))
	assert.False(t, HasConflict(zone, staffID, at(21, 0), at(22, 0), nil, night))
}

func TestBlockCount(t *testing.T) {
	assert.Equal(t, 1, BlockCount(30, 30))
	assert.Equal(t, 2, BlockCount(45, 30))
	assert.Equal(t, 2, BlockCount(60, 30))
	assert.Equal(t, 1, BlockCount(10, 30))
	assert.Equal(t, 1, BlockCount(0, 30))
	assert.Equal(t, 1, BlockCount(45, 0))
}

func TestResolveDurationAndPrice(t *testing.T) {
	svc := &ServiceDefinition{DurationMinutes: 30, BasePrice: 5000}
	assert.Equal(t, 30, ResolveDuration(svc, nil))
	assert.Equal(t, int64(5000), ResolvePrice(svc, nil))

	price := int64(6500)
	ov := &StaffServiceOverride{DurationMinutes: intPtr(45), Price: &price}
	assert.Equal(t, 45, ResolveDuration(svc, ov))
	assert.Equal(t, int64(6500), ResolvePrice(svc, ov))

	assert.Equal(t, 30, ResolveDuration(svc, &StaffServiceOverride{DurationMinutes: intPtr(0)}))
}
