package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalStatus(t *testing.T) {
	tests := map[string]Status{
		"scheduled":            StatusScheduled,
		"BOOKED":               StatusScheduled,
		" pending ":            StatusScheduled,
		"Confirmed":            StatusConfirmed,
		"accepted":             StatusConfirmed,
		"done":                 StatusCompleted,
		"Complete":             StatusCompleted,
		"canceled":             StatusCancelled,
		"Cancelled-By-User":    StatusCancelled,
		"cancelled by company": StatusCancelled,
		"":                     StatusUnknown,
		"archived":             StatusUnknown,
		"unknown":              StatusUnknown,
	}

	for raw, want := range tests {
		assert.Equal(t, want, CanonicalStatus(raw), "raw=%q", raw)
	}
}

func TestSpellingsRoundTrip(t *testing.T) {
	for _, st := range CanonicalStatuses {
		words := Spellings(st)
		require.NotEmpty(t, words, st)
		assert.Contains(t, words, string(st))
		for _, w := range words {
			assert.Equal(t, st, CanonicalStatus(w), w)
		}
	}
	assert.Empty(t, Spellings(StatusUnknown))
	assert.Equal(t, []string{"booked", "new", "pending", "reserved", "schedule", "scheduled"}, Spellings(StatusScheduled))
}

func TestStatusOccupies(t *testing.T) {
	assert.True(t, StatusScheduled.Occupies())
	assert.True(t, StatusConfirmed.Occupies())
	assert.True(t, StatusCompleted.Occupies())
	assert.True(t, Status("booked").Occupies())
	assert.False(t, StatusCancelled.Occupies())
	assert.False(t, Status("canceled").Occupies())
	assert.False(t, Status("bogus").Occupies())
}

func TestParseChannel(t *testing.T) {
	ch, ok := ParseChannel("Customer")
	require.True(t, ok)
	assert.Equal(t, ChannelCustomer, ch)

	ch, ok = ParseChannel("walk-in")
	require.True(t, ok)
	assert.Equal(t, ChannelStaff, ch)

	_, ok = ParseChannel("fax")
	assert.False(t, ok)
}

func TestPlanTransition(t *testing.T) {
	now := time.Date(2026, 5, 1, 15, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name        string
		from        Booking
		target      Status
		wantErr     error
		wantChanged bool
		want        StatusUpdate
	}{
		{
			name:        "scheduled to confirmed",
			from:        Booking{Status: StatusScheduled, OccupiesSlot: true},
			target:      StatusConfirmed,
			wantChanged: true,
			want:        StatusUpdate{Status: StatusConfirmed, OccupiesSlot: true},
		},
		{
			name:        "confirmed back to scheduled",
			from:        Booking{Status: StatusConfirmed, OccupiesSlot: true},
			target:      StatusScheduled,
			wantChanged: true,
			want:        StatusUpdate{Status: StatusScheduled, OccupiesSlot: true},
		},
		{
			name:        "cancel releases the slot",
			from:        Booking{Status: StatusScheduled, OccupiesSlot: true},
			target:      StatusCancelled,
			wantChanged: true,
			want:        StatusUpdate{Status: StatusCancelled, OccupiesSlot: false},
		},
		{
			name:        "complete stamps now",
			from:        Booking{Status: StatusConfirmed, OccupiesSlot: true},
			target:      StatusCompleted,
			wantChanged: true,
			want:        StatusUpdate{Status: StatusCompleted, OccupiesSlot: true, CompletedAt: &now},
		},
		{
			name:        "complete again keeps the first stamp",
			from:        Booking{Status: StatusCompleted, OccupiesSlot: true, CompletedAt: &earlier},
			target:      StatusCompleted,
			wantChanged: false,
			want:        StatusUpdate{Status: StatusCompleted, OccupiesSlot: true, CompletedAt: &earlier},
		},
		{
			name:        "legacy spelling is rewritten",
			from:        Booking{Status: "booked", OccupiesSlot: true},
			target:      StatusScheduled,
			wantChanged: true,
			want:        StatusUpdate{Status: StatusScheduled, OccupiesSlot: true},
		},
		{
			name:        "same status is a no-op",
			from:        Booking{Status: StatusCancelled},
			target:      StatusCancelled,
			wantChanged: false,
			want:        StatusUpdate{Status: StatusCancelled},
		},
		{
			name:    "cannot cancel completed",
			from:    Booking{Status: StatusCompleted, OccupiesSlot: true, CompletedAt: &earlier},
			target:  StatusCancelled,
			wantErr: ErrCannotCancelCompleted,
		},
		{
			name:    "completed cannot reopen",
			from:    Booking{Status: StatusCompleted, OccupiesSlot: true, CompletedAt: &earlier},
			target:  StatusScheduled,
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "cancelled cannot reopen",
			from:    Booking{Status: StatusCancelled},
			target:  StatusConfirmed,
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "unknown target",
			from:    Booking{Status: StatusScheduled, OccupiesSlot: true},
			target:  "archived",
			wantErr: ErrInvalidStatus,
		},
		{
			name:    "unknown stored status",
			from:    Booking{Status: "mystery", OccupiesSlot: true},
			target:  StatusConfirmed,
			wantErr: ErrInvalidTransition,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, changed, err := PlanTransition(&tc.from, tc.target, now)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantChanged, changed)
			assert.Equal(t, tc.want.Status, next.Status)
			assert.Equal(t, tc.want.OccupiesSlot, next.OccupiesSlot)
			assert.True(t, sameInstant(tc.want.CompletedAt, next.CompletedAt), "completedAt want %v got %v", tc.want.CompletedAt, next.CompletedAt)

			// completedAt is set exactly when the status is completed
			assert.Equal(t, next.Status == StatusCompleted, next.CompletedAt != nil)
		})
	}
}
