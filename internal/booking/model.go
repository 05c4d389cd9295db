package booking

import (
	"time"

	"github.com/google/uuid"
)

// Channel tags where a booking request came from.
type Channel string

const (
	ChannelCustomer Channel = "customer"
	ChannelStaff    Channel = "staff"
)

// ParseChannel accepts the channel names used by the front ends.
func ParseChannel(raw string) (Channel, bool) {
	switch normalizeWord(raw) {
	case "customer", "web", "online", "consumer":
		return ChannelCustomer, true
	case "staff", "admin", "shop", "walk_in":
		return ChannelStaff, true
	default:
		return "", false
	}
}

type TimeOffKind string

const (
	TimeOffDailyRecurring     TimeOffKind = "daily_recurring"
	TimeOffAbsoluteRange      TimeOffKind = "absolute_range"
	TimeOffAbsolutePartialDay TimeOffKind = "absolute_partial_day"
)

type Shop struct {
	ID             uuid.UUID
	Name           string
	Active         bool
	PlatformFeeBps *int // nil falls back to the configured default
	StaffFeeBps    *int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Staff struct {
	ID            uuid.UUID
	ShopID        uuid.UUID
	Name          string
	Active        bool
	WorkStartHour *int
	WorkEndHour   *int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ServiceDefinition is read-only reference data.
type ServiceDefinition struct {
	ID              uuid.UUID
	ShopID          uuid.UUID
	Name            string
	DurationMinutes int
	BasePrice       int64 // minor units
	Active          bool
}

// StaffServiceOverride replaces a service's duration or price for one staff member.
type StaffServiceOverride struct {
	StaffID         uuid.UUID
	ServiceID       uuid.UUID
	DurationMinutes *int
	Price           *int64
}

type TimeOffWindow struct {
	ID      uuid.UUID
	StaffID uuid.UUID
	Kind    TimeOffKind
	// daily_recurring
	StartMinute *int
	EndMinute   *int
	// absolute kinds
	StartAt *time.Time
	EndAt   *time.Time
	Enabled bool
}

type Booking struct {
	ID            uuid.UUID
	StaffID       uuid.UUID
	ServiceID     uuid.UUID
	ShopID        uuid.UUID
	StartAt       time.Time
	EndAt         time.Time
	Status        Status
	OccupiesSlot  bool
	Source        Channel
	CustomerName  string
	CustomerPhone *string
	Price         int64 // captured at creation, never updated
	CompletedAt   *time.Time
	SettlementID  *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Settlement is an append-only ledger row, at most one per booking.
type Settlement struct {
	ID                uuid.UUID
	BookingID         uuid.UUID
	TotalAmount       int64
	PlatformFeeAmount int64
	StaffFeeAmount    int64
	ShopAmount        int64
	PlatformFeeBps    int
	StaffFeeBps       int
	CreatedAt         time.Time
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// ListFilter narrows ListBookings. Zero values mean "any".
type ListFilter struct {
	StaffID *uuid.UUID
	ShopID  *uuid.UUID
	From    *time.Time
	To      *time.Time
	Status  *Status
	Limit   int
	Offset  int
}
