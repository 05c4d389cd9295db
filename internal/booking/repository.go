package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// Reference data
	GetShopByID(ctx context.Context, id uuid.UUID) (*Shop, error)
	GetStaffByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	GetServiceByID(ctx context.Context, id uuid.UUID) (*ServiceDefinition, error)
	GetStaffServiceOverride(ctx context.Context, staffID, serviceID uuid.UUID) (*StaffServiceOverride, error)
	ListTimeOff(ctx context.Context, staffID uuid.UUID) ([]TimeOffWindow, error)

	// For conflict checks: occupying bookings of staffID overlapping [from, to)
	ListOccupyingBookings(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]Booking, error)

	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// GetBookingForUpdate locks the row until the surrounding transaction ends.
	GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListBookings(ctx context.Context, f ListFilter) ([]Booking, error)

	// Creation and updates
	InsertBooking(ctx context.Context, b *Booking) (*Booking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, status Status, occupiesSlot bool, completedAt *time.Time) (*Booking, error)

	// Settlement ledger
	GetSettlementByBookingID(ctx context.Context, bookingID uuid.UUID) (*Settlement, error)
	InsertSettlement(ctx context.Context, s *Settlement) (*Settlement, error)

	// Maintenance worker
	FindCompletedMissingCompletedAt(ctx context.Context, limit int) ([]Booking, error)
	FindNonCanonicalStatus(ctx context.Context, limit int) ([]Booking, error)
	FindUnsettledCompleted(ctx context.Context, completedBefore time.Time, limit int) ([]Booking, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error

	// InTx runs fn inside one transaction. fn receives a Repository bound to
	// that transaction; returning an error rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
}
