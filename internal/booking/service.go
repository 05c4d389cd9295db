package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/staff-booking-engine/internal/bizday"
	"github.com/hackgods/staff-booking-engine/internal/config"
	"github.com/hackgods/staff-booking-engine/internal/lock"
	"github.com/hackgods/staff-booking-engine/internal/metrics"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxCustomerName  = 200
	// a booking may touch at most this many business days
	maxLockDays = 7
)

// Clock is the source of "now" for advance-notice checks and completion stamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Service struct {
	repo      Repository
	locker    lock.Locker
	cfg       config.Config
	zone      *bizday.Zone
	clock     Clock
	publisher EventPublisher
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

func WithPublisher(p EventPublisher) Option { return func(s *Service) { s.publisher = p } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func NewService(repo Repository, locker lock.Locker, cfg config.Config, opts ...Option) *Service {
	zone := cfg.Zone
	if zone == nil {
		zone = bizday.MustZone("UTC")
	}

	s := &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		zone:   zone,
		clock:  systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Zone() *bizday.Zone { return s.zone }

type CreateRequest struct {
	StaffID       uuid.UUID
	ServiceID     uuid.UUID
	ShopID        uuid.UUID
	Start         any // string, epoch millis or time.Time
	CustomerName  string
	CustomerPhone *string
	Source        Channel
}

// CreateBooking admits or rejects a booking. All creation attempts for one
// staff member on one business day are serialized by an exclusive section, and
// conflicts are re-checked on a fresh read inside the insert transaction.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (*Booking, error) {
	b, err := s.createBooking(ctx, req)
	s.metrics.BookingCreate(createOutcome(err))
	return b, err
}

func (s *Service) createBooking(ctx context.Context, req CreateRequest) (*Booking, error) {
	name := strings.TrimSpace(req.CustomerName)
	switch {
	case req.StaffID == uuid.Nil:
		return nil, fmt.Errorf("%w: staff_id is required", ErrInvalidInput)
	case req.ServiceID == uuid.Nil:
		return nil, fmt.Errorf("%w: service_id is required", ErrInvalidInput)
	case req.ShopID == uuid.Nil:
		return nil, fmt.Errorf("%w: shop_id is required", ErrInvalidInput)
	case name == "":
		return nil, fmt.Errorf("%w: customer_name is required", ErrInvalidInput)
	case len(name) > maxCustomerName:
		return nil, fmt.Errorf("%w: customer_name is too long", ErrInvalidInput)
	}
	if req.Source != ChannelCustomer && req.Source != ChannelStaff {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidInput, req.Source)
	}

	startAt, err := s.zone.ParseToInstant(req.Start)
	if err != nil {
		return nil, fmt.Errorf("%w: start: %v", ErrInvalidInput, err)
	}

	// Validate shop, staff and service exist and are active
	shop, err := s.repo.GetShopByID(ctx, req.ShopID)
	if err != nil {
		return nil, wrapLookup("load shop", err, ErrShopNotFound)
	}
	if !shop.Active {
		return nil, fmt.Errorf("%w: shop is inactive", ErrShopNotFound)
	}

	staff, err := s.repo.GetStaffByID(ctx, req.StaffID)
	if err != nil {
		return nil, wrapLookup("load staff", err, ErrStaffNotFound)
	}
	if !staff.Active {
		return nil, fmt.Errorf("%w: staff is inactive", ErrStaffNotFound)
	}
	if staff.ShopID != shop.ID {
		return nil, fmt.Errorf("%w: staff does not belong to shop", ErrInvalidInput)
	}

	svc, err := s.repo.GetServiceByID(ctx, req.ServiceID)
	if err != nil {
		return nil, wrapLookup("load service", err, ErrServiceNotFound)
	}
	if !svc.Active {
		return nil, fmt.Errorf("%w: service is inactive", ErrServiceNotFound)
	}
	if svc.ShopID != shop.ID {
		return nil, fmt.Errorf("%w: service is not offered by shop", ErrInvalidInput)
	}

	now := s.clock.Now()
	if req.Source == ChannelCustomer {
		earliest, err := s.zone.AddDays(s.zone.Today(now), s.cfg.CustomerMinAdvanceDays)
		if err != nil {
			return nil, err
		}
		if s.zone.DayString(startAt) < earliest {
			return nil, fmt.Errorf("%w: customer bookings must start on or after %s", ErrTooSoon, earliest)
		}
	}

	override, err := s.loadOverride(ctx, s.repo, staff.ID, svc.ID)
	if err != nil {
		return nil, err
	}
	duration := ResolveDuration(svc, override)
	if duration <= 0 {
		return nil, fmt.Errorf("%w: service %s has no duration", ErrInvalidInput, svc.ID)
	}
	endAt := startAt.Add(minutes(duration))

	keys, from, to, err := s.lockScope(staff.ID, startAt, endAt)
	if err != nil {
		return nil, err
	}

	var (
		created *Booking
		event   pendingEvent
	)

	waitStart := time.Now()
	err = s.withExclusiveDays(ctx, keys, func(lockCtx context.Context) error {
		s.metrics.LockWait(time.Since(waitStart))

		return s.repo.InTx(lockCtx, func(txCtx context.Context, tx Repository) error {
			// fresh read inside the transaction, never the pre-lock snapshot
			existing, err := tx.ListOccupyingBookings(txCtx, staff.ID, from, to)
			if err != nil {
				return fmt.Errorf("load bookings: %w", err)
			}
			timeOff, err := tx.ListTimeOff(txCtx, staff.ID)
			if err != nil {
				return fmt.Errorf("load time off: %w", err)
			}

			current, err := tx.GetServiceByID(txCtx, svc.ID)
			if err != nil {
				return wrapLookup("reload service", err, ErrServiceNotFound)
			}
			ov, err := s.loadOverride(txCtx, tx, staff.ID, svc.ID)
			if err != nil {
				return err
			}
			price := ResolvePrice(current, ov)

			if c := FindConflict(s.zone, staff.ID, startAt, endAt, existing, timeOff); c != nil {
				log.Printf("booking rejected staff=%s start=%s end=%s conflict_booking=%v conflict_time_off=%v",
					staff.ID, startAt.Format(time.RFC3339), endAt.Format(time.RFC3339), uuidOrNil(c.BookingID), uuidOrNil(c.TimeOffID))
				return ErrSlotUnavailable
			}

			appt, err := tx.InsertBooking(txCtx, &Booking{
				StaffID:       staff.ID,
				ServiceID:     svc.ID,
				ShopID:        shop.ID,
				StartAt:       startAt,
				EndAt:         endAt,
				Status:        StatusScheduled,
				OccupiesSlot:  true,
				Source:        req.Source,
				CustomerName:  name,
				CustomerPhone: normalizePhone(req.CustomerPhone),
				Price:         price,
			})
			if err != nil {
				if errors.Is(err, ErrUniqueViolation) {
					return fmt.Errorf("%w: %w", ErrSlotUnavailable, err)
				}
				return fmt.Errorf("insert booking: %w", err)
			}

			ev, err := logEvent(txCtx, tx, appt.ID, EventBookingCreated, map[string]any{
				"staff_id":   staff.ID.String(),
				"service_id": svc.ID.String(),
				"shop_id":    shop.ID.String(),
				"start_at":   startAt,
				"end_at":     endAt,
				"price":      price,
				"source":     req.Source,
			})
			if err != nil {
				return err
			}

			created = appt
			event = ev
			return nil
		})
	})

	if err != nil {
		switch {
		case errors.Is(err, lock.ErrLockTimeout):
			return nil, fmt.Errorf("%w: %w", ErrSystemBusy, err)
		case errors.Is(err, ErrSlotUnavailable):
			return nil, err
		case errors.Is(err, ErrUniqueViolation):
			// raised at commit rather than at insert
			return nil, fmt.Errorf("%w: %w", ErrSlotUnavailable, err)
		default:
			return nil, err
		}
	}

	s.publish(ctx, event)
	return created, nil
}

// DurationFor is the booked length of serviceID when performed by staffID.
func (s *Service) DurationFor(ctx context.Context, staffID, serviceID uuid.UUID) (int, error) {
	svc, err := s.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return 0, wrapLookup("load service", err, ErrServiceNotFound)
	}
	ov, err := s.loadOverride(ctx, s.repo, staffID, serviceID)
	if err != nil {
		return 0, err
	}
	return ResolveDuration(svc, ov), nil
}

// GetBooking retrieves a booking by ID
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

type ListQuery struct {
	StaffID *uuid.UUID
	ShopID  *uuid.UUID
	Date    string // business day, optional
	Status  string // any spelling, optional
	Limit   int
	Offset  int
}

// ListBookings retrieves bookings ordered by start time
func (s *Service) ListBookings(ctx context.Context, q ListQuery) ([]Booking, error) {
	f := ListFilter{
		StaffID: q.StaffID,
		ShopID:  q.ShopID,
		Limit:   q.Limit,
		Offset:  q.Offset,
	}

	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	if q.Date != "" {
		from, to, err := s.zone.DayBounds(q.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: date: %v", ErrInvalidInput, err)
		}
		f.From, f.To = &from, &to
	}
	if q.Status != "" {
		st := CanonicalStatus(q.Status)
		if st == StatusUnknown {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, q.Status)
		}
		f.Status = &st
	}

	bookings, err := s.repo.ListBookings(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// lockScope returns the lock keys and the load window for a candidate interval.
// Every business day the interval touches gets its own key, in ascending order.
func (s *Service) lockScope(staffID uuid.UUID, start, end time.Time) ([]string, time.Time, time.Time, error) {
	first := s.zone.DayString(start)
	last := s.zone.DayString(end.Add(-time.Nanosecond))

	keys := []string{DayLockKey(staffID, first)}
	for day := first; day < last; {
		next, err := s.zone.AddDays(day, 1)
		if err != nil {
			return nil, time.Time{}, time.Time{}, err
		}
		day = next
		keys = append(keys, DayLockKey(staffID, day))
		if len(keys) > maxLockDays {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("%w: booking spans more than %d days", ErrInvalidInput, maxLockDays)
		}
	}

	from, _, err := s.zone.DayBounds(first)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	_, to, err := s.zone.DayBounds(last)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	return keys, from, to, nil
}

// DayLockKey is the serialization key for one staff member's business day.
func DayLockKey(staffID uuid.UUID, day string) string {
	return fmt.Sprintf("booking:%s:%s", staffID, day)
}

func (s *Service) withExclusiveDays(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if len(keys) == 0 {
		return fn(ctx)
	}
	return s.locker.WithExclusiveSection(ctx, keys[0], s.cfg.LockWait.D(), func(ctx context.Context) error {
		return s.withExclusiveDays(ctx, keys[1:], fn)
	})
}

func (s *Service) loadOverride(ctx context.Context, repo Repository, staffID, serviceID uuid.UUID) (*StaffServiceOverride, error) {
	ov, err := repo.GetStaffServiceOverride(ctx, staffID, serviceID)
	if err != nil {
		if errors.Is(err, ErrOverrideNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load staff override: %w", err)
	}
	return ov, nil
}

func wrapLookup(what string, err, notFound error) error {
	if errors.Is(err, notFound) {
		return err
	}
	return fmt.Errorf("%s: %w", what, err)
}

func createOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrSlotUnavailable):
		return "conflict"
	case errors.Is(err, ErrSystemBusy):
		return "busy"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrTooSoon):
		return "invalid"
	case errors.Is(err, ErrShopNotFound), errors.Is(err, ErrStaffNotFound), errors.Is(err, ErrServiceNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func normalizePhone(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func uuidOrNil(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
