// Package memstore is an in-memory booking.Repository. Transactions buffer
// their writes and check the same uniqueness rules as the Postgres schema at
// insert and again at commit, so it stands in for Postgres in service and
// handler tests.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/staff-booking-engine/internal/booking"
)

type overrideKey struct {
	staffID   uuid.UUID
	serviceID uuid.UUID
}

type data struct {
	mu sync.Mutex

	shops       map[uuid.UUID]booking.Shop
	staff       map[uuid.UUID]booking.Staff
	services    map[uuid.UUID]booking.ServiceDefinition
	overrides   map[overrideKey]booking.StaffServiceOverride
	timeOff     []booking.TimeOffWindow
	bookings    map[uuid.UUID]booking.Booking
	settlements map[uuid.UUID]booking.Settlement // keyed by booking id
	events      []booking.EventLog
	nextEventID int64

	rowLocks  map[uuid.UUID]chan struct{}
	failEvent error
}

type txState struct {
	bookings    map[uuid.UUID]booking.Booking
	settlements map[uuid.UUID]booking.Settlement
	events      []booking.EventLog
	held        []uuid.UUID
}

// Store implements booking.Repository. The zero value is not usable; call New.
type Store struct {
	db *data
	tx *txState
}

var _ booking.Repository = (*Store)(nil)

func New() *Store {
	return &Store{db: &data{
		shops:       make(map[uuid.UUID]booking.Shop),
		staff:       make(map[uuid.UUID]booking.Staff),
		services:    make(map[uuid.UUID]booking.ServiceDefinition),
		overrides:   make(map[overrideKey]booking.StaffServiceOverride),
		bookings:    make(map[uuid.UUID]booking.Booking),
		settlements: make(map[uuid.UUID]booking.Settlement),
		rowLocks:    make(map[uuid.UUID]chan struct{}),
	}}
}

// Seeding

func (s *Store) AddShop(shop booking.Shop) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.shops[shop.ID] = shop
}

func (s *Store) AddStaff(st booking.Staff) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.staff[st.ID] = st
}

func (s *Store) AddService(svc booking.ServiceDefinition) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.services[svc.ID] = svc
}

func (s *Store) AddOverride(ov booking.StaffServiceOverride) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.overrides[overrideKey{ov.StaffID, ov.ServiceID}] = ov
}

func (s *Store) AddTimeOff(w booking.TimeOffWindow) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	s.db.timeOff = append(s.db.timeOff, w)
}

// PutBooking stores b as committed without any checks, for legacy fixtures.
func (s *Store) PutBooking(b booking.Booking) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	s.db.bookings[b.ID] = b
}

// FailEventInserts makes every following InsertEvent return err. nil resets it.
func (s *Store) FailEventInserts(err error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.failEvent = err
}

// Snapshots of committed state

func (s *Store) Bookings() []booking.Booking {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]booking.Booking, 0, len(s.db.bookings))
	for _, b := range s.db.bookings {
		out = append(out, b)
	}
	sortBookings(out)
	return out
}

func (s *Store) Settlements() []booking.Settlement {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]booking.Settlement, 0, len(s.db.settlements))
	for _, st := range s.db.settlements {
		out = append(out, st)
	}
	return out
}

func (s *Store) Events() []booking.EventLog {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return slices.Clone(s.db.events)
}

// Transactions

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Repository) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx := &Store{db: s.db, tx: &txState{
		bookings:    make(map[uuid.UUID]booking.Booking),
		settlements: make(map[uuid.UUID]booking.Settlement),
	}}
	defer tx.releaseRows()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *Store) commit() error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, b := range s.tx.bookings {
		if s.db.slotTakenLocked(b, nil) {
			return booking.ErrUniqueViolation
		}
	}
	for bookingID := range s.tx.settlements {
		if _, ok := s.db.settlements[bookingID]; ok {
			return booking.ErrUniqueViolation
		}
	}

	for id, b := range s.tx.bookings {
		s.db.bookings[id] = b
	}
	for id, st := range s.tx.settlements {
		s.db.settlements[id] = st
	}
	for _, ev := range s.tx.events {
		s.db.nextEventID++
		ev.ID = s.db.nextEventID
		s.db.events = append(s.db.events, ev)
	}
	return nil
}

func (s *Store) lockRow(ctx context.Context, id uuid.UUID) error {
	if slices.Contains(s.tx.held, id) {
		return nil
	}

	s.db.mu.Lock()
	ch, ok := s.db.rowLocks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.db.rowLocks[id] = ch
	}
	s.db.mu.Unlock()

	select {
	case ch <- struct{}{}:
		s.tx.held = append(s.tx.held, id)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) releaseRows() {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, id := range s.tx.held {
		<-s.db.rowLocks[id]
	}
	s.tx.held = nil
}

// slotTakenLocked mirrors the partial unique index on (staff_id, start_at)
// over occupying rows. pending, when set, is consulted as well.
func (d *data) slotTakenLocked(b booking.Booking, pending map[uuid.UUID]booking.Booking) bool {
	if !b.OccupiesSlot {
		return false
	}
	taken := func(other booking.Booking) bool {
		return other.ID != b.ID && other.OccupiesSlot && other.StaffID == b.StaffID && other.StartAt.Equal(b.StartAt)
	}
	for id, other := range d.bookings {
		if p, ok := pending[id]; ok {
			other = p
		}
		if taken(other) {
			return true
		}
	}
	for id, other := range pending {
		if _, ok := d.bookings[id]; !ok && taken(other) {
			return true
		}
	}
	return false
}

// Reads see committed rows overlaid with this transaction's writes.

func (s *Store) lookupBooking(id uuid.UUID) (booking.Booking, bool) {
	if s.tx != nil {
		if b, ok := s.tx.bookings[id]; ok {
			return b, true
		}
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[id]
	return b, ok
}

func (s *Store) allBookings() []booking.Booking {
	s.db.mu.Lock()
	out := make([]booking.Booking, 0, len(s.db.bookings))
	for id, b := range s.db.bookings {
		if s.tx != nil {
			if p, ok := s.tx.bookings[id]; ok {
				b = p
			}
		}
		out = append(out, b)
	}
	if s.tx != nil {
		for id, b := range s.tx.bookings {
			if _, ok := s.db.bookings[id]; !ok {
				out = append(out, b)
			}
		}
	}
	s.db.mu.Unlock()

	sortBookings(out)
	return out
}

func (s *Store) GetShopByID(_ context.Context, id uuid.UUID) (*booking.Shop, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	shop, ok := s.db.shops[id]
	if !ok {
		return nil, booking.ErrShopNotFound
	}
	return &shop, nil
}

func (s *Store) GetStaffByID(_ context.Context, id uuid.UUID) (*booking.Staff, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	st, ok := s.db.staff[id]
	if !ok {
		return nil, booking.ErrStaffNotFound
	}
	return &st, nil
}

func (s *Store) GetServiceByID(_ context.Context, id uuid.UUID) (*booking.ServiceDefinition, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	svc, ok := s.db.services[id]
	if !ok {
		return nil, booking.ErrServiceNotFound
	}
	return &svc, nil
}

func (s *Store) GetStaffServiceOverride(_ context.Context, staffID, serviceID uuid.UUID) (*booking.StaffServiceOverride, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	ov, ok := s.db.overrides[overrideKey{staffID, serviceID}]
	if !ok {
		return nil, booking.ErrOverrideNotFound
	}
	return &ov, nil
}

func (s *Store) ListTimeOff(_ context.Context, staffID uuid.UUID) ([]booking.TimeOffWindow, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []booking.TimeOffWindow
	for _, w := range s.db.timeOff {
		if w.StaffID == staffID && w.Enabled {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) ListOccupyingBookings(_ context.Context, staffID uuid.UUID, from, to time.Time) ([]booking.Booking, error) {
	var out []booking.Booking
	for _, b := range s.allBookings() {
		if b.StaffID == staffID && b.OccupiesSlot && b.StartAt.Before(to) && b.EndAt.After(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) GetBookingByID(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	b, ok := s.lookupBooking(id)
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return &b, nil
}

func (s *Store) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	if _, ok := s.lookupBooking(id); !ok {
		return nil, booking.ErrBookingNotFound
	}
	if s.tx != nil {
		if err := s.lockRow(ctx, id); err != nil {
			return nil, err
		}
	}
	// re-read after the lock so the caller sees the latest committed row
	return s.GetBookingByID(ctx, id)
}

func (s *Store) ListBookings(_ context.Context, f booking.ListFilter) ([]booking.Booking, error) {
	var out []booking.Booking
	for _, b := range s.allBookings() {
		if f.StaffID != nil && b.StaffID != *f.StaffID {
			continue
		}
		if f.ShopID != nil && b.ShopID != *f.ShopID {
			continue
		}
		if f.From != nil && !b.EndAt.After(*f.From) {
			continue
		}
		if f.To != nil && !b.StartAt.Before(*f.To) {
			continue
		}
		if f.Status != nil && b.Status.Canonical() != *f.Status {
			continue
		}
		out = append(out, b)
	}

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) InsertBooking(ctx context.Context, b *booking.Booking) (*booking.Booking, error) {
	if s.tx == nil {
		var created *booking.Booking
		err := s.InTx(ctx, func(ctx context.Context, tx booking.Repository) error {
			var err error
			created, err = tx.InsertBooking(ctx, b)
			return err
		})
		return created, err
	}

	row := *b
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	now := time.Now().UTC()
	row.CreatedAt, row.UpdatedAt = now, now

	s.db.mu.Lock()
	taken := s.db.slotTakenLocked(row, s.tx.bookings)
	s.db.mu.Unlock()
	if taken {
		return nil, booking.ErrUniqueViolation
	}

	s.tx.bookings[row.ID] = row
	return &row, nil
}

func (s *Store) UpdateBookingStatus(ctx context.Context, id uuid.UUID, status booking.Status, occupiesSlot bool, completedAt *time.Time) (*booking.Booking, error) {
	if s.tx == nil {
		var updated *booking.Booking
		err := s.InTx(ctx, func(ctx context.Context, tx booking.Repository) error {
			var err error
			updated, err = tx.UpdateBookingStatus(ctx, id, status, occupiesSlot, completedAt)
			return err
		})
		return updated, err
	}

	row, ok := s.lookupBooking(id)
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	row.Status = status
	row.OccupiesSlot = occupiesSlot
	row.CompletedAt = completedAt
	row.UpdatedAt = time.Now().UTC()

	s.db.mu.Lock()
	taken := s.db.slotTakenLocked(row, s.tx.bookings)
	s.db.mu.Unlock()
	if taken {
		return nil, booking.ErrUniqueViolation
	}

	s.tx.bookings[id] = row
	return &row, nil
}

func (s *Store) GetSettlementByBookingID(_ context.Context, bookingID uuid.UUID) (*booking.Settlement, error) {
	if s.tx != nil {
		if st, ok := s.tx.settlements[bookingID]; ok {
			return &st, nil
		}
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	st, ok := s.db.settlements[bookingID]
	if !ok {
		return nil, booking.ErrSettlementNotFound
	}
	return &st, nil
}

func (s *Store) InsertSettlement(ctx context.Context, st *booking.Settlement) (*booking.Settlement, error) {
	if s.tx == nil {
		var created *booking.Settlement
		err := s.InTx(ctx, func(ctx context.Context, tx booking.Repository) error {
			var err error
			created, err = tx.InsertSettlement(ctx, st)
			return err
		})
		return created, err
	}

	if _, err := s.GetSettlementByBookingID(ctx, st.BookingID); err == nil {
		return nil, booking.ErrUniqueViolation
	}
	b, ok := s.lookupBooking(st.BookingID)
	if !ok {
		return nil, booking.ErrBookingNotFound
	}

	row := *st
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.CreatedAt = time.Now().UTC()
	s.tx.settlements[row.BookingID] = row

	id := row.ID
	b.SettlementID = &id
	b.UpdatedAt = row.CreatedAt
	s.tx.bookings[b.ID] = b

	return &row, nil
}

func (s *Store) FindCompletedMissingCompletedAt(_ context.Context, limit int) ([]booking.Booking, error) {
	return s.find(limit, func(b booking.Booking) bool {
		return b.Status == booking.StatusCompleted && b.CompletedAt == nil
	}), nil
}

func (s *Store) FindNonCanonicalStatus(_ context.Context, limit int) ([]booking.Booking, error) {
	return s.find(limit, func(b booking.Booking) bool {
		return !slices.Contains(booking.CanonicalStatuses, b.Status)
	}), nil
}

func (s *Store) FindUnsettledCompleted(_ context.Context, completedBefore time.Time, limit int) ([]booking.Booking, error) {
	return s.find(limit, func(b booking.Booking) bool {
		return b.Status == booking.StatusCompleted &&
			b.SettlementID == nil &&
			b.CompletedAt != nil &&
			b.CompletedAt.Before(completedBefore)
	}), nil
}

func (s *Store) find(limit int, match func(booking.Booking) bool) []booking.Booking {
	var out []booking.Booking
	for _, b := range s.allBookings() {
		if !match(b) {
			continue
		}
		out = append(out, b)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (s *Store) InsertEvent(ctx context.Context, ev booking.EventLog) error {
	s.db.mu.Lock()
	failErr := s.db.failEvent
	s.db.mu.Unlock()
	if failErr != nil {
		return failErr
	}

	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	if s.tx == nil {
		return s.InTx(ctx, func(ctx context.Context, tx booking.Repository) error {
			return tx.InsertEvent(ctx, ev)
		})
	}
	s.tx.events = append(s.tx.events, ev)
	return nil
}

func sortBookings(bs []booking.Booking) {
	slices.SortFunc(bs, func(a, b booking.Booking) int {
		if c := a.StartAt.Compare(b.StartAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}
