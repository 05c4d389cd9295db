package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &PgRepository{pool: r.pool, q: tx, inTx: true})
	})
}

// Helpers

var bookingColumns = []string{
	"id", "staff_id", "service_id", "shop_id", "start_at", "end_at", "status", "occupies_slot",
	"source", "customer_name", "customer_phone", "price", "completed_at", "settlement_id",
	"created_at", "updated_at",
}

const bookingSelect = `
	SELECT id, staff_id, service_id, shop_id, start_at, end_at, status, occupies_slot,
	       source, customer_name, customer_phone, price, completed_at, settlement_id,
	       created_at, updated_at
	FROM bookings`

const bookingReturning = `
	RETURNING id, staff_id, service_id, shop_id, start_at, end_at, status, occupies_slot,
	          source, customer_name, customer_phone, price, completed_at, settlement_id,
	          created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking

	err := row.Scan(
		&b.ID,
		&b.StaffID,
		&b.ServiceID,
		&b.ShopID,
		&b.StartAt,
		&b.EndAt,
		&b.Status,
		&b.OccupiesSlot,
		&b.Source,
		&b.CustomerName,
		&b.CustomerPhone,
		&b.Price,
		&b.CompletedAt,
		&b.SettlementID,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]Booking, error) {
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func scanSettlement(row pgx.Row) (*Settlement, error) {
	var s Settlement

	err := row.Scan(
		&s.ID,
		&s.BookingID,
		&s.TotalAmount,
		&s.PlatformFeeAmount,
		&s.StaffFeeAmount,
		&s.ShopAmount,
		&s.PlatformFeeBps,
		&s.StaffFeeBps,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettlementNotFound
		}
		return nil, err
	}

	return &s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Reference data

func (r *PgRepository) GetShopByID(ctx context.Context, id uuid.UUID) (*Shop, error) {
	var s Shop
	err := r.q.QueryRow(ctx, `
		SELECT id, name, active, platform_fee_bps, staff_fee_bps, created_at, updated_at
		FROM shops
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Active, &s.PlatformFeeBps, &s.StaffFeeBps, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgRepository) GetStaffByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	var s Staff
	err := r.q.QueryRow(ctx, `
		SELECT id, shop_id, name, active, work_start_hour, work_end_hour, created_at, updated_at
		FROM staff
		WHERE id = $1
	`, id).Scan(&s.ID, &s.ShopID, &s.Name, &s.Active, &s.WorkStartHour, &s.WorkEndHour, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*ServiceDefinition, error) {
	var s ServiceDefinition
	err := r.q.QueryRow(ctx, `
		SELECT id, shop_id, name, duration_minutes, base_price, active
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.ShopID, &s.Name, &s.DurationMinutes, &s.BasePrice, &s.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgRepository) GetStaffServiceOverride(ctx context.Context, staffID, serviceID uuid.UUID) (*StaffServiceOverride, error) {
	var o StaffServiceOverride
	err := r.q.QueryRow(ctx, `
		SELECT staff_id, service_id, duration_minutes, price
		FROM staff_services
		WHERE staff_id = $1 AND service_id = $2
	`, staffID, serviceID).Scan(&o.StaffID, &o.ServiceID, &o.DurationMinutes, &o.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOverrideNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *PgRepository) ListTimeOff(ctx context.Context, staffID uuid.UUID) ([]TimeOffWindow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, staff_id, kind, start_minute, end_minute, start_at, end_at, enabled
		FROM time_off
		WHERE staff_id = $1 AND enabled
	`, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimeOffWindow
	for rows.Next() {
		var w TimeOffWindow
		if err := rows.Scan(&w.ID, &w.StaffID, &w.Kind, &w.StartMinute, &w.EndMinute, &w.StartAt, &w.EndAt, &w.Enabled); err != nil {
			return nil, err
		}
		result = append(result, w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Bookings

func (r *PgRepository) ListOccupyingBookings(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]Booking, error) {
	rows, err := r.q.Query(ctx, bookingSelect+`
		WHERE staff_id = $1
		  AND occupies_slot
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`, staffID, from, to)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *PgRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.q.QueryRow(ctx, bookingSelect+`
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.q.QueryRow(ctx, bookingSelect+`
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanBooking(row)
}

// statusWordExpr normalizes a stored status the way normalizeWord does.
const statusWordExpr = `translate(lower(btrim(status, E' \t\r\n')), '- ', '__')`

func (r *PgRepository) ListBookings(ctx context.Context, f ListFilter) ([]Booking, error) {
	query, args, err := listBookingsQuery(f)
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func listBookingsQuery(f ListFilter) (string, []any, error) {
	qb := sq.Select(bookingColumns...).
		From("bookings").
		PlaceholderFormat(sq.Dollar).
		OrderBy("start_at ASC", "id ASC")

	if f.StaffID != nil {
		qb = qb.Where(sq.Eq{"staff_id": *f.StaffID})
	}
	if f.ShopID != nil {
		qb = qb.Where(sq.Eq{"shop_id": *f.ShopID})
	}
	if f.From != nil {
		qb = qb.Where(sq.Gt{"end_at": *f.From})
	}
	if f.To != nil {
		qb = qb.Where(sq.Lt{"start_at": *f.To})
	}
	if f.Status != nil {
		// rows not yet normalized by the worker still match their canonical status
		qb = qb.Where(sq.Eq{statusWordExpr: Spellings(*f.Status)})
	}
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		qb = qb.Offset(uint64(f.Offset))
	}
	return qb.ToSql()
}

func (r *PgRepository) InsertBooking(ctx context.Context, b *Booking) (*Booking, error) {
	id := b.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO bookings (id, staff_id, service_id, shop_id, start_at, end_at, status, occupies_slot,
		                      source, customer_name, customer_phone, price, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
	`+bookingReturning, id, b.StaffID, b.ServiceID, b.ShopID, b.StartAt, b.EndAt, b.Status, b.OccupiesSlot,
		b.Source, b.CustomerName, b.CustomerPhone, b.Price, b.CompletedAt)

	created, err := scanBooking(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert booking: %w", ErrUniqueViolation)
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, status Status, occupiesSlot bool, completedAt *time.Time) (*Booking, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    occupies_slot = $3,
		    completed_at = $4,
		    updated_at = now()
		WHERE id = $1
	`+bookingReturning, id, status, occupiesSlot, completedAt)

	updated, err := scanBooking(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("update booking status: %w", ErrUniqueViolation)
		}
		return nil, err
	}
	return updated, nil
}

// Settlements

func (r *PgRepository) GetSettlementByBookingID(ctx context.Context, bookingID uuid.UUID) (*Settlement, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, booking_id, total_amount, platform_fee_amount, staff_fee_amount, shop_amount,
		       platform_fee_bps, staff_fee_bps, created_at
		FROM settlements
		WHERE booking_id = $1
	`, bookingID)
	return scanSettlement(row)
}

// InsertSettlement writes the ledger row and links it from the booking in one statement.
func (r *PgRepository) InsertSettlement(ctx context.Context, s *Settlement) (*Settlement, error) {
	id := s.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.q.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO settlements (id, booking_id, total_amount, platform_fee_amount, staff_fee_amount,
			                         shop_amount, platform_fee_bps, staff_fee_bps, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			RETURNING id, booking_id, total_amount, platform_fee_amount, staff_fee_amount, shop_amount,
			          platform_fee_bps, staff_fee_bps, created_at
		), link AS (
			UPDATE bookings SET settlement_id = $1, updated_at = now() WHERE id = $2
		)
		SELECT id, booking_id, total_amount, platform_fee_amount, staff_fee_amount, shop_amount,
		       platform_fee_bps, staff_fee_bps, created_at
		FROM ins
	`, id, s.BookingID, s.TotalAmount, s.PlatformFeeAmount, s.StaffFeeAmount, s.ShopAmount, s.PlatformFeeBps, s.StaffFeeBps)

	created, err := scanSettlement(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert settlement: %w", ErrUniqueViolation)
		}
		return nil, err
	}
	return created, nil
}

// Maintenance

func (r *PgRepository) FindCompletedMissingCompletedAt(ctx context.Context, limit int) ([]Booking, error) {
	rows, err := r.q.Query(ctx, bookingSelect+`
		WHERE status = $1
		  AND completed_at IS NULL
		ORDER BY start_at
		LIMIT $2
	`, StatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *PgRepository) FindNonCanonicalStatus(ctx context.Context, limit int) ([]Booking, error) {
	canonical := make([]string, 0, len(CanonicalStatuses))
	for _, s := range CanonicalStatuses {
		canonical = append(canonical, string(s))
	}

	rows, err := r.q.Query(ctx, bookingSelect+`
		WHERE status <> ALL($1)
		ORDER BY start_at
		LIMIT $2
	`, canonical, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *PgRepository) FindUnsettledCompleted(ctx context.Context, completedBefore time.Time, limit int) ([]Booking, error) {
	rows, err := r.q.Query(ctx, bookingSelect+`
		WHERE status = $1
		  AND settlement_id IS NULL
		  AND completed_at IS NOT NULL
		  AND completed_at < $2
		ORDER BY completed_at
		LIMIT $3
	`, StatusCompleted, completedBefore, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// Events

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.BookingID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
