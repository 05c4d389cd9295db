package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/staff-booking-engine/internal/booking"
	"github.com/hackgods/staff-booking-engine/internal/config"
	"github.com/hackgods/staff-booking-engine/internal/db"
)

var serviceMenu = []struct {
	name     string
	minutes  int
	minPrice int
	maxPrice int
}{
	{"Haircut", 30, 3000, 6000},
	{"Cut and Blow Dry", 60, 5000, 9000},
	{"Colour", 90, 8000, 15000},
	{"Beard Trim", 15, 1500, 3000},
	{"Manicure", 45, 3500, 6000},
	{"Head Spa", 60, 6000, 12000},
	{"Perm", 120, 12000, 20000},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	faker := gofakeit.New(0)

	shops := getInt("SEED_SHOPS", 5)
	staffPerShop := getInt("SEED_STAFF_PER_SHOP", 4)

	for i := 0; i < shops; i++ {
		if err := seedShop(context.Background(), pool, faker, staffPerShop); err != nil {
			log.Fatalf("seed shop: %v", err)
		}
		log.Printf("shops seeded: %d/%d", i+1, shops)
	}

	log.Println("seed complete")
}

// seedShop writes one shop with its menu, staff, overrides and time off in a single transaction.
func seedShop(ctx context.Context, pool *pgxpool.Pool, f *gofakeit.Faker, staffCount int) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	shopID := uuid.New()
	var platformBps *int
	if f.Bool() {
		v := f.IntRange(500, 1500)
		platformBps = &v
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO shops (id, name, active, platform_fee_bps, created_at, updated_at)
		VALUES ($1, $2, TRUE, $3, now(), now())
	`, shopID, f.Company(), platformBps); err != nil {
		return err
	}

	serviceIDs := make([]uuid.UUID, 0, len(serviceMenu))
	for _, item := range serviceMenu {
		id := uuid.New()
		price := int64(f.IntRange(item.minPrice, item.maxPrice)/100) * 100
		if _, err := tx.Exec(ctx, `
			INSERT INTO services (id, shop_id, name, duration_minutes, base_price, active)
			VALUES ($1, $2, $3, $4, $5, TRUE)
		`, id, shopID, item.name, item.minutes, price); err != nil {
			return err
		}
		serviceIDs = append(serviceIDs, id)
	}

	for i := 0; i < staffCount; i++ {
		staffID := uuid.New()
		start := f.IntRange(8, 11)
		end := f.IntRange(18, 21)
		if _, err := tx.Exec(ctx, `
			INSERT INTO staff (id, shop_id, name, active, work_start_hour, work_end_hour, created_at, updated_at)
			VALUES ($1, $2, $3, TRUE, $4, $5, now(), now())
		`, staffID, shopID, f.Name(), start, end); err != nil {
			return err
		}

		if err := seedOverrides(ctx, tx, f, staffID, serviceIDs); err != nil {
			return err
		}
		if err := seedTimeOff(ctx, tx, f, staffID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedOverrides(ctx context.Context, tx pgx.Tx, f *gofakeit.Faker, staffID uuid.UUID, serviceIDs []uuid.UUID) error {
	for i, serviceID := range serviceIDs {
		if f.Number(0, 3) != 0 {
			continue
		}
		// senior staff take longer and charge more
		minutes := serviceMenu[i].minutes + 15
		price := int64(serviceMenu[i].maxPrice)
		if _, err := tx.Exec(ctx, `
			INSERT INTO staff_services (staff_id, service_id, duration_minutes, price)
			VALUES ($1, $2, $3, $4)
		`, staffID, serviceID, minutes, price); err != nil {
			return err
		}
	}
	return nil
}

func seedTimeOff(ctx context.Context, tx pgx.Tx, f *gofakeit.Faker, staffID uuid.UUID) error {
	lunch := f.IntRange(11, 14) * 60
	if _, err := tx.Exec(ctx, `
		INSERT INTO time_off (id, staff_id, kind, start_minute, end_minute, enabled)
		VALUES ($1, $2, $3, $4, $5, TRUE)
	`, uuid.New(), staffID, booking.TimeOffDailyRecurring, lunch, lunch+60); err != nil {
		return err
	}

	if f.Number(0, 2) == 0 {
		start := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, f.IntRange(3, 20))
		end := start.AddDate(0, 0, f.IntRange(1, 5))
		if _, err := tx.Exec(ctx, `
			INSERT INTO time_off (id, staff_id, kind, start_at, end_at, enabled)
			VALUES ($1, $2, $3, $4, $5, TRUE)
		`, uuid.New(), staffID, booking.TimeOffAbsoluteRange, start, end); err != nil {
			return err
		}
	}
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
