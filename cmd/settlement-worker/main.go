package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"github.com/hackgods/staff-booking-engine/internal/booking"
	"github.com/hackgods/staff-booking-engine/internal/config"
	"github.com/hackgods/staff-booking-engine/internal/db"
	"github.com/hackgods/staff-booking-engine/internal/lock"
	"github.com/hackgods/staff-booking-engine/internal/mq"
)

// only one worker instance runs a maintenance pass at a time
const workerLockKey = "settlement-worker"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("settlement-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running settlement worker in env=%s schedule=%q auto_settle_after=%s", cfg.Env, cfg.WorkerSchedule, cfg.AutoSettleAfter.D())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	shared := &db.Shared{DSN: cfg.PostgresDSN, MaxConns: cfg.PostgresMaxConn}
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := shared.Pool(pgCtx)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer shared.Close()
	log.Println("connected to Postgres")

	var opts []booking.Option
	if cfg.AMQPURL != "" {
		pub, err := mq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("amqp connection error: %v", err)
		}
		defer func() {
			if err := pub.Close(); err != nil {
				log.Printf("error closing amqp publisher: %v", err)
			}
		}()
		opts = append(opts, booking.WithPublisher(pub))
	}

	locker := lock.NewPostgres(pgPool)
	repo := booking.NewPgRepository(pgPool)
	svc := booking.NewService(repo, locker, cfg, opts...)

	c := cron.New(
		cron.WithLocation(cfg.Zone.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(cfg.WorkerSchedule, func() { runOnce(rootCtx, svc, locker, cfg) }); err != nil {
		log.Fatalf("invalid WORKER_SCHEDULE %q: %v", cfg.WorkerSchedule, err)
	}

	// Run once at startup
	runOnce(rootCtx, svc, locker, cfg)

	c.Start()
	log.Println("settlement scheduler started")

	<-rootCtx.Done()
	log.Println("shutdown signal received, stopping settlement worker")
	<-c.Stop().Done()
}

func runOnce(ctx context.Context, svc *booking.Service, locker lock.Locker, cfg config.Config) {
	runCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
	defer cancel()

	start := time.Now()
	err := locker.WithExclusiveSection(runCtx, workerLockKey, 2*time.Second, func(ctx context.Context) error {
		report, err := svc.RunMaintenance(ctx, cfg.AutoSettleAfter.D())
		if err != nil {
			return err
		}
		log.Printf("maintenance run complete in %s normalized=%d repaired=%d settled=%d",
			time.Since(start), report.Normalized, report.Repaired, report.Settled)
		return nil
	})
	switch {
	case errors.Is(err, lock.ErrLockTimeout):
		log.Println("another worker is running maintenance, skipping")
	case err != nil:
		log.Printf("maintenance run error: %v", err)
	}
}
