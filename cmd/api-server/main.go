package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/staff-booking-engine/internal/api"
	"github.com/hackgods/staff-booking-engine/internal/booking"
	"github.com/hackgods/staff-booking-engine/internal/config"
	"github.com/hackgods/staff-booking-engine/internal/db"
	"github.com/hackgods/staff-booking-engine/internal/lock"
	"github.com/hackgods/staff-booking-engine/internal/metrics"
	"github.com/hackgods/staff-booking-engine/internal/mq"
	redisclient "github.com/hackgods/staff-booking-engine/internal/redis"
)

var version = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s timezone=%s lock_backend=%s", cfg.Env, cfg.HTTPPort, cfg.Zone, cfg.LockBackend)

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

	if cfg.MigrateOnStart {
		if err := db.Migrate(rootCtx, pgPool); err != nil {
			log.Fatalf("migration error: %v", err)
		}
	}

	// Pick the lock backend
	var (
		locker lock.Locker
		rdb    *redis.Client
	)
	switch cfg.LockBackend {
	case config.LockBackendRedis:
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("redis connection error: %v", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Printf("error closing redis: %v", err)
			}
		}()
		log.Println("connected to Redis")
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL.D())
	case config.LockBackendLocal:
		log.Println("using in-process locks; run a single api-server instance only")
		locker = lock.NewLocal()
	default:
		locker = lock.NewPostgres(pgPool)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, "booking")

	opts := []booking.Option{booking.WithMetrics(m)}

	// Optional event publishing
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
		log.Printf("publishing booking events to exchange=%s", cfg.AMQPExchange)
		opts = append(opts, booking.WithPublisher(pub))
	}

	repo := booking.NewPgRepository(pgPool)
	svc := booking.NewService(repo, locker, cfg, opts...)

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		DB:             pgPool,
		Redis:          rdb,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutdown signal received, shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.D())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}

	log.Println("api-server stopped")
}
