// The registrar server wires stores, the seat guard, the admission service
// and the sync orchestrator, then serves the operational HTTP endpoints.
// Business logic lives in the internal packages; main stays wiring-only.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"registrar/internal/enrollment/guard"
	enrollmetrics "registrar/internal/enrollment/metrics"
	"registrar/internal/enrollment/ports"
	"registrar/internal/enrollment/service"
	"registrar/internal/enrollment/store/catalog"
	"registrar/internal/enrollment/store/record"
	"registrar/internal/notify/kafka"
	"registrar/internal/platform/config"
	"registrar/internal/platform/httpserver"
	"registrar/internal/platform/logger"
	platformredis "registrar/internal/platform/redis"
	syncmetrics "registrar/internal/sync/metrics"
	syncmodels "registrar/internal/sync/models"
	"registrar/internal/sync/orchestrator"
	"registrar/internal/sync/reconciler"
	httptransport "registrar/internal/transport/http"
	"registrar/pkg/platform/circuit"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("registrar exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	cat := catalog.NewInMemory()
	seatGuard, err := guard.New(cat)
	if err != nil {
		return err
	}

	checks := map[string]httptransport.HealthFunc{}

	// Primary record store: postgres when configured, else redis, else
	// memory for local development.
	var (
		primary ports.RecordStore
		pgStore *record.PostgresStore
		replica *record.RedisStore
	)
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		checks["postgres"] = db.PingContext
		pgStore = record.NewPostgres(db)
		primary = pgStore
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = redisClient.Health
		replica = record.NewRedis(redisClient.Client, 0)
	}
	if primary == nil {
		if replica != nil {
			primary, replica = replica, nil
		} else {
			primary = record.NewInMemory()
			log.Warn("no record store configured, using in-memory store")
		}
	}

	var sink ports.NotificationSink
	publisher, err := kafka.New(cfg.Kafka, kafka.WithLogger(log))
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	if publisher != nil {
		defer publisher.Close()
		sink = publisher
	}

	breaker := circuit.New("record-store",
		circuit.WithFailureThreshold(cfg.BreakerThreshold),
		circuit.WithCooldown(cfg.BreakerCooldown))

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(enrollmetrics.New()),
		service.WithMaxInFlight(cfg.MaxInFlight),
		service.WithBreaker(breaker),
	}
	if sink != nil {
		opts = append(opts, service.WithNotificationSink(sink))
	}
	admission, err := service.New(seatGuard, primary, opts...)
	if err != nil {
		return err
	}

	// With both stores configured, postgres is authoritative and redis is
	// a read replica refreshed by periodic reconciliation.
	if pgStore != nil && replica != nil {
		rec, err := reconciler.New(cat, reconciler.WithLogger(log))
		if err != nil {
			return err
		}
		syncOpts := []orchestrator.Option{
			orchestrator.WithLogger(log),
			orchestrator.WithMetrics(syncmetrics.New()),
			orchestrator.WithChunkSize(cfg.SyncChunkSize),
		}
		if sink != nil {
			syncOpts = append(syncOpts, orchestrator.WithNotificationSink(sink))
		}
		orch, err := orchestrator.New(rec, replica, syncOpts...)
		if err != nil {
			return err
		}
		go func() {
			err := orch.SchedulePeriodicSync(ctx, cfg.SyncInterval, pgStore.List, syncmodels.LastWriteWins())
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("periodic sync stopped", "error", err)
			}
		}()
	}

	router := httptransport.NewRouter(checks, admission.Breaker())
	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("registrar listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
