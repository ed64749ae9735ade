package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aidledger/internal/donation"
	"aidledger/internal/donation/ledger"
	donationmetrics "aidledger/internal/donation/metrics"
	"aidledger/internal/donation/service"
	"aidledger/internal/donation/store"
	"aidledger/internal/jwttoken"
	"aidledger/internal/platform/config"
	"aidledger/internal/platform/httpserver"
	"aidledger/internal/platform/logger"
	"aidledger/internal/platform/metrics"
	"aidledger/internal/platform/middleware"
	"aidledger/pkg/domain"
	auditkafka "aidledger/pkg/platform/audit/kafka"
	"aidledger/pkg/platform/audit/publisher"
	auditmemory "aidledger/pkg/platform/audit/store/memory"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in internal/donation.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Registry: Postgres when configured, otherwise in-memory.
	var donations store.Store
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := store.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			log.Error("failed to migrate donations schema", "error", err)
			os.Exit(1)
		}
		donations = pg
	} else {
		donations = store.NewInMemoryStore()
		log.Warn("POSTGRES_URL not set, using in-memory donation registry")
	}

	// Audit trail: in-memory store is the queryable source of truth; Kafka
	// ships a copy downstream when brokers are configured.
	auditStore := auditmemory.NewInMemoryStore()
	pubOpts := []publisher.Option{publisher.WithLogger(log)}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := auditkafka.NewSink(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		pubOpts = append(pubOpts, publisher.WithSink(sink))
	}
	auditLog := publisher.NewPublisher(auditStore, pubOpts...)
	defer auditLog.Close()

	escrow := domain.AccountID(cfg.EscrowAccount)
	book := ledger.NewInMemoryLedger()
	if cfg.EscrowFunding > 0 {
		if err := book.Deposit(ctx, escrow, cfg.EscrowFunding); err != nil {
			log.Error("failed to fund escrow account", "error", err)
			os.Exit(1)
		}
	}

	svc := donation.NewService(donations, book,
		service.WithAudit(auditLog),
		service.WithMetrics(donationmetrics.New()),
		service.WithEscrowAccount(escrow),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)
	h := donation.NewHandler(svc, auditLog, jwtService, log)

	platformMetrics := metrics.New()
	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Latency(platformMetrics))
	router.Use(middleware.ContentTypeJSON)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	h.Register(router)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting aidledger", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
