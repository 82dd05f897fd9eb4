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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"unykorn/internal/platform/config"
	"unykorn/internal/platform/httpserver"
	"unykorn/internal/platform/kafka"
	"unykorn/internal/platform/kafka/consumer"
	"unykorn/internal/platform/logger"
	"unykorn/internal/platform/metrics"
	"unykorn/internal/platform/postgres"
	"unykorn/internal/platform/redis"
	"unykorn/internal/protocol"
	"unykorn/internal/settlement"
	"unykorn/pkg/domain"
	audit "unykorn/pkg/platform/audit"
	auditconsumer "unykorn/pkg/platform/audit/consumer"
	"unykorn/pkg/platform/audit/publisher"
	"unykorn/pkg/platform/audit/publishers/ops"
	"unykorn/pkg/platform/audit/store/memory"
	auditpostgres "unykorn/pkg/platform/audit/store/postgres"
	"unykorn/pkg/platform/audit/worker"
)

// main wires the ledger, its optional infrastructure and the ops endpoints.
// Business logic lives in the protocol and its component packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("ledger stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	genesis, err := config.LoadGenesis(cfg.GenesisPath)
	if err != nil {
		return err
	}
	if cfg.Admin != "" {
		admin, err := domain.ParseAddress(cfg.Admin)
		if err != nil {
			return fmt.Errorf("LEDGER_ADMIN: %w", err)
		}
		genesis.Admin = admin
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	checks := map[string]httpserver.Check{}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if err := postgres.Migrate(ctx, db, log); err != nil {
			return err
		}
		checks["postgres"] = db.PingContext
	}

	var store audit.Store = memory.NewInMemoryStore()
	if db != nil {
		store = auditpostgres.New(db)
	}
	store = ops.New(store,
		ops.WithCircuitBreaker(ops.NewCircuitBreaker(5, 30*time.Second)),
		ops.WithMetrics(ops.NewMetrics(reg)),
		ops.WithLogger(log),
	)
	auditPublisher := publisher.NewPublisher(store, publisher.WithAsyncBuffer(1024), publisher.WithLogger(log))
	defer auditPublisher.Close()

	opts := []protocol.Option{
		protocol.WithLogger(log),
		protocol.WithAuditPublisher(auditPublisher),
		protocol.WithMetrics(m),
		protocol.WithTracerProvider(otel.GetTracerProvider()),
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		opts = append(opts, protocol.WithReferenceStore(
			settlement.NewRedisReferenceStore(rdb.Client, cfg.Redis.KeyPrefix, cfg.Redis.ReferenceTTL)))
		checks["redis"] = rdb.Health
	}

	ledger, err := protocol.New(ctx, genesis, opts...)
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	checks["ledger"] = func(context.Context) error { return ledger.Ready() }
	log.InfoContext(ctx, "ledger initialized",
		"admin", genesis.Admin.String(),
		"compliance_gated", genesis.ComplianceGated,
		"burn_rate_bps", uint32(ledger.BurnRate()),
	)

	g, ctx := errgroup.WithContext(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		defer producer.Close()
		topics := []string{cfg.Kafka.SettlementTopic}
		for _, cat := range audit.Categories() {
			topics = append(topics, audit.Topic(cfg.Kafka.AuditTopicPrefix, cat))
		}
		if err := producer.EnsureTopics(ctx, 1, 1, topics...); err != nil {
			return err
		}
		checks["kafka"] = producer.Health

		if err := startSettlementConsumer(g, ctx, cfg, ledger, log); err != nil {
			return err
		}
		if db != nil {
			if err := startAuditPipeline(g, ctx, cfg, db, producer, m, log); err != nil {
				return err
			}
		}
	}

	srv := httpserver.New(cfg.Addr, httpserver.NewOpsRouter(reg, checks))
	g.Go(func() error {
		log.InfoContext(ctx, "starting ledger ops server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func startSettlementConsumer(g *errgroup.Group, ctx context.Context, cfg config.Server, ledger *protocol.Protocol, log *slog.Logger) error {
	if cfg.Settlement.SigningKey == "" {
		log.WarnContext(ctx, "settlement consumer disabled: SETTLEMENT_SIGNING_KEY not set")
		return nil
	}
	codec, err := settlement.NewCodec(cfg.Settlement.SigningKey, "")
	if err != nil {
		return err
	}
	c, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup+".settlement",
		[]string{cfg.Kafka.SettlementTopic}, settlement.NewConsumer(ledger.Settlement(), codec, log), log)
	if err != nil {
		return err
	}
	g.Go(func() error { return c.Run(ctx) })
	return nil
}

// startAuditPipeline relays the outbox to per-category topics and
// materializes them back into the queryable audit_events table.
func startAuditPipeline(g *errgroup.Group, ctx context.Context, cfg config.Server, db *sql.DB, producer *kafka.Client, m *metrics.Metrics, log *slog.Logger) error {
	relay := worker.NewRelay(db, producer, cfg.Kafka.AuditTopicPrefix,
		worker.WithBatchSize(cfg.Kafka.RelayBatchSize),
		worker.WithInterval(cfg.Kafka.RelayInterval),
		worker.WithLogger(log),
		worker.WithRelayHook(m.AddOutboxRelayed),
	)
	g.Go(func() error { return relay.Run(ctx) })

	router := auditconsumer.NewCategoryRouter(cfg.Kafka.AuditTopicPrefix, auditpostgres.New(db), log)
	c, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup+".audit", router.Topics(), router, log)
	if err != nil {
		return err
	}
	g.Go(func() error { return c.Run(ctx) })
	return nil
}
