package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"consent-ledger/internal/blob"
	credhandler "consent-ledger/internal/credential/handler"
	"consent-ledger/internal/credential/issuer"
	"consent-ledger/internal/credential/signer"
	"consent-ledger/internal/credential/verifier"
	ledgerhandler "consent-ledger/internal/ledger/handler"
	ledgermetrics "consent-ledger/internal/ledger/metrics"
	ledgerservice "consent-ledger/internal/ledger/service"
	ledgerstore "consent-ledger/internal/ledger/store"
	"consent-ledger/internal/platform/config"
	"consent-ledger/internal/platform/database"
	"consent-ledger/internal/platform/health"
	"consent-ledger/internal/platform/kafka"
	"consent-ledger/internal/platform/kafka/consumer"
	"consent-ledger/internal/platform/kafka/producer"
	platformmetrics "consent-ledger/internal/platform/metrics"
	"consent-ledger/internal/platform/redis"
	"consent-ledger/internal/platform/tracer"
	"consent-ledger/migrations"
	audit "consent-ledger/pkg/platform/audit"
	auditconsumer "consent-ledger/pkg/platform/audit/consumer"
	auditmetrics "consent-ledger/pkg/platform/audit/metrics"
	"consent-ledger/pkg/platform/audit/publisher"
	auditfallback "consent-ledger/pkg/platform/audit/store/fallback"
	auditkafka "consent-ledger/pkg/platform/audit/store/kafka"
	auditmemory "consent-ledger/pkg/platform/audit/store/memory"
	auditpostgres "consent-ledger/pkg/platform/audit/store/postgres"
	"consent-ledger/pkg/platform/circuit"
	"consent-ledger/pkg/platform/middleware/metadata"
	"consent-ledger/pkg/platform/middleware/request"
	"consent-ledger/pkg/platform/validation"
	"consent-ledger/pkg/secrets"
)

const (
	auditBufferSize   = 1024
	poolStatsInterval = 15 * time.Second
)

// app is the wired process: its router, background loops and ordered
// shutdown hooks.
type app struct {
	handler    http.Handler
	background []func(ctx context.Context) error
	closers    []func(ctx context.Context) error
}

func (a *app) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close runs shutdown hooks in reverse registration order.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func newApp(ctx context.Context, cfg config.Server, log *slog.Logger, reg *prometheus.Registry) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	healthHandler := health.New(cfg.Environment)
	poolMetrics := platformmetrics.New(reg)
	var poolRecorders []func()

	// Relational store
	pool, err := database.New(ctx, database.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	var db *sql.DB
	if pool != nil {
		a.onClose(func(context.Context) error { return pool.Close() })
		db = pool.DB()
		if err := migrations.Apply(ctx, db); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		healthHandler.RegisterCheck("database", pool.Health)
		poolRecorders = append(poolRecorders, func() { pool.RecordStats(poolMetrics) })
	}

	// Redis
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		a.onClose(func(context.Context) error { return redisClient.Close() })
		healthHandler.RegisterCheck("redis", redisClient.Health)
		poolRecorders = append(poolRecorders, func() { redisClient.RecordPoolStats(poolMetrics) })
	}
	if len(poolRecorders) > 0 {
		a.background = append(a.background, func(ctx context.Context) error {
			return platformmetrics.Poll(ctx, poolStatsInterval, poolRecorders...)
		})
	}

	blobs, err := openBlobStore(cfg.Blob, redisClient, log, healthHandler, a)
	if err != nil {
		return nil, err
	}

	auditor, err := buildAudit(ctx, cfg, db, log, reg, healthHandler, a)
	if err != nil {
		return nil, err
	}

	// Credentials
	baseSigner, err := signer.New(cfg.Signer.PrivateKey)
	if err != nil {
		return nil, err
	}
	tokenKey, err := signer.NewTokenKey(cfg.Signer.TokenSecret)
	if err != nil {
		return nil, err
	}
	trusted := cfg.Signer.TrustedIssuers
	if did, err := baseSigner.Identity(); err == nil && len(trusted) == 0 {
		trusted = []string{did}
	}
	if len(trusted) > validation.MaxTrustedIssuers {
		return nil, fmt.Errorf("TRUSTED_ISSUERS: at most %d issuers", validation.MaxTrustedIssuers)
	}
	if !tokenKey.Configured() {
		log.Warn("TOKEN_SECRET not set; token credentials are disabled")
	} else if err := secrets.CheckStrength(cfg.Signer.TokenSecret); err != nil {
		log.Warn("TOKEN_SECRET is weak", "error", err)
	}

	otel := tracer.NewOTel(nil)
	credIssuer := issuer.New(signer.WithTimeout(baseSigner, cfg.Signer.Timeout),
		issuer.WithTokenKey(tokenKey),
		issuer.WithTokenTTL(cfg.Signer.TokenTTL),
		issuer.WithTracer(otel),
	)
	credVerifier := verifier.New(
		verifier.WithTokenKey(tokenKey),
		verifier.WithTrustedIssuers(trusted...),
	)

	// Ledger
	ledgerMetrics := ledgermetrics.New(reg)
	opts := []ledgerservice.Option{
		ledgerservice.WithLogger(log),
		ledgerservice.WithMetrics(ledgerMetrics),
		ledgerservice.WithAuditor(auditor),
		ledgerservice.WithTracer(otel),
	}
	var store ledgerservice.Store
	if db != nil {
		store = ledgerstore.NewPostgres(db)
		opts = append(opts, ledgerservice.WithTx(newLedgerPostgresTx(db, cfg.TxTimeout, ledgerMetrics.ObserveLockWait)))
	} else {
		store = ledgerstore.New()
		log.Warn("DATABASE_URL not set; ledger state is kept in memory")
	}
	ledger := ledgerservice.New(store, credIssuer, blobs, opts...)

	// HTTP
	proxies, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	meta := metadata.NewMiddleware(metadata.Config{TrustedProxies: proxies}, log)

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	r.Use(meta.ClientIP)
	r.Use(request.Logger(log))
	r.Use(request.LatencyMiddleware(request.NewMetrics(reg)))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(cfg.RequestTimeout))
		r.Group(func(r chi.Router) {
			r.Use(request.BodyLimit(validation.MaxBodySize))
			r.Use(request.ContentTypeJSON)
			ledgerhandler.New(ledger, log).Register(r, meta.RequireCaller)
		})
		credhandler.New(credVerifier, blobs, log, credhandler.WithMetrics(credhandler.NewMetrics(reg))).
			Register(r, meta.RequireCaller)
	})

	a.handler = r
	return a, nil
}

func openBlobStore(cfg config.BlobConfig, redisClient *redis.Client, log *slog.Logger, h *health.Handler, a *app) (blob.Store, error) {
	switch cfg.Backend {
	case config.BlobBadger:
		b, err := blob.OpenBadger(cfg.BadgerDir, log)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return b.Close() })
		h.RegisterCheck("blob", b.Health)
		return b, nil
	case config.BlobRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis blob backend requires REDIS_URL")
		}
		return blob.NewRedis(redisClient.Client), nil
	default:
		return blob.NewMemory(), nil
	}
}

// buildAudit picks the event sink: Kafka when brokers are configured, else
// postgres when a database is, else memory. With Kafka and a database, the
// postgres table also backs the Kafka sink while its breaker is open, and an
// ingest consumer copies the stream into it.
func buildAudit(ctx context.Context, cfg config.Server, db *sql.DB, log *slog.Logger, reg prometheus.Registerer, h *health.Handler, a *app) (*audit.Logger, error) {
	m := auditmetrics.New(reg)

	var sink audit.Store
	switch {
	case cfg.Kafka.Enabled():
		brokers := kafka.ParseBrokers(cfg.Kafka.Brokers)
		prod, err := producer.New(kafka.DefaultProducerConfig(brokers), log)
		if err != nil {
			return nil, err
		}
		a.onClose(prod.Close)
		admin, err := kafka.NewAdmin(brokers)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error {
			admin.Close()
			return nil
		})
		if err := admin.EnsureTopic(ctx, cfg.Kafka.EventsTopic); err != nil {
			log.Warn("could not provision audit topic", "topic", cfg.Kafka.EventsTopic, "error", err)
		}
		h.RegisterCheck(admin.Name(), admin.Check)
		sink = auditkafka.NewSink(prod, cfg.Kafka.EventsTopic)
		if db != nil {
			sink = auditfallback.New(sink, auditpostgres.New(db), circuit.New("audit_kafka"), log)
		}

		if db != nil && cfg.Kafka.IngestGroup != "" {
			handler := auditconsumer.NewHandler(auditpostgres.New(db), log, m)
			c, err := consumer.New(kafka.DefaultConsumerConfig(brokers, cfg.Kafka.IngestGroup, cfg.Kafka.EventsTopic), handler, log)
			if err != nil {
				return nil, err
			}
			a.background = append(a.background, c.Run)
		}
	case db != nil:
		sink = auditpostgres.New(db)
	default:
		sink = auditmemory.NewInMemoryStore()
	}

	pub := publisher.NewPublisher(sink,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithPublisherLogger(log),
		publisher.WithMetrics(m),
	)
	a.onClose(func(context.Context) error {
		pub.Close()
		return nil
	})
	return audit.NewLogger(log, pub), nil
}
