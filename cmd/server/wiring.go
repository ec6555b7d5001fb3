package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"accounts/internal/platform/config"
	"accounts/internal/platform/metrics"
	"accounts/internal/platform/postgres"
	"accounts/internal/platform/ratelimit"
	"accounts/internal/platform/redis"
	"accounts/internal/platform/session"
	httptransport "accounts/internal/transport/http"
	"accounts/internal/users/form"
	"accounts/internal/users/handler"
	"accounts/internal/users/password"
	"accounts/internal/users/store"
	"accounts/internal/users/verification"
	audit "accounts/pkg/platform/audit"
	"accounts/pkg/platform/audit/publisher"
	auditmemory "accounts/pkg/platform/audit/store/memory"
	auditpostgres "accounts/pkg/platform/audit/store/postgres"
)

const auditBufferSize = 256

// app owns every long-lived resource so run can release them in one place.
type app struct {
	routerDeps httptransport.Deps
	closers    []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	health := map[string]httptransport.HealthCheck{}

	if cfg.UsesDevSigningKey() {
		log.Warn("using the development session signing key; set SESSION_SIGNING_KEY in production")
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	var (
		users      form.UserStore
		auditStore audit.Store
	)
	if db != nil {
		a.closers = append(a.closers, func() { _ = db.Close() })
		health["postgres"] = db.PingContext
		users, auditStore, err = postgresStores(ctx, db)
		if err != nil {
			a.Close()
			return nil, err
		}
		log.Info("using postgres stores")
	} else {
		users = store.NewInMemory()
		auditStore = auditmemory.NewInMemoryStore()
		log.Info("DATABASE_URL not set; keeping users in memory")
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	var (
		notices session.Store
		hits    ratelimit.Store
	)
	if rdb != nil {
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		health["redis"] = rdb.Health
		notices = session.NewRedisStore(rdb.Client, cfg.Session.TTL)
		hits = ratelimit.NewRedisStore(rdb.Client)
		log.Info("using redis session and rate limit stores")
	} else {
		notices = session.NewMemoryStore(cfg.Session.TTL)
		hits = ratelimit.NewMemoryStore()
	}

	notifier, err := buildNotifier(ctx, cfg.Kafka, log, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	sessions, err := session.NewManager(cfg.Session.SigningKey, cfg.Session.TTL, notices,
		session.WithCookieName(cfg.Session.CookieName),
		session.WithSecureCookie(cfg.Session.CookieSecure),
		session.WithLogger(log),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	auditor := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	)
	a.closers = append(a.closers, auditor.Close)

	m := metrics.New()
	throttle := ratelimit.New(hits, cfg.RateLimit.SignupLimit, cfg.RateLimit.SignupWindow,
		ratelimit.WithLogger(log),
		ratelimit.WithRecorder(m),
	)
	forms := form.NewBuilder(users, password.NewPolicy(cfg.Password.MinLength), password.NewHasher(0))
	signup, err := handler.New(forms, notifier, sessions,
		handler.WithLogger(log),
		handler.WithMetrics(m),
		handler.WithAuditPublisher(auditor),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.routerDeps = httptransport.Deps{
		Logger:   log,
		Metrics:  m,
		Gatherer: prometheus.DefaultGatherer,
		Sessions: sessions,
		Throttle: throttle.Middleware,
		Signup:   signup,
		Health:   health,

		TrustedProxies: cfg.Server.TrustedProxies,
	}
	return a, nil
}

func postgresStores(ctx context.Context, db *sql.DB) (form.UserStore, audit.Store, error) {
	users := store.NewPostgres(db)
	if err := users.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}
	audits := auditpostgres.New(db)
	if err := audits.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}
	return users, audits, nil
}

func buildNotifier(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger, a *app) (verification.Notifier, error) {
	if len(cfg.Brokers) == 0 {
		log.Info("KAFKA_BROKERS not set; verification requests are only logged")
		return verification.NewLogNotifier(log), nil
	}
	client, err := verification.NewKafkaClient(cfg.Brokers, kgo.ClientID("accounts"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	notifier := verification.NewKafkaNotifier(client, cfg.VerificationTopic)
	if err := verification.EnsureTopic(ctx, client, notifier.Topic(), 1, -1); err != nil {
		// Brokers may forbid topic creation; producing still works if the
		// topic was provisioned elsewhere.
		log.Warn("could not ensure verification topic", "topic", notifier.Topic(), "error", err)
	}
	log.Info("publishing verification requests to kafka", "topic", notifier.Topic())
	return notifier, nil
}
