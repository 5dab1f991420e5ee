// Command server runs the registry: registration and admin APIs, the
// rate-limited lookup API, the audit outbox relay, and the Kafka audit
// consumer, all in one process.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	adminhandler "dataregistry/internal/admin/handler"
	"dataregistry/internal/admin/password"
	adminservice "dataregistry/internal/admin/service"
	adminstore "dataregistry/internal/admin/store/admin"
	"dataregistry/internal/admin/token"
	apikeyhandler "dataregistry/internal/apikey/handler"
	apikeyservice "dataregistry/internal/apikey/service"
	apikeystore "dataregistry/internal/apikey/store/apikey"
	"dataregistry/internal/canonical"
	canonicalstore "dataregistry/internal/canonical/store"
	"dataregistry/internal/domaincheck"
	lookuphandler "dataregistry/internal/lookup/handler"
	lookupservice "dataregistry/internal/lookup/service"
	"dataregistry/internal/notify"
	orghandler "dataregistry/internal/org/handler"
	orgservice "dataregistry/internal/org/service"
	orgstore "dataregistry/internal/org/store/org"
	"dataregistry/internal/platform/config"
	"dataregistry/internal/platform/httpserver"
	"dataregistry/internal/platform/kafka"
	"dataregistry/internal/platform/logger"
	"dataregistry/internal/platform/metrics"
	"dataregistry/internal/platform/postgres"
	"dataregistry/internal/platform/redis"
	"dataregistry/internal/ratelimit"
	ratelimitadmin "dataregistry/internal/ratelimit/admin"
	"dataregistry/internal/ratelimit/store/bucket"
	httptransport "dataregistry/internal/transport/http"
	userhandler "dataregistry/internal/user/handler"
	usermodels "dataregistry/internal/user/models"
	userservice "dataregistry/internal/user/service"
	userstore "dataregistry/internal/user/store/user"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/audit/consumer"
	auditpg "dataregistry/pkg/platform/audit/store/postgres"
	"dataregistry/pkg/platform/audit/publisher"
	"dataregistry/pkg/platform/audit/worker"
)

const (
	tokenIssuer     = "dataregistry"
	shutdownTimeout = 10 * time.Second
	consumerGroup   = "registry-audit-consumer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	log := logger.New()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.Migrate(db); err != nil {
		log.Error("run migrations", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	auditStore := auditpg.New(db)
	auditor := publisher.NewPublisher(auditStore, publisher.WithLogger(log))
	defer auditor.Close()

	allocator := canonical.NewAllocator(canonicalstore.NewPostgres(db))
	emailCheck := domaincheck.New()
	sender := notify.NewSendGrid(cfg.SendGrid, log)
	tokens := token.NewManager(cfg.JWTSigningKey, tokenIssuer, cfg.AdminTokenTTL)

	users := userstore.NewPostgres(db)
	orgs := orgstore.NewPostgres(db)
	admins := adminstore.NewPostgres(db)
	apiKeys := apikeystore.NewPostgres(db)

	userSvc := userservice.New(db, users, allocator, emailCheck, auditor, sender, m, log, cfg.BaseURL, cfg.SendGrid.AdminEmail)
	orgSvc := orgservice.New(db, orgs, userDirectory{users}, allocator, emailCheck, auditor, sender, m, log, cfg.BaseURL, cfg.SendGrid.AdminEmail)
	adminSvc := adminservice.New(db, admins, users, orgs, tokens, auditor, sender, m, log, password.Verify)
	apikeySvc := apikeyservice.New(apiKeys, auditor, log)
	lookupSvc := lookupservice.New(users, orgs, auditor, m, log)

	buckets, closeBuckets := bucketStore(ctx, cfg, log)
	defer closeBuckets()

	limitAdmin, err := ratelimitadmin.New(buckets,
		ratelimitadmin.WithLogger(log),
		ratelimitadmin.WithAuditPublisher(auditor),
	)
	if err != nil {
		log.Error("build rate limit admin", "error", err)
		os.Exit(1)
	}

	limiterOpts := []ratelimit.LimiterOption{}
	if cfg.RateLimitDisabled {
		limiterOpts = append(limiterOpts, ratelimit.Disabled())
	}
	limiter := ratelimit.NewLimiter(buckets, auditor, m, log, limiterOpts...)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger: log,
		Public: []httptransport.Registrar{
			userhandler.New(userSvc, log, tokens),
			orghandler.New(orgSvc, log, tokens),
			adminhandler.New(adminSvc, log, tokens),
			apikeyhandler.New(apikeySvc, limitAdmin, log, tokens),
		},
		Lookup:  lookuphandler.New(lookupSvc, log),
		Keys:    apikeySvc,
		Limiter: limiter,
		Metrics: m,
		Ready:   db.PingContext,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting registry", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		if err := runAuditPipeline(ctx, g, cfg, auditStore, log); err != nil {
			log.Error("start audit pipeline", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("kafka brokers not configured, audit outbox relay disabled")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// runAuditPipeline starts the outbox relay and the consumer that
// materializes audit messages back into the queryable table.
func runAuditPipeline(ctx context.Context, g *errgroup.Group, cfg config.Config, store *auditpg.Store, log *slog.Logger) error {
	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return err
	}

	consumerClient, err := kafka.NewConsumer(cfg.Kafka, consumerGroup, log)
	if err != nil {
		producer.Close()
		return err
	}

	relay := worker.New(store, producer, log)
	handle := consumer.NewHandler(store, log)

	g.Go(func() error {
		defer producer.Close()
		err := relay.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		defer consumerClient.Close()
		err := consumerClient.Run(ctx, func(ctx context.Context, msg *kafka.Message) error {
			return handle.Handle(ctx, *msg)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return nil
}

// bucketStore picks Redis when configured and falls back to the
// in-process sliding window otherwise.
func bucketStore(ctx context.Context, cfg config.Config, log *slog.Logger) (ratelimit.BucketStore, func()) {
	if cfg.Redis.URL == "" {
		log.Info("redis not configured, using in-memory rate limit buckets")
		return bucket.NewInMemoryStore(), func() {}
	}

	client, err := redis.New(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, using in-memory rate limit buckets", "error", err)
		return bucket.NewInMemoryStore(), func() {}
	}
	if err := client.Health(ctx); err != nil {
		log.Warn("redis unhealthy, using in-memory rate limit buckets", "error", err)
		_ = client.Close()
		return bucket.NewInMemoryStore(), func() {}
	}
	return bucket.NewRedisStore(client), func() { _ = client.Close() }
}

// userDirectory adapts the user store to the membership checks the
// organization service performs.
type userDirectory struct {
	store *userstore.PostgresStore
}

func (d userDirectory) Get(ctx context.Context, userID domain.UserID) (*usermodels.User, error) {
	return d.store.FindByID(ctx, userID)
}
