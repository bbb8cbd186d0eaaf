package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/ridematch/internal/auth"
	"github.com/example/ridematch/internal/config"
	"github.com/example/ridematch/internal/events"
	ratelimit "github.com/example/ridematch/internal/http/middleware"
	"github.com/example/ridematch/internal/location"
	"github.com/example/ridematch/internal/notify"
	"github.com/example/ridematch/internal/outbox"
	"github.com/example/ridematch/internal/rpc"
	"github.com/example/ridematch/internal/trip/domain"
	"github.com/example/ridematch/internal/trip/geo"
	"github.com/example/ridematch/internal/trip/handler"
	"github.com/example/ridematch/internal/trip/lease"
	"github.com/example/ridematch/internal/trip/match"
	"github.com/example/ridematch/internal/trip/repository"
	tripservice "github.com/example/ridematch/internal/trip/service"
	"github.com/example/ridematch/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("match-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "match-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := config.Load()

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres connect", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("postgres ping", zap.Error(err))
		}
		defer db.Close()
		if err := repository.Migrate(db); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("matchservice")); err == nil {
			natsConn = conn
			defer conn.Drain()
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	var index domain.DriverIndex
	var leases domain.LeaseStore
	if redisClient != nil {
		index = geo.NewRedisDriverIndex(redisClient)
		leases = lease.NewRedisStore(redisClient)
	} else {
		logger.Warn("redis not configured, using in-process index and leases")
		index = geo.NewMemoryDriverIndex()
		leases = lease.NewMemoryStore()
	}

	var repo domain.Repository
	if db != nil {
		repo = repository.NewPostgresRepository(db)
	} else {
		repo = repository.NewMemoryRepository()
	}

	notifier, closeNotifier := buildNotifier(cfg, logger)
	defer closeNotifier()

	svc := tripservice.New(repo, index, leases, notifier, domain.SystemClock{}, logger.Named("trip"), cfg.LeaseTTL)
	avail := location.NewAvailability(index, logger.Named("availability"))
	engine := match.NewEngine(index, notifier, logger.Named("matcher"), match.Config{
		CandidateLimit: cfg.MatchTopK,
		SearchRadiusKM: cfg.MatchRadiusKM,
	})

	if natsConn != nil {
		sub := events.NewSubscriber(natsConn, cfg.TripSubject, cfg.MatchWorkers, engine.HandleTripCreated, logger.Named("events"))
		if err := sub.Start(ctx); err != nil {
			logger.Fatal("subscribe", zap.Error(err))
		}
		defer sub.Close()
	} else {
		logger.Warn("nats not configured, matching passes will not run")
	}

	if db != nil && natsConn != nil {
		relay := outbox.NewRelay(db, natsConn, logger.Named("outbox"), outbox.RelayConfig{
			PollInterval: cfg.OutboxPoll,
			BatchSize:    cfg.OutboxBatch,
			RetryMax:     cfg.OutboxRetry,
		})
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox relay stopped", zap.Error(err))
			}
		}()
	}

	r := chi.NewRouter()
	api := handler.NewHTTP(svc, avail, events.NewPublisher(natsConn, cfg.TripSubject)).Router()
	if cfg.JWTSecret != "" {
		api = auth.Middleware(cfg.JWTSecret, "driver")(api)
	}
	if limiter := ratelimit.NewRateLimiter(redisClient,
		ratelimit.RateConfig{Rate: cfg.AcceptRPS, Burst: cfg.AcceptBurst},
		ratelimit.RateConfig{Rate: cfg.DriverRPS, Burst: cfg.DriverBurst},
	); limiter != nil {
		api = limiter.Middleware(api)
	}
	r.Mount("/", api)
	r.Mount("/observability", observability.MetricsRouter(readinessChecks(db, redisClient)...))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("match service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func buildNotifier(cfg config.Config, logger *zap.Logger) (domain.Notifier, func()) {
	if cfg.NotifyAddr == "" {
		return notify.NewLogDispatcher(logger.Named("notify")), func() {}
	}
	cc, err := grpc.Dial(cfg.NotifyAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rpc.Codec{})))
	if err != nil {
		logger.Warn("notification dial failed, falling back to log dispatcher", zap.Error(err))
		return notify.NewLogDispatcher(logger.Named("notify")), func() {}
	}
	return notify.NewGRPCDispatcher(cc, 0), func() { _ = cc.Close() }
}

func readinessChecks(db *sql.DB, redisClient *redis.Client) []observability.Check {
	var checks []observability.Check
	if db != nil {
		checks = append(checks, observability.Check{Name: "postgres", Probe: db.PingContext})
	}
	if redisClient != nil {
		checks = append(checks, observability.Check{
			Name:  "redis",
			Probe: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return checks
}
