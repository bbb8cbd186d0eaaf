package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/ridematch/internal/config"
	"github.com/example/ridematch/internal/location"
	"github.com/example/ridematch/internal/rpc"
	"github.com/example/ridematch/internal/trip/domain"
	"github.com/example/ridematch/internal/trip/geo"
	"github.com/example/ridematch/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("location-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "location-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := config.Load()

	var index domain.DriverIndex
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
		index = geo.NewRedisDriverIndex(redisClient)
	} else {
		logger.Warn("redis not configured, positions stay in process memory")
		index = geo.NewMemoryDriverIndex()
	}

	avail := location.NewAvailability(index, logger.Named("availability"))

	go runMetrics(logger, cfg.HTTPAddr, redisClient)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}
	srv := grpc.NewServer(grpc.ForceServerCodec(rpc.Codec{}))
	location.RegisterLocationServer(srv, location.NewServer(avail, logger.Named("stream")))

	go func() {
		logger.Info("location grpc listening", zap.String("addr", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil {
			logger.Fatal("grpc serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		srv.Stop()
	}
}

func runMetrics(logger *zap.Logger, addr string, redisClient *redis.Client) {
	var checks []observability.Check
	if redisClient != nil {
		checks = append(checks, observability.Check{
			Name:  "redis",
			Probe: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	r := chi.NewRouter()
	r.Mount("/observability", observability.MetricsRouter(checks...))

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("location metrics listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("metrics server", zap.Error(err))
	}
}
