package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config carries every tunable of the coordinator process. Values come from
// the environment with the defaults below; all components receive their
// slice of this struct explicitly at startup.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	PostgresDSN string
	RedisAddr   string
	NATSURL     string
	NotifyAddr  string
	JWTSecret   string

	TripSubject  string
	MatchWorkers int

	MatchRadiusKM float64
	MatchTopK     int
	LeaseTTL      time.Duration

	OutboxPoll  time.Duration
	OutboxBatch int
	OutboxRetry int

	AcceptRPS   float64
	AcceptBurst float64
	DriverRPS   float64
	DriverBurst float64
}

// Load reads configuration from the environment.
func Load() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("NATS_URL", "")
	v.SetDefault("NOTIFY_ADDR", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TRIP_SUBJECT", "trip.created")
	v.SetDefault("MATCH_WORKERS", 4)
	v.SetDefault("MATCH_RADIUS_KM", 10.0)
	v.SetDefault("MATCH_TOPK", 5)
	v.SetDefault("LEASE_TTL_SEC", 30)
	v.SetDefault("OUTBOX_POLL_MS", 200)
	v.SetDefault("OUTBOX_BATCH", 100)
	v.SetDefault("OUTBOX_RETRY_MAX", 3)
	v.SetDefault("ACCEPT_RPS", 10.0)
	v.SetDefault("ACCEPT_BURST", 20.0)
	v.SetDefault("DRIVER_RPS", 50.0)
	v.SetDefault("DRIVER_BURST", 100.0)

	return Config{
		HTTPAddr:      v.GetString("HTTP_ADDR"),
		GRPCAddr:      v.GetString("GRPC_ADDR"),
		PostgresDSN:   v.GetString("POSTGRES_DSN"),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		NATSURL:       v.GetString("NATS_URL"),
		NotifyAddr:    v.GetString("NOTIFY_ADDR"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		TripSubject:   v.GetString("TRIP_SUBJECT"),
		MatchWorkers:  v.GetInt("MATCH_WORKERS"),
		MatchRadiusKM: v.GetFloat64("MATCH_RADIUS_KM"),
		MatchTopK:     v.GetInt("MATCH_TOPK"),
		LeaseTTL:      time.Duration(v.GetInt("LEASE_TTL_SEC")) * time.Second,
		OutboxPoll:    time.Duration(v.GetInt("OUTBOX_POLL_MS")) * time.Millisecond,
		OutboxBatch:   v.GetInt("OUTBOX_BATCH"),
		OutboxRetry:   v.GetInt("OUTBOX_RETRY_MAX"),
		AcceptRPS:     v.GetFloat64("ACCEPT_RPS"),
		AcceptBurst:   v.GetFloat64("ACCEPT_BURST"),
		DriverRPS:     v.GetFloat64("DRIVER_RPS"),
		DriverBurst:   v.GetFloat64("DRIVER_BURST"),
	}
}
