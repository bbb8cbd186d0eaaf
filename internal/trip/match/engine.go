package match

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/ridematch/internal/trip/domain"
)

// Config tunes the candidate search.
type Config struct {
	CandidateLimit int
	SearchRadiusKM float64
}

// Engine consumes trip-created signals, ranks nearby free drivers and
// notifies each candidate. Dispatch is best effort per driver: one failed
// notification never aborts the rest of the fan-out.
type Engine struct {
	index    domain.DriverIndex
	notifier domain.Notifier
	logger   *zap.Logger
	cfg      Config
}

// NewEngine builds a matching engine from its collaborators.
func NewEngine(index domain.DriverIndex, notifier domain.Notifier, logger *zap.Logger, cfg Config) *Engine {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 5
	}
	if cfg.SearchRadiusKM <= 0 {
		cfg.SearchRadiusKM = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{index: index, notifier: notifier, logger: logger, cfg: cfg}
}

// HandleTripCreated runs one matching pass for the trip. An empty candidate
// list is a normal outcome, not an error; the trip simply has no match yet.
func (e *Engine) HandleTripCreated(ctx context.Context, event domain.MatchEvent) {
	start := time.Now()

	candidates, err := e.index.RadiusQuery(ctx, domain.SetFree, event.Source, e.cfg.SearchRadiusKM, e.cfg.CandidateLimit)
	if err != nil {
		matchingDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		e.logger.Error("driver search failed", zap.Int64("trip_id", event.TripID), zap.Error(err))
		return
	}
	candidatesFound.Observe(float64(len(candidates)))

	if len(candidates) == 0 {
		matchingDuration.WithLabelValues("no_driver").Observe(time.Since(start).Seconds())
		e.logger.Info("no free driver within radius",
			zap.Int64("trip_id", event.TripID),
			zap.Float64("radius_km", e.cfg.SearchRadiusKM))
		return
	}

	body := fmt.Sprintf("Do you want to take trip %d?", event.TripID)
	for _, candidate := range candidates {
		if err := e.notifier.Send(ctx, candidate.DriverID, "New trip offer", body); err != nil {
			notifyFailures.Inc()
			e.logger.Warn("driver notification failed",
				zap.Int64("trip_id", event.TripID),
				zap.Int64("driver_id", candidate.DriverID),
				zap.Error(err))
			continue
		}
		e.logger.Debug("driver notified",
			zap.Int64("trip_id", event.TripID),
			zap.Int64("driver_id", candidate.DriverID),
			zap.Float64("distance_km", candidate.DistanceKM))
	}
	matchingDuration.WithLabelValues("notified").Observe(time.Since(start).Seconds())
}
