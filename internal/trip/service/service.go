package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ridematch/internal/trip/domain"
)

// Service is the acceptance coordinator. It owns the single-winner accept
// protocol and trip cancellation; every other trip mutation happens outside
// this process.
type Service struct {
	repo     domain.Repository
	index    domain.DriverIndex
	leases   domain.LeaseStore
	notifier domain.Notifier
	clock    domain.Clock
	logger   *zap.Logger
	leaseTTL time.Duration
}

// New constructs a Service with the required collaborators.
func New(repo domain.Repository, index domain.DriverIndex, leases domain.LeaseStore, notifier domain.Notifier, clock domain.Clock, logger *zap.Logger, leaseTTL time.Duration) *Service {
	if leaseTTL <= 0 {
		leaseTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		index:    index,
		leases:   leases,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		leaseTTL: leaseTTL,
	}
}

// LeaseKey is the mutual-exclusion key for accept attempts on one trip.
func LeaseKey(tripID int64) string {
	return fmt.Sprintf("trip-lock:%d", tripID)
}

// AcceptTrip runs the single-winner acceptance protocol. The per-trip lease
// is the sole synchronization point: of N concurrent callers exactly one
// acquires it and may mutate shared state; the rest fail with
// ErrTripAlreadyTaken before touching anything. Every mutation made after
// the lease and before the commit (the repo save) has a compensating move on
// each failure path, so a losing or aborted attempt leaves the driver in the
// free set and the trip untouched.
func (s *Service) AcceptTrip(ctx context.Context, tripID, driverID int64) (domain.Trip, error) {
	token := uuid.NewString()
	key := LeaseKey(tripID)

	acquired, err := s.leases.Acquire(ctx, key, token, s.leaseTTL)
	if err != nil {
		acceptAttempts.WithLabelValues("lease_error").Inc()
		return domain.Trip{}, fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		acceptAttempts.WithLabelValues("contended").Inc()
		return domain.Trip{}, domain.ErrTripAlreadyTaken
	}
	defer func() {
		// Unconditional cleanup; the release is owner-verified so a
		// late release cannot clobber a successor's lease. Detached from
		// the caller's cancellation so cleanup still runs on timeout.
		released, err := s.leases.Release(context.WithoutCancel(ctx), key, token)
		if err != nil {
			s.logger.Warn("lease release failed", zap.Int64("trip_id", tripID), zap.Error(err))
		} else if !released {
			s.logger.Warn("lease expired before release", zap.Int64("trip_id", tripID))
		}
	}()

	pos, err := s.index.Position(ctx, domain.SetFree, driverID)
	if err != nil {
		acceptAttempts.WithLabelValues("driver_unavailable").Inc()
		return domain.Trip{}, err
	}

	if err := s.index.AddInTrip(ctx, driverID, pos); err != nil {
		acceptAttempts.WithLabelValues("index_error").Inc()
		return domain.Trip{}, fmt.Errorf("move driver to in-trip: %w", err)
	}

	// Re-read under the lease: the trip may have been cancelled while the
	// caller was racing for the lease. Without this check a cancelled trip
	// could still end up ACCEPTED.
	trip, err := s.repo.FindByID(ctx, tripID)
	if err != nil {
		s.returnDriverToFree(ctx, driverID, pos)
		acceptAttempts.WithLabelValues("not_found").Inc()
		return domain.Trip{}, err
	}
	if trip.Status != domain.StatusPending {
		s.returnDriverToFree(ctx, driverID, pos)
		acceptAttempts.WithLabelValues("not_acceptable").Inc()
		return domain.Trip{}, domain.ErrTripNotAcceptable
	}

	trip.DriverID = &driverID
	trip.Status = domain.StatusAccepted
	trip.UpdatedAt = s.clock.Now()

	updated, err := s.repo.Save(ctx, trip)
	if err != nil {
		s.returnDriverToFree(ctx, driverID, pos)
		acceptAttempts.WithLabelValues("save_error").Inc()
		return domain.Trip{}, fmt.Errorf("persist accepted trip: %w", err)
	}

	title := fmt.Sprintf("Driver %d accepted your trip", driverID)
	if err := s.notifier.Send(ctx, updated.RiderID, title, fmt.Sprintf("Trip %d is on its way", tripID)); err != nil {
		s.logger.Warn("rider notification failed", zap.Int64("trip_id", tripID), zap.Error(err))
	}

	acceptAttempts.WithLabelValues("accepted").Inc()
	s.logger.Info("trip accepted", zap.Int64("trip_id", tripID), zap.Int64("driver_id", driverID))
	return updated, nil
}

// returnDriverToFree compensates a failed accept by restoring the driver's
// membership in the free set at the coordinate it held before the move.
func (s *Service) returnDriverToFree(ctx context.Context, driverID int64, pos domain.GeoPoint) {
	if err := s.index.AddFree(context.WithoutCancel(ctx), driverID, pos); err != nil {
		s.logger.Error("driver compensation failed; driver stuck in in-trip set",
			zap.Int64("driver_id", driverID), zap.Error(err))
	}
}

// CancelTrip cancels a trip idempotently: a repeated cancel returns the
// stored record unchanged and dispatches nothing. Cancelling an accepted or
// ongoing trip notifies the assigned driver best effort. The driver is not
// returned to the free set here; going free again is the driver's own
// availability transition.
func (s *Service) CancelTrip(ctx context.Context, tripID, requesterID int64) (domain.Trip, error) {
	trip, err := s.repo.FindByID(ctx, tripID)
	if err != nil {
		return domain.Trip{}, err
	}

	if !trip.Status.CanTransitionTo(domain.StatusCancelled) {
		// Terminal trips absorb cancellation: repeated cancels and cancels
		// after completion return the stored record unchanged.
		s.logger.Info("cancel is a no-op",
			zap.Int64("trip_id", tripID),
			zap.Int64("requester_id", requesterID),
			zap.String("status", string(trip.Status)))
		return trip, nil
	}

	previous := trip.Status
	now := s.clock.Now()
	trip.Status = domain.StatusCancelled
	trip.CancelledAt = &now
	trip.UpdatedAt = now

	updated, err := s.repo.Save(ctx, trip)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("persist cancelled trip: %w", err)
	}

	if (previous == domain.StatusAccepted || previous == domain.StatusOngoing) && updated.DriverID != nil {
		body := fmt.Sprintf("The rider cancelled trip %d", tripID)
		if err := s.notifier.Send(ctx, *updated.DriverID, "Trip cancelled", body); err != nil {
			s.logger.Warn("driver notification failed", zap.Int64("trip_id", tripID), zap.Error(err))
		}
	}

	s.logger.Info("trip cancelled",
		zap.Int64("trip_id", tripID),
		zap.Int64("requester_id", requesterID),
		zap.String("previous_status", string(previous)))
	return updated, nil
}

// GetTrip retrieves a trip by identifier.
func (s *Service) GetTrip(ctx context.Context, id int64) (domain.Trip, error) {
	return s.repo.FindByID(ctx, id)
}

// IsExpectedError reports whether err is one of the protocol outcomes a
// caller must handle, as opposed to an infrastructure failure.
func IsExpectedError(err error) bool {
	return errors.Is(err, domain.ErrTripAlreadyTaken) ||
		errors.Is(err, domain.ErrTripNotFound) ||
		errors.Is(err, domain.ErrDriverPositionUnavailable) ||
		errors.Is(err, domain.ErrTripNotAcceptable)
}
