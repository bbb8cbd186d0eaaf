package location

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/example/ridematch/internal/trip/domain"
)

// Availability owns driver membership in the geo index. A driver exists in
// the index only through these transitions: online puts it in the free set,
// offline removes it, accepting a trip moves it to in-trip (done by the
// acceptance coordinator, not here).
type Availability struct {
	index  domain.DriverIndex
	logger *zap.Logger
}

// NewAvailability constructs the availability service.
func NewAvailability(index domain.DriverIndex, logger *zap.Logger) *Availability {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Availability{index: index, logger: logger}
}

// GoOnline registers the driver as free at the given position.
func (a *Availability) GoOnline(ctx context.Context, driverID int64, pos domain.GeoPoint) error {
	if err := a.index.AddFree(ctx, driverID, pos); err != nil {
		return err
	}
	a.logger.Info("driver online", zap.Int64("driver_id", driverID))
	return nil
}

// GoOffline removes the driver from the index. Only free drivers may go
// offline; a driver mid-trip must finish or have the trip cancelled first.
func (a *Availability) GoOffline(ctx context.Context, driverID int64) error {
	if _, err := a.index.Position(ctx, domain.SetFree, driverID); err != nil {
		return err
	}
	if err := a.index.Remove(ctx, domain.SetFree, driverID); err != nil {
		return err
	}
	a.logger.Info("driver offline", zap.Int64("driver_id", driverID))
	return nil
}

// UpdateLocation refreshes the driver's coordinate in whichever set
// currently holds it. Unknown drivers are registered as free.
func (a *Availability) UpdateLocation(ctx context.Context, driverID int64, pos domain.GeoPoint) error {
	_, err := a.index.Position(ctx, domain.SetInTrip, driverID)
	if err == nil {
		return a.index.AddInTrip(ctx, driverID, pos)
	}
	if !errors.Is(err, domain.ErrDriverPositionUnavailable) {
		return err
	}
	return a.index.AddFree(ctx, driverID, pos)
}
