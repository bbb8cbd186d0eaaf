package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ridematch/internal/trip/domain"
)

// PostgresRepository stores trips in Postgres via database/sql with the pgx
// stdlib driver.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository constructs the repository around an open pool.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tripColumns = `id, rider_id, driver_id, source_lat, source_lng, dest_lat, dest_lng,
fare_cents, status, created_at, updated_at, cancelled_at, version`

// FindByID retrieves a trip.
func (p *PostgresRepository) FindByID(ctx context.Context, id int64) (domain.Trip, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)
	trip, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Trip{}, domain.ErrTripNotFound
	}
	if err != nil {
		return domain.Trip{}, fmt.Errorf("select trip: %w", err)
	}
	return trip, nil
}

// Save upserts the trip; the version column is bumped on every replacement.
func (p *PostgresRepository) Save(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	var driverID sql.NullInt64
	if trip.DriverID != nil {
		driverID = sql.NullInt64{Int64: *trip.DriverID, Valid: true}
	}
	var cancelledAt sql.NullTime
	if trip.CancelledAt != nil {
		cancelledAt = sql.NullTime{Time: *trip.CancelledAt, Valid: true}
	}

	row := p.db.QueryRowContext(ctx, `
INSERT INTO trips (id, rider_id, driver_id, source_lat, source_lng, dest_lat, dest_lng,
                   fare_cents, status, created_at, updated_at, cancelled_at, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
ON CONFLICT (id) DO UPDATE SET
    driver_id    = EXCLUDED.driver_id,
    fare_cents   = EXCLUDED.fare_cents,
    status       = EXCLUDED.status,
    updated_at   = EXCLUDED.updated_at,
    cancelled_at = EXCLUDED.cancelled_at,
    version      = trips.version + 1
RETURNING `+tripColumns,
		trip.ID, trip.RiderID, driverID,
		trip.Source.Lat, trip.Source.Lng, trip.Dest.Lat, trip.Dest.Lng,
		trip.FareCents, trip.Status, trip.CreatedAt, trip.UpdatedAt, cancelledAt)

	saved, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("upsert trip: %w", err)
	}
	return saved, nil
}

func scanTrip(row *sql.Row) (domain.Trip, error) {
	var trip domain.Trip
	var driverID sql.NullInt64
	var cancelledAt sql.NullTime
	err := row.Scan(&trip.ID, &trip.RiderID, &driverID,
		&trip.Source.Lat, &trip.Source.Lng, &trip.Dest.Lat, &trip.Dest.Lng,
		&trip.FareCents, &trip.Status, &trip.CreatedAt, &trip.UpdatedAt, &cancelledAt, &trip.Version)
	if err != nil {
		return domain.Trip{}, err
	}
	if driverID.Valid {
		trip.DriverID = &driverID.Int64
	}
	if cancelledAt.Valid {
		trip.CancelledAt = &cancelledAt.Time
	}
	return trip, nil
}
