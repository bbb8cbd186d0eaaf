package geo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/example/ridematch/internal/trip/domain"
)

// RedisDriverIndex implements domain.DriverIndex on Redis GEO sets. The two
// availability sets are plain GEO keys; moving a driver between them is a
// GEOADD into the target plus a ZREM from the source, executed in one
// transaction so queries never observe a driver in both sets.
type RedisDriverIndex struct {
	client *redis.Client
}

// NewRedisDriverIndex constructs a Redis-backed driver index.
func NewRedisDriverIndex(client *redis.Client) *RedisDriverIndex {
	return &RedisDriverIndex{client: client}
}

func member(driverID int64) string {
	return strconv.FormatInt(driverID, 10)
}

// AddFree upserts the driver into the free set and evicts it from in-trip.
func (r *RedisDriverIndex) AddFree(ctx context.Context, driverID int64, pos domain.GeoPoint) error {
	return r.move(ctx, domain.SetFree, domain.SetInTrip, driverID, pos)
}

// AddInTrip upserts the driver into the in-trip set and evicts it from free.
func (r *RedisDriverIndex) AddInTrip(ctx context.Context, driverID int64, pos domain.GeoPoint) error {
	return r.move(ctx, domain.SetInTrip, domain.SetFree, driverID, pos)
}

func (r *RedisDriverIndex) move(ctx context.Context, to, from domain.DriverSet, driverID int64, pos domain.GeoPoint) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.GeoAdd(ctx, string(to), &redis.GeoLocation{
			Name:      member(driverID),
			Longitude: pos.Lng,
			Latitude:  pos.Lat,
		})
		pipe.ZRem(ctx, string(from), member(driverID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis geo move: %w", err)
	}
	return nil
}

// Remove drops the driver from the given set. Absent members are a no-op.
func (r *RedisDriverIndex) Remove(ctx context.Context, set domain.DriverSet, driverID int64) error {
	if err := r.client.ZRem(ctx, string(set), member(driverID)).Err(); err != nil {
		return fmt.Errorf("redis zrem: %w", err)
	}
	return nil
}

// Position returns the driver's coordinate within the set.
func (r *RedisDriverIndex) Position(ctx context.Context, set domain.DriverSet, driverID int64) (domain.GeoPoint, error) {
	positions, err := r.client.GeoPos(ctx, string(set), member(driverID)).Result()
	if err != nil {
		return domain.GeoPoint{}, fmt.Errorf("redis geopos: %w", err)
	}
	if len(positions) == 0 || positions[0] == nil {
		return domain.GeoPoint{}, domain.ErrDriverPositionUnavailable
	}
	return domain.GeoPoint{Lat: positions[0].Latitude, Lng: positions[0].Longitude}, nil
}

// RadiusQuery returns up to limit drivers within radiusKM, closest first.
// An empty result is valid and carries no error.
func (r *RedisDriverIndex) RadiusQuery(ctx context.Context, set domain.DriverSet, center domain.GeoPoint, radiusKM float64, limit int) ([]domain.Candidate, error) {
	results, err := r.client.GeoRadius(ctx, string(set), center.Lng, center.Lat, &redis.GeoRadiusQuery{
		Radius:   radiusKM,
		Unit:     "km",
		WithDist: true,
		Count:    limit,
		Sort:     "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis georadius: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(results))
	for _, res := range results {
		id, err := strconv.ParseInt(res.Name, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid geo member %q: %w", res.Name, err)
		}
		candidates = append(candidates, domain.Candidate{DriverID: id, DistanceKM: res.Dist})
	}
	return candidates, nil
}
