package geo_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/example/ridematch/internal/trip/domain"
	"github.com/example/ridematch/internal/trip/geo"
)

func newRedisIndex(t *testing.T) *geo.RedisDriverIndex {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return geo.NewRedisDriverIndex(client)
}

func TestRedisIndexExclusiveMembership(t *testing.T) {
	index := newRedisIndex(t)
	ctx := context.Background()
	pos := domain.GeoPoint{Lat: 35.7, Lng: 51.4}

	require.NoError(t, index.AddFree(ctx, 100, pos))

	got, err := index.Position(ctx, domain.SetFree, 100)
	require.NoError(t, err)
	require.InDelta(t, pos.Lat, got.Lat, 0.001)
	require.InDelta(t, pos.Lng, got.Lng, 0.001)

	moved := domain.GeoPoint{Lat: 35.71, Lng: 51.41}
	require.NoError(t, index.AddInTrip(ctx, 100, moved))

	_, err = index.Position(ctx, domain.SetFree, 100)
	require.ErrorIs(t, err, domain.ErrDriverPositionUnavailable)

	got, err = index.Position(ctx, domain.SetInTrip, 100)
	require.NoError(t, err)
	require.InDelta(t, moved.Lat, got.Lat, 0.001)

	require.NoError(t, index.AddFree(ctx, 100, moved))
	_, err = index.Position(ctx, domain.SetInTrip, 100)
	require.ErrorIs(t, err, domain.ErrDriverPositionUnavailable)
}

func TestRedisIndexPositionUnknownDriver(t *testing.T) {
	index := newRedisIndex(t)

	_, err := index.Position(context.Background(), domain.SetFree, 999)
	require.ErrorIs(t, err, domain.ErrDriverPositionUnavailable)
}

func TestRedisIndexRadiusQueryRanking(t *testing.T) {
	index := newRedisIndex(t)
	ctx := context.Background()
	center := domain.GeoPoint{Lat: 35.7, Lng: 51.4}

	require.NoError(t, index.AddFree(ctx, 200, domain.GeoPoint{Lat: 35.703, Lng: 51.4}))
	require.NoError(t, index.AddFree(ctx, 100, domain.GeoPoint{Lat: 35.701, Lng: 51.4}))
	// outside the radius entirely
	require.NoError(t, index.AddFree(ctx, 999, domain.GeoPoint{Lat: 36.7, Lng: 51.4}))
	// in-trip drivers are invisible to matching
	require.NoError(t, index.AddInTrip(ctx, 300, center))

	candidates, err := index.RadiusQuery(ctx, domain.SetFree, center, 10, 5)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, int64(100), candidates[0].DriverID)
	require.Equal(t, int64(200), candidates[1].DriverID)
	require.Less(t, candidates[0].DistanceKM, candidates[1].DistanceKM)
}

func TestRedisIndexRadiusQueryLimit(t *testing.T) {
	index := newRedisIndex(t)
	ctx := context.Background()
	center := domain.GeoPoint{Lat: 35.7, Lng: 51.4}

	for i := int64(1); i <= 8; i++ {
		pos := domain.GeoPoint{Lat: 35.7 + float64(i)*0.001, Lng: 51.4}
		require.NoError(t, index.AddFree(ctx, i, pos))
	}

	candidates, err := index.RadiusQuery(ctx, domain.SetFree, center, 10, 5)
	require.NoError(t, err)
	require.Len(t, candidates, 5)
	require.Equal(t, int64(1), candidates[0].DriverID)
}

func TestRedisIndexRadiusQueryEmpty(t *testing.T) {
	index := newRedisIndex(t)

	candidates, err := index.RadiusQuery(context.Background(), domain.SetFree, domain.GeoPoint{Lat: 35.7, Lng: 51.4}, 10, 5)
	require.NoError(t, err)
	require.Empty(t, candidates)
}
