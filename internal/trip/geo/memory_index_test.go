package geo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/ridematch/internal/trip/domain"
	"github.com/example/ridematch/internal/trip/geo"
)

func TestMemoryIndexExclusiveMembership(t *testing.T) {
	index := geo.NewMemoryDriverIndex()
	ctx := context.Background()
	pos := domain.GeoPoint{Lat: 35.7, Lng: 51.4}

	require.NoError(t, index.AddFree(ctx, 100, pos))
	require.NoError(t, index.AddInTrip(ctx, 100, pos))

	_, err := index.Position(ctx, domain.SetFree, 100)
	require.ErrorIs(t, err, domain.ErrDriverPositionUnavailable)

	got, err := index.Position(ctx, domain.SetInTrip, 100)
	require.NoError(t, err)
	require.Equal(t, pos, got)
}

func TestMemoryIndexRemove(t *testing.T) {
	index := geo.NewMemoryDriverIndex()
	ctx := context.Background()
	pos := domain.GeoPoint{Lat: 35.7, Lng: 51.4}

	require.NoError(t, index.AddFree(ctx, 100, pos))
	require.NoError(t, index.Remove(ctx, domain.SetFree, 100))

	_, err := index.Position(ctx, domain.SetFree, 100)
	require.ErrorIs(t, err, domain.ErrDriverPositionUnavailable)

	// removing from the wrong set leaves membership intact
	require.NoError(t, index.AddFree(ctx, 200, pos))
	require.NoError(t, index.Remove(ctx, domain.SetInTrip, 200))
	_, err = index.Position(ctx, domain.SetFree, 200)
	require.NoError(t, err)
}

func TestMemoryIndexRadiusQueryRanking(t *testing.T) {
	index := geo.NewMemoryDriverIndex()
	ctx := context.Background()
	center := domain.GeoPoint{Lat: 35.7, Lng: 51.4}

	require.NoError(t, index.AddFree(ctx, 200, domain.GeoPoint{Lat: 35.703, Lng: 51.4}))
	require.NoError(t, index.AddFree(ctx, 100, domain.GeoPoint{Lat: 35.701, Lng: 51.4}))
	require.NoError(t, index.AddFree(ctx, 999, domain.GeoPoint{Lat: 36.7, Lng: 51.4}))
	require.NoError(t, index.AddInTrip(ctx, 300, center))

	candidates, err := index.RadiusQuery(ctx, domain.SetFree, center, 10, 5)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, int64(100), candidates[0].DriverID)
	require.Equal(t, int64(200), candidates[1].DriverID)
}

func TestMemoryIndexRadiusQueryLimit(t *testing.T) {
	index := geo.NewMemoryDriverIndex()
	ctx := context.Background()
	center := domain.GeoPoint{Lat: 35.7, Lng: 51.4}

	for i := int64(1); i <= 8; i++ {
		require.NoError(t, index.AddFree(ctx, i, domain.GeoPoint{Lat: 35.7 + float64(i)*0.001, Lng: 51.4}))
	}

	candidates, err := index.RadiusQuery(ctx, domain.SetFree, center, 10, 3)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	require.Equal(t, int64(1), candidates[0].DriverID)
	require.Equal(t, int64(3), candidates[2].DriverID)
}

func TestHaversineKM(t *testing.T) {
	a := domain.GeoPoint{Lat: 35.7, Lng: 51.4}
	b := domain.GeoPoint{Lat: 35.701, Lng: 51.4}

	require.InDelta(t, 0.111, geo.HaversineKM(a, b), 0.005)
	require.Zero(t, geo.HaversineKM(a, a))
}
