package match_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/ridematch/internal/trip/domain"
	"github.com/example/ridematch/internal/trip/geo"
	"github.com/example/ridematch/internal/trip/match"
)

type fakeNotifier struct {
	mu      sync.Mutex
	targets []int64
	failFor map[int64]bool
}

func (f *fakeNotifier) Send(_ context.Context, targetID int64, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[targetID] {
		return errors.New("dispatch failed")
	}
	f.targets = append(f.targets, targetID)
	return nil
}

func TestEngineNotifiesNearestFirst(t *testing.T) {
	index := geo.NewMemoryDriverIndex()
	ctx := context.Background()
	require.NoError(t, index.AddFree(ctx, 200, domain.GeoPoint{Lat: 35.703, Lng: 51.4}))
	require.NoError(t, index.AddFree(ctx, 100, domain.GeoPoint{Lat: 35.701, Lng: 51.4}))

	notifier := &fakeNotifier{}
	engine := match.NewEngine(index, notifier, nil, match.Config{})

	engine.HandleTripCreated(ctx, domain.MatchEvent{TripID: 1, Source: domain.GeoPoint{Lat: 35.7, Lng: 51.4}})

	require.Equal(t, []int64{100, 200}, notifier.targets)
}

func TestEngineRespectsCandidateLimit(t *testing.T) {
	index := geo.NewMemoryDriverIndex()
	ctx := context.Background()
	for i := int64(1); i <= 8; i++ {
		require.NoError(t, index.AddFree(ctx, i, domain.GeoPoint{Lat: 35.7 + float64(i)*0.001, Lng: 51.4}))
	}

	notifier := &fakeNotifier{}
	engine := match.NewEngine(index, notifier, nil, match.Config{CandidateLimit: 3, SearchRadiusKM: 10})

	engine.HandleTripCreated(ctx, domain.MatchEvent{TripID: 1, Source: domain.GeoPoint{Lat: 35.7, Lng: 51.4}})

	require.Equal(t, []int64{1, 2, 3}, notifier.targets)
}

func TestEngineNoFreeDrivers(t *testing.T) {
	notifier := &fakeNotifier{}
	engine := match.NewEngine(geo.NewMemoryDriverIndex(), notifier, nil, match.Config{})

	engine.HandleTripCreated(context.Background(), domain.MatchEvent{TripID: 1, Source: domain.GeoPoint{Lat: 35.7, Lng: 51.4}})

	require.Empty(t, notifier.targets)
}

func TestEngineFailedDispatchContinuesFanOut(t *testing.T) {
	index := geo.NewMemoryDriverIndex()
	ctx := context.Background()
	require.NoError(t, index.AddFree(ctx, 100, domain.GeoPoint{Lat: 35.701, Lng: 51.4}))
	require.NoError(t, index.AddFree(ctx, 200, domain.GeoPoint{Lat: 35.703, Lng: 51.4}))
	require.NoError(t, index.AddFree(ctx, 300, domain.GeoPoint{Lat: 35.705, Lng: 51.4}))

	notifier := &fakeNotifier{failFor: map[int64]bool{200: true}}
	engine := match.NewEngine(index, notifier, nil, match.Config{})

	engine.HandleTripCreated(ctx, domain.MatchEvent{TripID: 1, Source: domain.GeoPoint{Lat: 35.7, Lng: 51.4}})

	require.Equal(t, []int64{100, 300}, notifier.targets)
}
