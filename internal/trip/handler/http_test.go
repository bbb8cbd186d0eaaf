package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/ridematch/internal/events"
	"github.com/example/ridematch/internal/location"
	"github.com/example/ridematch/internal/trip/domain"
	"github.com/example/ridematch/internal/trip/geo"
	"github.com/example/ridematch/internal/trip/handler"
	"github.com/example/ridematch/internal/trip/lease"
	"github.com/example/ridematch/internal/trip/repository"
	"github.com/example/ridematch/internal/trip/service"
)

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, int64, string, string) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *repository.MemoryRepository, *geo.MemoryDriverIndex) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	index := geo.NewMemoryDriverIndex()
	svc := service.New(repo, index, lease.NewMemoryStore(), noopNotifier{}, domain.SystemClock{}, nil, 30*time.Second)
	avail := location.NewAvailability(index, nil)
	srv := httptest.NewServer(handler.NewHTTP(svc, avail, events.NewPublisher(nil, "")).Router())
	t.Cleanup(srv.Close)
	return srv, repo, index
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestAcceptTripEndpoint(t *testing.T) {
	srv, repo, index := newTestServer(t)
	ctx := context.Background()
	_, err := repo.Save(ctx, domain.Trip{ID: 1, RiderID: 300, Status: domain.StatusPending})
	require.NoError(t, err)
	require.NoError(t, index.AddFree(ctx, 100, domain.GeoPoint{Lat: 35.701, Lng: 51.4}))

	resp := post(t, srv.URL+"/v1/trips/1/accept", `{"driver_id":100}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var trip domain.Trip
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&trip))
	require.Equal(t, domain.StatusAccepted, trip.Status)
	require.NotNil(t, trip.DriverID)
	require.Equal(t, int64(100), *trip.DriverID)
}

func TestAcceptTripEndpointErrors(t *testing.T) {
	srv, repo, index := newTestServer(t)
	ctx := context.Background()
	_, err := repo.Save(ctx, domain.Trip{ID: 1, RiderID: 300, Status: domain.StatusAccepted})
	require.NoError(t, err)
	require.NoError(t, index.AddFree(ctx, 100, domain.GeoPoint{Lat: 35.701, Lng: 51.4}))

	resp := post(t, srv.URL+"/v1/trips/9/accept", `{"driver_id":100}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = post(t, srv.URL+"/v1/trips/1/accept", `{"driver_id":100}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	_, err = repo.Save(ctx, domain.Trip{ID: 2, RiderID: 300, Status: domain.StatusPending})
	require.NoError(t, err)
	resp = post(t, srv.URL+"/v1/trips/2/accept", `{"driver_id":999}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = post(t, srv.URL+"/v1/trips/abc/accept", `{"driver_id":100}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRematchTripEndpoint(t *testing.T) {
	srv, repo, _ := newTestServer(t)
	ctx := context.Background()
	_, err := repo.Save(ctx, domain.Trip{ID: 1, RiderID: 300, Status: domain.StatusPending})
	require.NoError(t, err)
	_, err = repo.Save(ctx, domain.Trip{ID: 2, RiderID: 300, Status: domain.StatusAccepted})
	require.NoError(t, err)

	resp := post(t, srv.URL+"/v1/trips/1/rematch", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = post(t, srv.URL+"/v1/trips/2/rematch", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = post(t, srv.URL+"/v1/trips/9/rematch", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDriverAvailabilityEndpoints(t *testing.T) {
	srv, _, index := newTestServer(t)
	ctx := context.Background()

	resp := post(t, srv.URL+"/v1/drivers/100/online", `{"lat":35.7,"lng":51.4}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, err := index.Position(ctx, domain.SetFree, 100)
	require.NoError(t, err)

	resp = post(t, srv.URL+"/v1/drivers/100/location", `{"lat":35.71,"lng":51.41}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pos, err := index.Position(ctx, domain.SetFree, 100)
	require.NoError(t, err)
	require.InDelta(t, 35.71, pos.Lat, 1e-9)

	resp = post(t, srv.URL+"/v1/drivers/100/offline", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, err = index.Position(ctx, domain.SetFree, 100)
	require.ErrorIs(t, err, domain.ErrDriverPositionUnavailable)

	// offline while not free is rejected
	resp = post(t, srv.URL+"/v1/drivers/100/offline", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}
