package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/ridematch/internal/location"
	"github.com/example/ridematch/internal/trip/domain"
	"github.com/example/ridematch/internal/trip/service"
)

// HTTP exposes the driver-facing operations: trip acceptance and
// availability transitions. Trip creation, cancellation and reads belong to
// the external trip workflow and have no routes here.
type HTTP struct {
	svc       *service.Service
	avail     *location.Availability
	publisher domain.EventPublisher
}

// NewHTTP constructs a handler.
func NewHTTP(svc *service.Service, avail *location.Availability, publisher domain.EventPublisher) *HTTP {
	return &HTTP{svc: svc, avail: avail, publisher: publisher}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Post("/v1/trips/{id}/accept", h.acceptTrip)
	r.Post("/v1/trips/{id}/rematch", h.rematchTrip)
	r.Post("/v1/drivers/{id}/online", h.goOnline)
	r.Post("/v1/drivers/{id}/offline", h.goOffline)
	r.Post("/v1/drivers/{id}/location", h.updateLocation)
	return r
}

type acceptTripRequest struct {
	DriverID int64 `json:"driver_id"`
}

func (h *HTTP) acceptTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid trip id", http.StatusBadRequest)
		return
	}
	var payload acceptTripRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	trip, err := h.svc.AcceptTrip(r.Context(), tripID, payload.DriverID)
	if err != nil {
		writeAcceptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// rematchTrip re-queues the matching pass for a trip that is still waiting
// for a driver, e.g. after every candidate declined the first offer.
func (h *HTTP) rematchTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid trip id", http.StatusBadRequest)
		return
	}
	trip, err := h.svc.GetTrip(r.Context(), tripID)
	if err != nil {
		writeAcceptError(w, err)
		return
	}
	if trip.Status != domain.StatusPending {
		http.Error(w, "trip is not waiting for a driver", http.StatusConflict)
		return
	}
	event := domain.MatchEvent{TripID: trip.ID, Source: trip.Source}
	if err := h.publisher.PublishTripCreated(r.Context(), event); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func writeAcceptError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTripNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrTripAlreadyTaken),
		errors.Is(err, domain.ErrTripNotAcceptable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrDriverPositionUnavailable):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *HTTP) goOnline(w http.ResponseWriter, r *http.Request) {
	driverID, pos, ok := driverRequest(w, r, true)
	if !ok {
		return
	}
	if err := h.avail.GoOnline(r.Context(), driverID, pos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "online"})
}

func (h *HTTP) goOffline(w http.ResponseWriter, r *http.Request) {
	driverID, _, ok := driverRequest(w, r, false)
	if !ok {
		return
	}
	if err := h.avail.GoOffline(r.Context(), driverID); err != nil {
		if errors.Is(err, domain.ErrDriverPositionUnavailable) {
			http.Error(w, "driver is not free", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "offline"})
}

func (h *HTTP) updateLocation(w http.ResponseWriter, r *http.Request) {
	driverID, pos, ok := driverRequest(w, r, true)
	if !ok {
		return
	}
	if err := h.avail.UpdateLocation(r.Context(), driverID, pos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func driverRequest(w http.ResponseWriter, r *http.Request, wantBody bool) (int64, domain.GeoPoint, bool) {
	driverID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid driver id", http.StatusBadRequest)
		return 0, domain.GeoPoint{}, false
	}
	var pos domain.GeoPoint
	if wantBody {
		if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return 0, domain.GeoPoint{}, false
		}
	}
	return driverID, pos, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
