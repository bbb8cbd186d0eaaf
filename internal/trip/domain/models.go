package domain

import (
	"context"
	"errors"
	"time"
)

type TripStatus string

const (
	StatusPending   TripStatus = "PENDING"
	StatusAccepted  TripStatus = "ACCEPTED"
	StatusOngoing   TripStatus = "ONGOING"
	StatusCompleted TripStatus = "COMPLETED"
	StatusCancelled TripStatus = "CANCELLED"
)

// ErrTripAlreadyTaken is returned when the per-trip lease is held by another
// accept attempt. Expected under contention, never retried internally.
var ErrTripAlreadyTaken = errors.New("trip already taken by another driver")

var ErrTripNotFound = errors.New("trip not found")

// ErrDriverPositionUnavailable means the driver is not a member of the
// queried availability set, e.g. went offline or is already in a trip.
var ErrDriverPositionUnavailable = errors.New("driver position unavailable")

// ErrTripNotAcceptable is returned when the trip left PENDING between lease
// acquisition and commit, typically because the rider cancelled meanwhile.
var ErrTripNotAcceptable = errors.New("trip is no longer acceptable")

var allowedTransitions = map[TripStatus][]TripStatus{
	StatusPending:  {StatusAccepted, StatusCancelled},
	StatusAccepted: {StatusOngoing, StatusCancelled},
	StatusOngoing:  {StatusCompleted, StatusCancelled},
}

func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further mutation of the trip is permitted.
func (s TripStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Trip is the durable trip record. Source and Dest are immutable after
// creation; DriverID is set exactly once, by the acceptance protocol.
type Trip struct {
	ID          int64
	RiderID     int64
	DriverID    *int64
	Source      GeoPoint
	Dest        GeoPoint
	FareCents   int64
	Status      TripStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time
	Version     int64
}

// MatchEvent is the trip-created signal consumed by the matching engine.
type MatchEvent struct {
	TripID int64    `json:"trip_id"`
	Source GeoPoint `json:"source"`
}

// Candidate is one driver returned by a radius query, distance ascending.
type Candidate struct {
	DriverID   int64
	DistanceKM float64
}

// DriverSet names one of the two disjoint availability sets. A driver id
// belongs to at most one set at any time.
type DriverSet string

const (
	SetFree   DriverSet = "drivers:geo:free"
	SetInTrip DriverSet = "drivers:geo:intrip"
)

// Repository provides durable keyed storage for trips. Save is an upsert.
type Repository interface {
	FindByID(ctx context.Context, id int64) (Trip, error)
	Save(ctx context.Context, trip Trip) (Trip, error)
}

// DriverIndex is the geospatial availability index. AddFree and AddInTrip
// upsert membership and evict the driver from the opposite set.
type DriverIndex interface {
	AddFree(ctx context.Context, driverID int64, pos GeoPoint) error
	AddInTrip(ctx context.Context, driverID int64, pos GeoPoint) error
	Remove(ctx context.Context, set DriverSet, driverID int64) error
	Position(ctx context.Context, set DriverSet, driverID int64) (GeoPoint, error)
	RadiusQuery(ctx context.Context, set DriverSet, center GeoPoint, radiusKM float64, limit int) ([]Candidate, error)
}

// LeaseStore offers the primitives the acceptance protocol builds its
// per-trip mutual exclusion on. Release deletes the key only when token
// matches the stored owner value and reports whether it did.
type LeaseStore interface {
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Release(ctx context.Context, key, token string) (bool, error)
}

// Notifier delivers a message to a rider or driver identity. Callers treat
// failures as non-fatal.
type Notifier interface {
	Send(ctx context.Context, targetID int64, title, body string) error
}

type EventPublisher interface {
	PublishTripCreated(ctx context.Context, event MatchEvent) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
