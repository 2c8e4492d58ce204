package storage

import (
	"context"
	"errors"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict means a conditional ride transition found the row in a
	// different status than required. The accept path maps this to the
	// ride-already-taken error surfaced to losing drivers.
	ErrStatusConflict = errors.New("ride status conflict")
)

// RideStore owns durable ride rows. Writes go through the dispatch
// coordinator only; everything else reads.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	// TransitionRide updates status (and driver id, when non-empty) only if
	// the row is currently in one of the allowed from-statuses. It returns the
	// updated ride, ErrStatusConflict when the guard fails, or ErrNotFound.
	TransitionRide(ctx context.Context, id string, to models.RideStatus, driverID string, from ...models.RideStatus) (*models.Ride, error)
	// RidesByPassenger returns the passenger's rides newest-first.
	RidesByPassenger(ctx context.Context, passengerID string) ([]models.Ride, error)
}

// DriverStore persists driver rows with upsert semantics: an unknown id
// creates the row on its first location report.
type DriverStore interface {
	UpsertDriver(ctx context.Context, d models.Driver) error
	SetDriverBusy(ctx context.Context, id string, busy bool) error
	SetDriverOnline(ctx context.Context, id string, online bool) error
}

// PricingStore holds append-only pricing rows.
type PricingStore interface {
	// ActivePricingConfig returns the most recently created active row, or
	// ErrNotFound when no row is active.
	ActivePricingConfig(ctx context.Context) (*models.PricingConfig, error)
	// InsertPricingConfig adds a new row; when the row is active, all prior
	// rows have their active flag cleared in the same operation.
	InsertPricingConfig(ctx context.Context, cfg models.PricingConfig) error
}

// Store bundles the three stores for single-backend wiring.
type Store interface {
	RideStore
	DriverStore
	PricingStore
}
