package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

func newRide(id, passenger string, created time.Time) *models.Ride {
	return &models.Ride{
		ID:          id,
		PassengerID: passenger,
		Status:      models.StatusRequested,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestTransitionRideGuards(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if err := m.CreateRide(ctx, newRide("r1", "p1", time.Now())); err != nil {
		t.Fatal(err)
	}

	r, err := m.TransitionRide(ctx, "r1", models.StatusAccepted, "d1", models.StatusRequested)
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if r.Status != models.StatusAccepted || r.DriverID != "d1" {
		t.Fatalf("unexpected ride after accept: %+v", r)
	}

	if _, err := m.TransitionRide(ctx, "r1", models.StatusAccepted, "d2", models.StatusRequested); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("second accept: want ErrStatusConflict, got %v", err)
	}

	if _, err := m.TransitionRide(ctx, "missing", models.StatusAccepted, "d1", models.StatusRequested); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing ride: want ErrNotFound, got %v", err)
	}
}

func TestTransitionRideMultipleFromStatuses(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if err := m.CreateRide(ctx, newRide("r1", "p1", time.Now())); err != nil {
		t.Fatal(err)
	}
	// cancel is legal from any pre-trip state
	r, err := m.TransitionRide(ctx, "r1", models.StatusCancelled, "",
		models.StatusRequested, models.StatusAccepted, models.StatusArrived)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != models.StatusCancelled {
		t.Fatalf("want CANCELLED, got %s", r.Status)
	}
	if _, err := m.TransitionRide(ctx, "r1", models.StatusAccepted, "d1", models.StatusRequested); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("transition out of terminal state: want conflict, got %v", err)
	}
}

func TestRidesByPassengerNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	base := time.Now()
	_ = m.CreateRide(ctx, newRide("r1", "p1", base.Add(-2*time.Hour)))
	_ = m.CreateRide(ctx, newRide("r2", "p1", base))
	_ = m.CreateRide(ctx, newRide("r3", "p1", base.Add(-time.Hour)))
	_ = m.CreateRide(ctx, newRide("other", "p2", base))

	rides, err := m.RidesByPassenger(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rides) != 3 {
		t.Fatalf("want 3 rides, got %d", len(rides))
	}
	want := []string{"r2", "r3", "r1"}
	for i, id := range want {
		if rides[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, rides[i].ID)
		}
	}
}

func TestDriverUpsertAndFlags(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	d := models.Driver{ID: "d1", Loc: models.Coord{Lat: 1, Lng: 2}, Online: true, ReportedAt: time.Now()}
	if err := m.UpsertDriver(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := m.SetDriverBusy(ctx, "d1", true); err != nil {
		t.Fatal(err)
	}
	if err := m.SetDriverOnline(ctx, "d1", false); err != nil {
		t.Fatal(err)
	}
	if err := m.SetDriverBusy(ctx, "ghost", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown driver: want ErrNotFound, got %v", err)
	}
}

func TestActivePricingConfigPicksNewestOfSeveralActive(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_ = m.InsertPricingConfig(ctx, models.PricingConfig{ID: "old", Active: true, CreatedAt: time.Now().Add(-time.Hour)})
	_ = m.InsertPricingConfig(ctx, models.PricingConfig{ID: "new", Active: true, CreatedAt: time.Now()})
	// force the degenerate two-actives state the resolution rule is defined for
	m.mu.Lock()
	for i := range m.pricing {
		m.pricing[i].Active = true
	}
	m.mu.Unlock()

	got, err := m.ActivePricingConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "new" {
		t.Fatalf("want newest active, got %s", got.ID)
	}
}

func TestInsertActivePricingConfigClearsPredecessors(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_ = m.InsertPricingConfig(ctx, models.PricingConfig{ID: "a", Active: true, CreatedAt: time.Now().Add(-time.Minute)})
	_ = m.InsertPricingConfig(ctx, models.PricingConfig{ID: "b", Active: true, CreatedAt: time.Now()})

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.pricing {
		if c.ID == "a" && c.Active {
			t.Fatal("previous row still active after new active insert")
		}
	}
}
