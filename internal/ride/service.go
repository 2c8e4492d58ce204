package ride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/fare"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/storage"
)

// ErrRideTaken is surfaced to every driver whose accept arrives after the
// ride left REQUESTED. A conflict, not a retryable failure.
var ErrRideTaken = errors.New("ride already taken")

// Proximity is the slice of the index the coordinator needs.
type Proximity interface {
	Nearby(p models.Coord, radiusMeters float64) []models.Driver
}

// Pusher is the slice of the session broker the coordinator needs.
type Pusher interface {
	Push(identity, event string, payload any) error
}

// BusyMarker couples the driver's in-ride flag to ride transitions.
type BusyMarker interface {
	SetBusy(ctx context.Context, id string, busy bool)
}

// Service is the dispatch coordinator: it owns ride writes, prices new rides,
// finds candidate drivers, and fans the offer out to their live sessions.
type Service struct {
	Store    storage.RideStore
	Pricing  *pricing.Resolver
	Index    Proximity
	Broker   Pusher
	Registry BusyMarker
	Logger   *slog.Logger

	// SearchRadiusM defaults to 5000, DefaultDurationMin to 15.
	SearchRadiusM      float64
	DefaultDurationMin float64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Estimate prices a prospective trip without persisting anything. Missing
// duration prices the time component at zero.
func (s *Service) Estimate(ctx context.Context, req models.RideRequest) (models.FareBreakdown, error) {
	duration := 0.0
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}
	cfg := s.Pricing.Active(ctx)
	fb, err := fare.Quote(req.Pickup, req.Dest, duration, cfg)
	if err != nil {
		return models.FareBreakdown{}, err
	}
	observability.FareQuotesTotal.Inc()
	return fb, nil
}

// CreateRide validates, prices, persists the ride as REQUESTED, then pushes
// the offer to every eligible driver near the pickup. The fare is computed
// exactly once here and never changes afterwards; re-estimation goes through
// Estimate and produces a fresh quote instead.
//
// Persistence failure is fail-closed: no ride, no notifications. Push
// failures are per-driver and non-fatal.
func (s *Service) CreateRide(ctx context.Context, passengerID string, req models.RideRequest) (*models.Ride, error) {
	duration := s.DefaultDurationMin
	if duration <= 0 {
		duration = 15
	}
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}
	cfg := s.Pricing.Active(ctx)
	fb, err := fare.Quote(req.Pickup, req.Dest, duration, cfg)
	if err != nil {
		return nil, err
	}
	observability.FareQuotesTotal.Inc()

	now := time.Now()
	r := &models.Ride{
		ID:          uuid.NewString(),
		PassengerID: passengerID,
		Pickup:      req.Pickup,
		PickupName:  req.PickupName,
		Dest:        req.Dest,
		DestName:    req.DestName,
		Fare:        fb,
		Status:      models.StatusRequested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.CreateRide(ctx, r); err != nil {
		return nil, fmt.Errorf("persist ride: %w", err)
	}
	observability.RidesCreatedTotal.Inc()

	s.notifyNearbyDrivers(r)
	return r, nil
}

// notifyNearbyDrivers broadcasts the ride to every eligible candidate. Each
// delivery runs on its own goroutine with a bounded write deadline inside the
// broker, so a slow session cannot delay the rest; we wait for all attempts
// so the outcome counts are complete when the call returns.
func (s *Service) notifyNearbyDrivers(r *models.Ride) {
	radius := s.SearchRadiusM
	if radius <= 0 {
		radius = 5000
	}
	candidates := s.Index.Nearby(r.Pickup, radius)
	if len(candidates) == 0 {
		s.Logger.Info("no drivers in range", "ride_id", r.ID, "radius_m", radius)
		return
	}

	var wg sync.WaitGroup
	var delivered, dropped int64
	var cmu sync.Mutex
	for _, d := range candidates {
		wg.Add(1)
		go func(driverID string) {
			defer wg.Done()
			err := s.Broker.Push(driverID, dispatch.EventNewRide, r)
			cmu.Lock()
			defer cmu.Unlock()
			if err != nil {
				dropped++
				observability.NotificationsTotal.WithLabelValues("dropped").Inc()
				return
			}
			delivered++
			observability.NotificationsTotal.WithLabelValues("delivered").Inc()
		}(d.ID)
	}
	wg.Wait()
	s.Logger.Info("ride offer fan-out",
		"ride_id", r.ID, "candidates", len(candidates),
		"delivered", delivered, "dropped", dropped)
}

// Accept transitions REQUESTED→ACCEPTED for exactly one driver. The status
// swap and the driver's busy flag move inside the same per-ride critical
// section, so there is no window where they disagree.
func (s *Service) Accept(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	lock := s.lockFor(rideID)
	lock.Lock()
	defer lock.Unlock()

	r, err := s.Store.TransitionRide(ctx, rideID, models.StatusAccepted, driverID, models.StatusRequested)
	if errors.Is(err, storage.ErrStatusConflict) {
		observability.RideAcceptsTotal.WithLabelValues("lost").Inc()
		return nil, ErrRideTaken
	}
	if err != nil {
		return nil, err
	}
	s.Registry.SetBusy(ctx, driverID, true)
	observability.RideAcceptsTotal.WithLabelValues("won").Inc()
	s.Logger.Info("ride accepted", "ride_id", rideID, "driver_id", driverID)
	return r, nil
}

// MarkArrived moves ACCEPTED→ARRIVED.
func (s *Service) MarkArrived(ctx context.Context, rideID string) (*models.Ride, error) {
	return s.transition(ctx, rideID, models.StatusArrived, models.StatusAccepted)
}

// Start moves ARRIVED→IN_PROGRESS.
func (s *Service) Start(ctx context.Context, rideID string) (*models.Ride, error) {
	return s.transition(ctx, rideID, models.StatusInProgress, models.StatusArrived)
}

// Complete finishes the ride and frees the driver.
func (s *Service) Complete(ctx context.Context, rideID string) (*models.Ride, error) {
	r, err := s.transition(ctx, rideID, models.StatusCompleted, models.StatusInProgress)
	if err != nil {
		return nil, err
	}
	if r.DriverID != "" {
		s.Registry.SetBusy(ctx, r.DriverID, false)
	}
	return r, nil
}

// Cancel is reachable from any non-terminal pre-trip state and frees the
// driver if one was already assigned.
func (s *Service) Cancel(ctx context.Context, rideID string) (*models.Ride, error) {
	r, err := s.transition(ctx, rideID, models.StatusCancelled,
		models.StatusRequested, models.StatusAccepted, models.StatusArrived)
	if err != nil {
		return nil, err
	}
	if r.DriverID != "" {
		s.Registry.SetBusy(ctx, r.DriverID, false)
	}
	return r, nil
}

// History returns the passenger's rides newest-first.
func (s *Service) History(ctx context.Context, passengerID string) ([]models.Ride, error) {
	return s.Store.RidesByPassenger(ctx, passengerID)
}

func (s *Service) transition(ctx context.Context, rideID string, to models.RideStatus, from ...models.RideStatus) (*models.Ride, error) {
	lock := s.lockFor(rideID)
	lock.Lock()
	defer lock.Unlock()
	r, err := s.Store.TransitionRide(ctx, rideID, to, "", from...)
	if err != nil {
		return nil, err
	}
	if to.Terminal() {
		s.dropLock(rideID)
	}
	return r, nil
}

func (s *Service) lockFor(rideID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	l, ok := s.locks[rideID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[rideID] = l
	}
	return l
}

func (s *Service) dropLock(rideID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, rideID)
}
