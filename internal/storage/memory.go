package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// MemoryStore is the in-process backend used for single-binary runs and
// tests. All methods are safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	rides   map[string]*models.Ride
	drivers map[string]models.Driver
	pricing []models.PricingConfig
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:   make(map[string]*models.Ride),
		drivers: make(map[string]models.Driver),
	}
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) TransitionRide(ctx context.Context, id string, to models.RideStatus, driverID string, from ...models.RideStatus) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !statusIn(r.Status, from) {
		return nil, ErrStatusConflict
	}
	r.Status = to
	if driverID != "" {
		r.DriverID = driverID
	}
	r.UpdatedAt = time.Now()
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) RidesByPassenger(ctx context.Context, passengerID string) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Ride, 0)
	for _, r := range m.rides {
		if r.PassengerID == passengerID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpsertDriver(ctx context.Context, d models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = d
	return nil
}

func (m *MemoryStore) SetDriverBusy(ctx context.Context, id string, busy bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Busy = busy
	m.drivers[id] = d
	return nil
}

func (m *MemoryStore) SetDriverOnline(ctx context.Context, id string, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Online = online
	m.drivers[id] = d
	return nil
}

func (m *MemoryStore) ActivePricingConfig(ctx context.Context) (*models.PricingConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *models.PricingConfig
	for i := range m.pricing {
		c := m.pricing[i]
		if !c.Active {
			continue
		}
		if best == nil || c.CreatedAt.After(best.CreatedAt) {
			cp := c
			best = &cp
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (m *MemoryStore) InsertPricingConfig(ctx context.Context, cfg models.PricingConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.Active {
		for i := range m.pricing {
			m.pricing[i].Active = false
		}
	}
	m.pricing = append(m.pricing, cfg)
	return nil
}

func statusIn(s models.RideStatus, allowed []models.RideStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
