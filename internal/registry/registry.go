package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

// Registry tracks live driver state. Reads are served from memory at report
// frequency; every change is pushed into the proximity index and written
// through to durable storage best-effort. Rapid successive reports from one
// driver resolve last-write-wins by timestamp.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver

	index  geo.Index
	store  storage.DriverStore
	logger *slog.Logger
	now    func() time.Time
}

// New builds a registry. store may be nil for index-only deployments (the
// Kafka consumer owns durable writes there).
func New(index geo.Index, store storage.DriverStore, logger *slog.Logger) *Registry {
	return &Registry{
		drivers: make(map[string]models.Driver),
		index:   index,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// ReportLocation upserts the driver's position and marks it online. Unknown
// ids create a driver on first report. Reports that carry a timestamp older
// than the current state are dropped.
func (r *Registry) ReportLocation(ctx context.Context, rep models.LocationReport) models.Driver {
	at := rep.At
	if at.IsZero() {
		at = r.now()
	}

	r.mu.Lock()
	cur, known := r.drivers[rep.DriverID]
	if known && at.Before(cur.ReportedAt) {
		r.mu.Unlock()
		return cur
	}
	d := models.Driver{
		ID:         rep.DriverID,
		Loc:        models.Coord{Lat: rep.Lat, Lng: rep.Lng},
		Heading:    rep.Heading,
		Online:     true,
		Busy:       known && cur.Busy,
		ReportedAt: at,
	}
	wasOnline := known && cur.Online
	r.drivers[rep.DriverID] = d
	r.mu.Unlock()

	if !wasOnline {
		observability.DriversOnline.Inc()
	}
	r.index.Upsert(d)
	r.persist(ctx, d)
	return d
}

// SetBusy flips the in-ride flag. Position and freshness are untouched.
func (r *Registry) SetBusy(ctx context.Context, id string, busy bool) {
	r.mu.Lock()
	d, ok := r.drivers[id]
	if !ok {
		d = models.Driver{ID: id, ReportedAt: r.now()}
	}
	d.Busy = busy
	r.drivers[id] = d
	r.mu.Unlock()

	r.index.Upsert(d)
	if r.store != nil {
		if err := r.store.SetDriverBusy(ctx, id, busy); err != nil {
			r.logger.Warn("driver busy write-through failed", "driver_id", id, "error", err)
		}
	}
}

// MarkOffline is called on explicit disconnect. Staleness handles the
// silently-killed session case without an explicit event.
func (r *Registry) MarkOffline(ctx context.Context, id string) {
	r.mu.Lock()
	d, ok := r.drivers[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	wasOnline := d.Online
	d.Online = false
	r.drivers[id] = d
	r.mu.Unlock()

	if wasOnline {
		observability.DriversOnline.Dec()
	}
	r.index.Upsert(d)
	if r.store != nil {
		if err := r.store.SetDriverOnline(ctx, id, false); err != nil {
			r.logger.Warn("driver offline write-through failed", "driver_id", id, "error", err)
		}
	}
}

// Get returns the current snapshot for a driver.
func (r *Registry) Get(id string) (models.Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[id]
	return d, ok
}

func (r *Registry) persist(ctx context.Context, d models.Driver) {
	if r.store == nil {
		return
	}
	if err := r.store.UpsertDriver(ctx, d); err != nil {
		r.logger.Warn("driver write-through failed", "driver_id", d.ID, "error", err)
	}
}
