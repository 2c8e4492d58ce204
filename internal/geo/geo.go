package geo

import (
	"math"
	"sync"
	"time"

	"github.com/mmcloughlin/geohash"

	"github.com/example/ride-dispatch/internal/fare"
	"github.com/example/ride-dispatch/internal/models"
)

// Index answers "which eligible drivers are within radius meters of a point".
// Eligible means online, not busy, and not stale. The result set is
// unordered; dispatch broadcasts to every match.
type Index interface {
	Upsert(d models.Driver)
	Nearby(p models.Coord, radiusMeters float64) []models.Driver
}

// cellPrecision 5 gives ~4.9 km geohash cells, a good fit for city-scale
// search radii around the 5 km default.
const cellPrecision = 5

// GridIndex buckets drivers by geohash cell so a nearby query touches only
// the cells overlapping the search circle instead of the whole fleet.
type GridIndex struct {
	mu         sync.RWMutex
	cells      map[string]map[string]struct{}
	drivers    map[string]models.Driver
	cellOf     map[string]string
	staleAfter time.Duration
	now        func() time.Time
}

func NewGridIndex(staleAfter time.Duration) *GridIndex {
	return &GridIndex{
		cells:      make(map[string]map[string]struct{}),
		drivers:    make(map[string]models.Driver),
		cellOf:     make(map[string]string),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (g *GridIndex) Upsert(d models.Driver) {
	cell := geohash.EncodeWithPrecision(d.Loc.Lat, d.Loc.Lng, cellPrecision)
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.cellOf[d.ID]; ok && prev != cell {
		delete(g.cells[prev], d.ID)
		if len(g.cells[prev]) == 0 {
			delete(g.cells, prev)
		}
	}
	if g.cells[cell] == nil {
		g.cells[cell] = make(map[string]struct{})
	}
	g.cells[cell][d.ID] = struct{}{}
	g.cellOf[d.ID] = cell
	g.drivers[d.ID] = d
}

func (g *GridIndex) Nearby(p models.Coord, radiusMeters float64) []models.Driver {
	now := g.now()
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := []models.Driver{}
	for cell := range coveringCells(p, radiusMeters) {
		for id := range g.cells[cell] {
			d := g.drivers[id]
			if !d.Eligible(now, g.staleAfter) {
				continue
			}
			if fare.DistanceKm(p, d.Loc)*1000 <= radiusMeters {
				out = append(out, d)
			}
		}
	}
	return out
}

// coveringCells enumerates every geohash cell that can intersect the search
// circle by sampling the bounding box at half-cell steps.
func coveringCells(p models.Coord, radiusMeters float64) map[string]struct{} {
	latDelta := radiusMeters / 111320.0
	cosLat := math.Cos(p.Lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	lngDelta := radiusMeters / (111320.0 * cosLat)

	box := geohash.BoundingBox(geohash.EncodeWithPrecision(p.Lat, p.Lng, cellPrecision))
	stepLat := (box.MaxLat - box.MinLat) / 2
	stepLng := (box.MaxLng - box.MinLng) / 2

	cells := make(map[string]struct{})
	for lat := p.Lat - latDelta; lat <= p.Lat+latDelta+stepLat; lat += stepLat {
		for lng := p.Lng - lngDelta; lng <= p.Lng+lngDelta+stepLng; lng += stepLng {
			cells[geohash.EncodeWithPrecision(clampLat(lat), wrapLng(lng), cellPrecision)] = struct{}{}
		}
	}
	return cells
}

func clampLat(lat float64) float64 {
	if lat > 90 {
		return 90
	}
	if lat < -90 {
		return -90
	}
	return lat
}

func wrapLng(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}
