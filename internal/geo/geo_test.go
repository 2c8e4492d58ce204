package geo

import (
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

var center = models.Coord{Lat: -29.3098, Lng: 27.4969}

// offsetKm returns a coordinate roughly km kilometers east of center.
func offsetKm(km float64) models.Coord {
	return models.Coord{Lat: center.Lat, Lng: center.Lng + km/(111.32*0.872)}
}

func newTestIndex(now time.Time) *GridIndex {
	g := NewGridIndex(30 * time.Second)
	g.now = func() time.Time { return now }
	return g
}

func TestNearbyEligibilityFilter(t *testing.T) {
	now := time.Now()
	g := newTestIndex(now)

	g.Upsert(models.Driver{ID: "free", Loc: offsetKm(1), Online: true, ReportedAt: now})
	g.Upsert(models.Driver{ID: "busy", Loc: offsetKm(1), Online: true, Busy: true, ReportedAt: now})
	g.Upsert(models.Driver{ID: "offline", Loc: offsetKm(1), Online: false, ReportedAt: now})
	g.Upsert(models.Driver{ID: "stale", Loc: offsetKm(1), Online: true, ReportedAt: now.Add(-45 * time.Second)})
	g.Upsert(models.Driver{ID: "far", Loc: offsetKm(9), Online: true, ReportedAt: now})

	got := g.Nearby(center, 5000)
	if len(got) != 1 || got[0].ID != "free" {
		t.Fatalf("want only the free driver, got %+v", got)
	}
}

func TestNearbyFindsDriversAcrossCellBoundaries(t *testing.T) {
	now := time.Now()
	g := newTestIndex(now)
	// ~4.5 km away: inside the radius but very likely in a neighboring
	// geohash cell at the index's precision.
	g.Upsert(models.Driver{ID: "edge", Loc: offsetKm(4.5), Online: true, ReportedAt: now})

	got := g.Nearby(center, 5000)
	if len(got) != 1 || got[0].ID != "edge" {
		t.Fatalf("cross-cell driver missed: %+v", got)
	}
}

func TestNearbyRespectsRadius(t *testing.T) {
	now := time.Now()
	g := newTestIndex(now)
	g.Upsert(models.Driver{ID: "d1", Loc: offsetKm(3), Online: true, ReportedAt: now})

	if got := g.Nearby(center, 1000); len(got) != 0 {
		t.Fatalf("1 km radius should be empty, got %+v", got)
	}
	if got := g.Nearby(center, 5000); len(got) != 1 {
		t.Fatalf("5 km radius should find the driver, got %+v", got)
	}
}

func TestUpsertMovesDriverBetweenCells(t *testing.T) {
	now := time.Now()
	g := newTestIndex(now)
	g.Upsert(models.Driver{ID: "mover", Loc: offsetKm(1), Online: true, ReportedAt: now})
	// relocate far outside the original cell
	g.Upsert(models.Driver{ID: "mover", Loc: offsetKm(40), Online: true, ReportedAt: now})

	if got := g.Nearby(center, 5000); len(got) != 0 {
		t.Fatalf("driver should have left the search area, got %+v", got)
	}
	far := offsetKm(40)
	if got := g.Nearby(far, 5000); len(got) != 1 {
		t.Fatalf("driver should be findable at the new position, got %+v", got)
	}
}

func TestNearbyReturnsStaleDriverAfterFreshReport(t *testing.T) {
	now := time.Now()
	g := newTestIndex(now)
	g.Upsert(models.Driver{ID: "d1", Loc: offsetKm(1), Online: true, ReportedAt: now.Add(-2 * time.Minute)})
	if got := g.Nearby(center, 5000); len(got) != 0 {
		t.Fatalf("stale driver matched: %+v", got)
	}
	g.Upsert(models.Driver{ID: "d1", Loc: offsetKm(1), Online: true, ReportedAt: now})
	if got := g.Nearby(center, 5000); len(got) != 1 {
		t.Fatalf("freshened driver missed: %+v", got)
	}
}
