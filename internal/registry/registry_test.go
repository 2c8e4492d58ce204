package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/models"
)

type recordingIndex struct {
	mu      sync.Mutex
	upserts []models.Driver
}

func (r *recordingIndex) Upsert(d models.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, d)
}

func (r *recordingIndex) Nearby(p models.Coord, radiusMeters float64) []models.Driver { return nil }

func (r *recordingIndex) last() models.Driver {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts[len(r.upserts)-1]
}

func TestReportLocationCreatesAndMarksOnline(t *testing.T) {
	idx := &recordingIndex{}
	reg := New(idx, nil, logging.NewNop())

	d := reg.ReportLocation(context.Background(), models.LocationReport{DriverID: "d1", Lat: -29.31, Lng: 27.49})
	if !d.Online || d.Busy {
		t.Fatalf("first report should create an online, free driver: %+v", d)
	}
	if got, ok := reg.Get("d1"); !ok || got.Loc.Lat != -29.31 {
		t.Fatalf("driver not stored: %+v ok=%v", got, ok)
	}
	if idx.last().ID != "d1" {
		t.Fatal("index not updated")
	}
}

func TestReportLocationIdempotent(t *testing.T) {
	idx := &recordingIndex{}
	reg := New(idx, nil, logging.NewNop())
	ctx := context.Background()

	rep := models.LocationReport{DriverID: "d1", Lat: 1, Lng: 2}
	first := reg.ReportLocation(ctx, rep)
	second := reg.ReportLocation(ctx, rep)

	first.ReportedAt, second.ReportedAt = time.Time{}, time.Time{}
	if first != second {
		t.Fatalf("repeated identical reports changed state: %+v vs %+v", first, second)
	}
}

func TestReportLocationLastWriteWinsByTimestamp(t *testing.T) {
	idx := &recordingIndex{}
	reg := New(idx, nil, logging.NewNop())
	ctx := context.Background()

	now := time.Now()
	reg.ReportLocation(ctx, models.LocationReport{DriverID: "d1", Lat: 5, Lng: 5, At: now})
	// delayed report from before the current state must not move the driver
	reg.ReportLocation(ctx, models.LocationReport{DriverID: "d1", Lat: 9, Lng: 9, At: now.Add(-10 * time.Second)})

	d, _ := reg.Get("d1")
	if d.Loc.Lat != 5 {
		t.Fatalf("stale report overwrote newer position: %+v", d)
	}
}

func TestBusyFlagSurvivesLocationReports(t *testing.T) {
	idx := &recordingIndex{}
	reg := New(idx, nil, logging.NewNop())
	ctx := context.Background()

	reg.ReportLocation(ctx, models.LocationReport{DriverID: "d1", Lat: 1, Lng: 1})
	reg.SetBusy(ctx, "d1", true)
	reg.ReportLocation(ctx, models.LocationReport{DriverID: "d1", Lat: 1.01, Lng: 1.01})

	d, _ := reg.Get("d1")
	if !d.Busy {
		t.Fatal("busy flag lost on location report")
	}
	reg.SetBusy(ctx, "d1", false)
	if d, _ := reg.Get("d1"); d.Busy {
		t.Fatal("busy flag not cleared")
	}
}

func TestMarkOffline(t *testing.T) {
	idx := &recordingIndex{}
	reg := New(idx, nil, logging.NewNop())
	ctx := context.Background()

	reg.ReportLocation(ctx, models.LocationReport{DriverID: "d1", Lat: 1, Lng: 1})
	reg.MarkOffline(ctx, "d1")

	d, _ := reg.Get("d1")
	if d.Online {
		t.Fatal("driver still online after MarkOffline")
	}
	if idx.last().Online {
		t.Fatal("index still sees driver online")
	}
	// a new report flips the driver back online
	reg.ReportLocation(ctx, models.LocationReport{DriverID: "d1", Lat: 1, Lng: 1})
	if d, _ := reg.Get("d1"); !d.Online {
		t.Fatal("driver not back online after fresh report")
	}
}

func TestConcurrentReportsFromDistinctDrivers(t *testing.T) {
	idx := &recordingIndex{}
	reg := New(idx, nil, logging.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%26))
			for j := 0; j < 20; j++ {
				reg.ReportLocation(ctx, models.LocationReport{DriverID: id, Lat: float64(n % 60), Lng: float64(j)})
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 26; i++ {
		if _, ok := reg.Get(string(rune('a' + i))); !ok {
			t.Fatalf("driver %c missing after concurrent reports", 'a'+i)
		}
	}
}
