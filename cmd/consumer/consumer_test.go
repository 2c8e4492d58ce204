package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

type fakeUpdater struct {
	geoCalls  int
	hsetCalls int
	failGeo   int // fail the first N GeoAdd calls
	failHSet  int // fail the first N HSet calls
	lastLoc   *redis.GeoLocation
	lastMeta  map[string]interface{}
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geoadd transient")
	}
	f.lastLoc = loc
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hsetCalls++
	if f.hsetCalls <= f.failHSet {
		return errors.New("hset transient")
	}
	f.lastMeta = values
	return nil
}

var testReport = models.LocationReport{DriverID: "d1", Lat: -29.31, Lng: 27.49, At: time.Now()}

func TestUpdateRedisFirstTry(t *testing.T) {
	f := &fakeUpdater{}
	if err := updateRedisWithRetry(context.Background(), f, "drivers_geo", testReport, 3, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if f.geoCalls != 1 || f.hsetCalls != 1 {
		t.Fatalf("want 1 call each, got geo=%d hset=%d", f.geoCalls, f.hsetCalls)
	}
	if f.lastLoc.Name != "d1" || f.lastLoc.Latitude != -29.31 {
		t.Fatalf("unexpected geo location: %+v", f.lastLoc)
	}
	if f.lastMeta["online"] != "true" {
		t.Fatalf("meta missing online flag: %v", f.lastMeta)
	}
	if f.lastMeta["reported"] != testReport.At.Format(time.RFC3339Nano) {
		t.Fatalf("meta freshness mismatch: %v", f.lastMeta)
	}
}

func TestUpdateRedisRetriesTransientGeoAddFailure(t *testing.T) {
	f := &fakeUpdater{failGeo: 2}
	if err := updateRedisWithRetry(context.Background(), f, "drivers_geo", testReport, 3, time.Millisecond); err != nil {
		t.Fatalf("transient failures should be retried away: %v", err)
	}
	if f.geoCalls != 3 {
		t.Fatalf("want 3 geo attempts, got %d", f.geoCalls)
	}
}

func TestUpdateRedisRetriesTransientHSetFailure(t *testing.T) {
	f := &fakeUpdater{failHSet: 1}
	if err := updateRedisWithRetry(context.Background(), f, "drivers_geo", testReport, 3, time.Millisecond); err != nil {
		t.Fatalf("transient hset failure should be retried away: %v", err)
	}
	if f.hsetCalls != 2 {
		t.Fatalf("want 2 hset attempts, got %d", f.hsetCalls)
	}
}

func TestUpdateRedisExhaustsRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 10}
	err := updateRedisWithRetry(context.Background(), f, "drivers_geo", testReport, 3, time.Millisecond)
	if err == nil {
		t.Fatal("want error after exhausting retries")
	}
	if f.geoCalls != 3 {
		t.Fatalf("want exactly 3 attempts, got %d", f.geoCalls)
	}
}

func TestUpdateRedisDoesNotTouchBusyFlag(t *testing.T) {
	f := &fakeUpdater{}
	if err := updateRedisWithRetry(context.Background(), f, "drivers_geo", testReport, 1, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.lastMeta["busy"]; ok {
		t.Fatalf("consumer must not write the busy flag: %v", f.lastMeta)
	}
}
