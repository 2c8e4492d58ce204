package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisIndex implements Index on Redis GEO commands so multiple API processes
// (and the Kafka consumer) share one driver view. Position lives in a GEO set;
// the eligibility flags live in a per-driver hash.
type RedisIndex struct {
	client     *redis.Client
	key        string
	staleAfter time.Duration
	ctx        context.Context
	now        func() time.Time
}

func NewRedisIndex(addr, password, key string, staleAfter time.Duration) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: key, staleAfter: staleAfter, ctx: context.Background(), now: time.Now}
}

// NewRedisIndexFromClient wires an existing client; the consumer reuses its
// connection this way.
func NewRedisIndexFromClient(c *redis.Client, key string, staleAfter time.Duration) *RedisIndex {
	return &RedisIndex{client: c, key: key, staleAfter: staleAfter, ctx: context.Background(), now: time.Now}
}

func (r *RedisIndex) Upsert(d models.Driver) {
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{Longitude: d.Loc.Lng, Latitude: d.Loc.Lat, Name: d.ID}).Result()
	_ = r.client.HSet(r.ctx, metaKey(d.ID), map[string]interface{}{
		"online":   strconv.FormatBool(d.Online),
		"busy":     strconv.FormatBool(d.Busy),
		"reported": d.ReportedAt.Format(time.RFC3339Nano),
	}).Err()
}

func (r *RedisIndex) Nearby(p models.Coord, radiusMeters float64) []models.Driver {
	res, err := r.client.GeoRadius(r.ctx, r.key, p.Lng, p.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusMeters,
		Unit:      "m",
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil
	}
	now := r.now()
	out := make([]models.Driver, 0, len(res))
	for _, g := range res {
		d := models.Driver{ID: g.Name}
		d.Loc.Lat = g.Latitude
		d.Loc.Lng = g.Longitude
		m, err := r.client.HGetAll(r.ctx, metaKey(g.Name)).Result()
		if err != nil || len(m) == 0 {
			continue
		}
		d.Online = m["online"] == "true"
		d.Busy = m["busy"] == "true"
		if ts, err := time.Parse(time.RFC3339Nano, m["reported"]); err == nil {
			d.ReportedAt = ts
		}
		if !d.Eligible(now, r.staleAfter) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func metaKey(id string) string { return "driver:meta:" + id }
