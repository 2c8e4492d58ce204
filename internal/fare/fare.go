package fare

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/ride-dispatch/internal/models"
)

// ErrInvalidCoordinate is returned when a latitude or longitude falls outside
// the WGS84 range. Callers are expected to reject the request before any
// pricing work happens.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

const earthRadiusKm = 6371.0

// ValidateCoord checks lat in [-90,90] and lng in [-180,180].
func ValidateCoord(c models.Coord) error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return fmt.Errorf("%w: lat=%v lng=%v", ErrInvalidCoordinate, c.Lat, c.Lng)
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: lat=%v lng=%v", ErrInvalidCoordinate, c.Lat, c.Lng)
	}
	return nil
}

// DistanceKm is the haversine great-circle distance on a spherical earth.
func DistanceKm(a, b models.Coord) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// Quote prices a trip. It is deterministic and side-effect-free: the same
// inputs always produce the same breakdown, and it serves both binding
// ride-creation quotes and non-binding estimates.
//
// Rounding is half-away-from-zero to two decimals, applied to each component
// independently. Total is rounded from the unrounded (base+distance+time)
// sum times the surge multiplier, so it can differ from recombining the
// rounded components by up to one cent.
func Quote(pickup, dest models.Coord, durationMinutes float64, cfg models.PricingConfig) (models.FareBreakdown, error) {
	if err := ValidateCoord(pickup); err != nil {
		return models.FareBreakdown{}, fmt.Errorf("pickup: %w", err)
	}
	if err := ValidateCoord(dest); err != nil {
		return models.FareBreakdown{}, fmt.Errorf("destination: %w", err)
	}
	if durationMinutes < 0 {
		durationMinutes = 0
	}

	distanceFare := DistanceKm(pickup, dest) * cfg.PerKmRate
	timeFare := durationMinutes * cfg.PerMinuteRate
	total := (cfg.BaseFare + distanceFare + timeFare) * cfg.SurgeMultiplier

	return models.FareBreakdown{
		Base:            roundMoney(cfg.BaseFare),
		DistanceFare:    roundMoney(distanceFare),
		TimeFare:        roundMoney(timeFare),
		SurgeMultiplier: cfg.SurgeMultiplier,
		Total:           roundMoney(total),
	}, nil
}

// roundMoney rounds to two decimals, half away from zero.
func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
