package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Driver is the live dispatch view of a driver: last known position plus the
// flags that decide matching eligibility. The durable row mirrors this shape.
type Driver struct {
	ID         string    `json:"id"`
	Loc        Coord     `json:"loc"`
	Heading    *float64  `json:"heading,omitempty"`
	Online     bool      `json:"online"`
	Busy       bool      `json:"busy"`
	ReportedAt time.Time `json:"reported_at"`
}

// Eligible reports whether the driver may be offered a ride: online, free,
// and heard from within the staleness window.
func (d Driver) Eligible(now time.Time, staleAfter time.Duration) bool {
	return d.Online && !d.Busy && now.Sub(d.ReportedAt) <= staleAfter
}

type RideStatus string

const (
	StatusRequested  RideStatus = "REQUESTED"
	StatusAccepted   RideStatus = "ACCEPTED"
	StatusArrived    RideStatus = "ARRIVED"
	StatusInProgress RideStatus = "IN_PROGRESS"
	StatusCompleted  RideStatus = "COMPLETED"
	StatusCancelled  RideStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// FareBreakdown is an itemized quote. Each component is rounded to two
// decimals independently; Total is rounded from the unrounded sum times the
// surge multiplier, so recombining the rounded components can differ from
// Total by up to one cent.
type FareBreakdown struct {
	Base            float64 `json:"base"`
	DistanceFare    float64 `json:"distance_fare"`
	TimeFare        float64 `json:"time_fare"`
	SurgeMultiplier float64 `json:"surge_multiplier"`
	Total           float64 `json:"total"`
}

type Ride struct {
	ID          string        `json:"id"`
	PassengerID string        `json:"passenger_id"`
	DriverID    string        `json:"driver_id,omitempty"`
	Pickup      Coord         `json:"pickup"`
	PickupName  string        `json:"pickup_name"`
	Dest        Coord         `json:"dest"`
	DestName    string        `json:"dest_name"`
	Fare        FareBreakdown `json:"fare"`
	Status      RideStatus    `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// RideRequest is the inbound shape for ride creation and fare estimates.
// DurationMinutes is optional; estimates made before a route is known omit it.
type RideRequest struct {
	Pickup          Coord    `json:"pickup"`
	PickupName      string   `json:"pickup_name"`
	Dest            Coord    `json:"dest"`
	DestName        string   `json:"dest_name"`
	DurationMinutes *float64 `json:"duration_minutes,omitempty"`
}

// LocationReport is a single driver heartbeat, arriving over HTTP, WebSocket,
// or the Kafka ingest topic.
type LocationReport struct {
	DriverID string    `json:"driver_id"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Heading  *float64  `json:"heading,omitempty"`
	At       time.Time `json:"at,omitempty"`
}

// PricingConfig rows are append-only; a change inserts a new row and clears
// the previous row's active flag. At most one row should be active at a time.
type PricingConfig struct {
	ID              string    `json:"id"`
	BaseFare        float64   `json:"base_fare"`
	PerKmRate       float64   `json:"per_km_rate"`
	PerMinuteRate   float64   `json:"per_minute_rate"`
	SurgeMultiplier float64   `json:"surge_multiplier"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}
