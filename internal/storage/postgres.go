package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

// PostgresStore backs all three stores with a single database. The ride
// transition guard is a conditional UPDATE so the compare-and-swap holds
// across processes.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rides(
			id, passenger_id, driver_id,
			pickup_lat, pickup_lng, pickup_name,
			dest_lat, dest_lng, dest_name,
			fare_base, fare_distance, fare_time, fare_surge, fare_total,
			status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		r.ID, r.PassengerID, r.DriverID,
		r.Pickup.Lat, r.Pickup.Lng, r.PickupName,
		r.Dest.Lat, r.Dest.Lng, r.DestName,
		r.Fare.Base, r.Fare.DistanceFare, r.Fare.TimeFare, r.Fare.SurgeMultiplier, r.Fare.Total,
		r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

const rideColumns = `
	id, passenger_id, driver_id,
	pickup_lat, pickup_lng, pickup_name,
	dest_lat, dest_lng, dest_name,
	fare_base, fare_distance, fare_time, fare_surge, fare_total,
	status, created_at, updated_at`

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	return scanRide(row)
}

func (p *PostgresStore) TransitionRide(ctx context.Context, id string, to models.RideStatus, driverID string, from ...models.RideStatus) (*models.Ride, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	row := p.db.QueryRowContext(ctx, `
		UPDATE rides
		SET status = $1,
		    driver_id = CASE WHEN $2 <> '' THEN $2 ELSE driver_id END,
		    updated_at = $3
		WHERE id = $4 AND status = ANY($5)
		RETURNING `+rideColumns,
		string(to), driverID, time.Now(), id, pq.Array(allowed))
	r, err := scanRide(row)
	if errors.Is(err, ErrNotFound) {
		// Zero rows: distinguish missing ride from a failed status guard.
		var exists bool
		if qerr := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id = $1)`, id).Scan(&exists); qerr == nil && exists {
			return nil, ErrStatusConflict
		}
		return nil, ErrNotFound
	}
	return r, err
}

func (p *PostgresStore) RidesByPassenger(ctx context.Context, passengerID string) ([]models.Ride, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE passenger_id = $1 ORDER BY created_at DESC`,
		passengerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Ride{}
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpsertDriver(ctx context.Context, d models.Driver) error {
	var heading sql.NullFloat64
	if d.Heading != nil {
		heading = sql.NullFloat64{Float64: *d.Heading, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO drivers(id, lat, lng, heading, online, busy, reported_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			lat = EXCLUDED.lat, lng = EXCLUDED.lng, heading = EXCLUDED.heading,
			online = EXCLUDED.online, reported_at = EXCLUDED.reported_at`,
		d.ID, d.Loc.Lat, d.Loc.Lng, heading, d.Online, d.Busy, d.ReportedAt)
	return err
}

func (p *PostgresStore) SetDriverBusy(ctx context.Context, id string, busy bool) error {
	return p.setDriverFlag(ctx, id, "busy", busy)
}

func (p *PostgresStore) SetDriverOnline(ctx context.Context, id string, online bool) error {
	return p.setDriverFlag(ctx, id, "online", online)
}

func (p *PostgresStore) setDriverFlag(ctx context.Context, id, column string, v bool) error {
	// column is one of two fixed names, never user input
	res, err := p.db.ExecContext(ctx, `UPDATE drivers SET `+column+` = $1 WHERE id = $2`, v, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ActivePricingConfig(ctx context.Context) (*models.PricingConfig, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, base_fare, per_km_rate, per_minute_rate, surge_multiplier, active, created_at
		FROM pricing_configs WHERE active = true
		ORDER BY created_at DESC LIMIT 1`)
	var c models.PricingConfig
	err := row.Scan(&c.ID, &c.BaseFare, &c.PerKmRate, &c.PerMinuteRate, &c.SurgeMultiplier, &c.Active, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresStore) InsertPricingConfig(ctx context.Context, cfg models.PricingConfig) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if cfg.Active {
		if _, err := tx.ExecContext(ctx, `UPDATE pricing_configs SET active = false WHERE active = true`); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO pricing_configs(id, base_fare, per_km_rate, per_minute_rate, surge_multiplier, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		cfg.ID, cfg.BaseFare, cfg.PerKmRate, cfg.PerMinuteRate, cfg.SurgeMultiplier, cfg.Active, cfg.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var driverID sql.NullString
	err := row.Scan(
		&r.ID, &r.PassengerID, &driverID,
		&r.Pickup.Lat, &r.Pickup.Lng, &r.PickupName,
		&r.Dest.Lat, &r.Dest.Lng, &r.DestName,
		&r.Fare.Base, &r.Fare.DistanceFare, &r.Fare.TimeFare, &r.Fare.SurgeMultiplier, &r.Fare.Total,
		&r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.DriverID = driverID.String
	return &r, nil
}
