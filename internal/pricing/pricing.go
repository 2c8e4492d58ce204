package pricing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

// Fallback is used whenever no pricing row is active. Matches the seed
// values the operators provision on a fresh install.
var Fallback = models.PricingConfig{
	BaseFare:        20.0,
	PerKmRate:       10.0,
	PerMinuteRate:   2.0,
	SurgeMultiplier: 1.0,
}

// Resolver owns the single read path for "which pricing config is active".
// Callers never touch the store directly; they always receive a usable
// snapshot, degraded or not.
type Resolver struct {
	store  storage.PricingStore
	logger *slog.Logger
}

func NewResolver(store storage.PricingStore, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Active returns the most recently created active config. When none exists
// (or the store read fails) it degrades to the fallback constants and logs a
// warning; missing config is an operational event, never a request error.
func (r *Resolver) Active(ctx context.Context) models.PricingConfig {
	cfg, err := r.store.ActivePricingConfig(ctx)
	if err == nil {
		return *cfg
	}
	observability.PricingFallbackTotal.Inc()
	if errors.Is(err, storage.ErrNotFound) {
		r.logger.Warn("no active pricing config, using fallback",
			"base", Fallback.BaseFare, "per_km", Fallback.PerKmRate)
	} else {
		r.logger.Warn("pricing config read failed, using fallback", "error", err)
	}
	return Fallback
}

// Put records a new pricing config row. Rows are never mutated in place;
// activating a new config clears the previous row's active flag in the store.
func (r *Resolver) Put(ctx context.Context, cfg models.PricingConfig) (models.PricingConfig, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}
	if err := r.store.InsertPricingConfig(ctx, cfg); err != nil {
		return models.PricingConfig{}, err
	}
	r.logger.Info("pricing config stored",
		"id", cfg.ID, "active", cfg.Active, "surge", cfg.SurgeMultiplier)
	return cfg, nil
}
