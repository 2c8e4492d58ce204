package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/registry"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/storage"
)

// Server wires the dispatch core behind the HTTP and WebSocket surface.
type Server struct {
	Rides    *ride.Service
	Registry *registry.Registry
	Broker   *dispatch.Broker
	Pricing  *pricing.Resolver
	Verifier *auth.Verifier
	Kafka    *ingest.KafkaProducer

	logger *slog.Logger
	mux    *mux.Router
}

// NewServer builds the full dispatch stack from config: Postgres when a DSN
// is set (memory store otherwise), the Redis proximity index when a Redis
// address is set (geohash grid otherwise), Kafka ingest when brokers are set.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	var store storage.Store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
	}

	var index geo.Index
	if cfg.RedisAddr != "" {
		index = geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey, cfg.StaleAfter)
	} else {
		index = geo.NewGridIndex(cfg.StaleAfter)
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	reg := registry.New(index, store, logger)
	broker := dispatch.NewBroker(cfg.PushWriteTimeout, logger)
	resolver := pricing.NewResolver(store, logger)

	rides := &ride.Service{
		Store:              store,
		Pricing:            resolver,
		Index:              index,
		Broker:             broker,
		Registry:           reg,
		Logger:             logger,
		SearchRadiusM:      cfg.SearchRadiusM,
		DefaultDurationMin: cfg.DefaultDurationMin,
	}

	s := &Server{
		Rides:    rides,
		Registry: reg,
		Broker:   broker,
		Pricing:  resolver,
		Verifier: auth.NewVerifier(cfg.JWTSecret),
		Kafka:    kp,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rides", s.requireAuth(s.handleCreateRide, auth.RolePassenger)).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/estimate", s.handleEstimate).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/history", s.requireAuth(s.handleHistory, auth.RolePassenger)).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{id}/accept", s.requireAuth(s.handleAccept, auth.RoleDriver)).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id}/arrive", s.requireAuth(s.handleArrive, auth.RoleDriver)).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id}/start", s.requireAuth(s.handleStart, auth.RoleDriver)).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id}/complete", s.requireAuth(s.handleComplete, auth.RoleDriver)).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id}/cancel", s.requireAuth(s.handleCancel)).Methods("POST")

	s.mux.HandleFunc("/internal/drivers/{id}/location", s.handleDriverLocation).Methods("PUT")
	s.mux.HandleFunc("/internal/pricing", s.handlePutPricing).Methods("POST")

	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
