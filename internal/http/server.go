package httpapi

import (
	"log/slog"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/eta"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/storage"
)

// Server wires the dispatch coordinator to its collaborators and exposes
// the HTTP/WebSocket surface.
type Server struct {
	cfg       config.ServerConfig
	logger    *slog.Logger
	Coord     *dispatch.Coordinator
	Presence  geo.Presence
	Locations *ingest.LocationProducer
	mux       *mux.Router
}

// NewServer builds a server from explicit config. Optional collaborators
// (Postgres history, Kafka, Redis, OSRM, Stripe) attach only when their
// endpoints are configured; everything degrades to in-memory so the binary
// runs locally with no setup.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) *Server {
	coord := dispatch.NewCoordinator(logger)
	coord.DefaultSpeedMps = cfg.DefaultSpeedMps

	if cfg.PGDSN != "" {
		if hs, err := storage.NewPostgresHistory(cfg.PGDSN); err == nil {
			coord.History = hs
		} else {
			logger.Warn("postgres history unavailable, falling back to memory", "error", err)
		}
	}
	if coord.History == nil {
		coord.History = storage.NewMemoryHistory()
	}

	var presence geo.Presence
	if cfg.RedisAddr != "" {
		presence = geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		presence = geo.NewIndex()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		Coord:    coord,
		Presence: presence,
		mux:      mux.NewRouter(),
	}

	if len(cfg.KafkaBrokers) > 0 {
		coord.Sink = ingest.NewRideEventProducer(cfg.KafkaBrokers, cfg.RideEventsTopic)
		s.Locations = ingest.NewLocationProducer(cfg.KafkaBrokers, cfg.LocationsTopic)
	}
	if cfg.OSRMEndpoint != "" {
		coord.ETAClient = eta.NewOSRMClient(cfg.OSRMEndpoint)
		coord.ETACache = eta.NewCache(5 * time.Minute)
	}
	if stripeConfigured() {
		coord.Fares = payments.NewStripeFareHolds("usd")
	}

	s.registerMiddleware()
	s.routes()
	return s
}

// NewServerFromEnv is the env-driven convenience constructor used by the
// server binary.
func NewServerFromEnv() (*Server, error) {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return nil, err
	}
	return NewServer(cfg, logging.NewLogger(cfg.LogLevel)), nil
}
