package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/thenexusengine/tne_mediation/internal/adapters"
	"github.com/thenexusengine/tne_mediation/internal/adapters/demo"
	"github.com/thenexusengine/tne_mediation/internal/adapters/ironsource"
	mconfig "github.com/thenexusengine/tne_mediation/internal/config"
	"github.com/thenexusengine/tne_mediation/internal/endpoints"
	"github.com/thenexusengine/tne_mediation/internal/mediation"
	"github.com/thenexusengine/tne_mediation/internal/mediator"
	"github.com/thenexusengine/tne_mediation/internal/metrics"
	"github.com/thenexusengine/tne_mediation/internal/middleware"
	"github.com/thenexusengine/tne_mediation/internal/storage"
	"github.com/thenexusengine/tne_mediation/pkg/events"
	"github.com/thenexusengine/tne_mediation/pkg/logger"
	"github.com/thenexusengine/tne_mediation/pkg/redis"
)

const settingPersonalizedAds = "personalizedAds"

// bannerSettleDelaySetter is implemented by adapters that reload banners
type bannerSettleDelaySetter interface {
	SetBannerSettleDelay(d time.Duration)
}

// Server hosts the mediator and its admin HTTP surface
type Server struct {
	config      *ServerConfig
	httpServer  *http.Server
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	mediator    *mediator.Mediator
	sdk         *demo.SDK
	db          *sql.DB
	store       *storage.NetworkStore
	redisClient *redis.Client
	redisSource *storage.RedisSource
	exporter    *events.Exporter
}

// NewServer creates a server with every configured network registered
func NewServer(ctx context.Context, cfg *ServerConfig) (*Server, error) {
	s := &Server{
		config: cfg,
	}

	if err := s.initialize(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// initialize sets up all server components
func (s *Server) initialize(ctx context.Context) error {
	log := logger.Log

	log.Info().
		Str("port", s.config.Port).
		Dur("tick_interval", s.config.TickInterval).
		Dur("banner_settle_delay", s.config.BannerSettleDelay).
		Bool("personalized_ads", s.config.PersonalizedAds).
		Float64("fill_rate", s.config.FillRate).
		Msg("Initializing mediation host")

	// Each server owns its registry so tests can build several servers
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = metrics.NewMetricsWithRegistry(metrics.DefaultNamespace, s.registry)

	s.mediator = mediator.New(
		mediator.Config{TickInterval: s.config.TickInterval},
		mediator.WithRecorder(s.metrics),
	)

	// Database and Redis failures are non-fatal, log and continue
	if err := s.initDatabase(); err != nil {
		log.Warn().Err(err).Msg("Database initialization failed, continuing with reduced functionality")
	}
	if err := s.initRedis(); err != nil {
		log.Warn().Err(err).Msg("Redis initialization failed, continuing with reduced functionality")
	}

	configs := s.loadNetworks(ctx)
	s.initAdapters(configs)

	s.mediator.Subscribe(logEvent)
	s.initExporter()

	networks := adapters.DefaultRegistry.ListNetworks()
	log.Info().
		Int("count", len(networks)).
		Strs("available", networks).
		Strs("registered", s.mediator.Networks()).
		Msg("Networks ready")

	s.initHandlers()

	return nil
}

// initDatabase connects to PostgreSQL when DB_HOST is set
func (s *Server) initDatabase() error {
	log := logger.Log

	if s.config.DatabaseConfig == nil {
		log.Info().Msg("DB_HOST not set, database-backed configuration disabled")
		return nil
	}

	dbCfg := s.config.DatabaseConfig
	dbConn, err := storage.NewDBConnection(
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.User,
		dbCfg.Password,
		dbCfg.Name,
		dbCfg.SSLMode,
	)
	if err != nil {
		return err
	}

	s.db = dbConn
	s.store = storage.NewNetworkStore(dbConn)
	log.Info().Str("host", dbCfg.Host).Msg("PostgreSQL network store connected")
	return nil
}

// initRedis initializes the Redis client
func (s *Server) initRedis() error {
	log := logger.Log

	if s.config.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set, Redis-backed configuration disabled")
		return nil
	}

	client, err := redis.New(s.config.RedisURL)
	if err != nil {
		return err
	}
	s.redisClient = client
	s.redisSource = storage.NewRedisSource(client, s.config.RedisKey)

	log.Info().Str("addr", client.Addr()).Msg("Redis client initialized")
	return nil
}

// networkSource picks the first configured source
func (s *Server) networkSource() (storage.Source, string) {
	switch {
	case s.store != nil:
		return s.store, "postgres"
	case s.redisSource != nil:
		return s.redisSource, "redis"
	case s.config.ConfigFile != "":
		return storage.NewFileSource(s.config.ConfigFile), "file"
	default:
		return nil, "builtin"
	}
}

// loadNetworks reads network configuration, falling back to the built-in
// demo network when no source is configured or nothing could be loaded
func (s *Server) loadNetworks(ctx context.Context) []*mediation.NetworkConfig {
	log := logger.Log

	source, name := s.networkSource()
	if source == nil {
		log.Info().Msg("No configuration source set, using the built-in demo network")
		return builtinNetworks()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	configs, err := source.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Str("source", name).Msg("Some network configurations could not be loaded")
	}
	if len(configs) == 0 && err != nil {
		log.Warn().Str("source", name).Msg("Falling back to the built-in demo network")
		return builtinNetworks()
	}

	log.Info().
		Str("source", name).
		Int("count", len(configs)).
		Msg("Network configurations loaded")
	return configs
}

// initAdapters builds one adapter per configured network over the simulated SDK
func (s *Server) initAdapters(configs []*mediation.NetworkConfig) {
	log := logger.Log

	s.sdk = demo.New(s.config.ToDemoConfig(), s.mediator.Post)
	deps := adapters.Dependencies{Recorder: s.metrics, SDK: s.sdk}

	for _, nc := range configs {
		nc = withPersonalizedDefault(nc, s.config.PersonalizedAds)

		a, err := adapters.DefaultRegistry.New(nc.Network, deps)
		if err != nil {
			log.Warn().Err(err).Str("network", nc.Network).Msg("Skipping network")
			continue
		}
		if d, ok := a.(bannerSettleDelaySetter); ok {
			d.SetBannerSettleDelay(s.config.BannerSettleDelay)
		}
		if err := s.mediator.Register(a, nc); err != nil {
			log.Warn().Err(err).Str("network", nc.Network).Msg("Network registered with errors")
		}
	}
}

// withPersonalizedDefault copies nc, adding the host consent default when the
// network does not set one
func withPersonalizedDefault(nc *mediation.NetworkConfig, personalized bool) *mediation.NetworkConfig {
	if _, ok := nc.Settings[settingPersonalizedAds]; ok {
		return nc
	}
	out := *nc
	out.Settings = make(map[string]string, len(nc.Settings)+1)
	for k, v := range nc.Settings {
		out.Settings[k] = v
	}
	out.Settings[settingPersonalizedAds] = strconv.FormatBool(personalized)
	return &out
}

// builtinNetworks is the demo configuration used without a source
func builtinNetworks() []*mediation.NetworkConfig {
	return []*mediation.NetworkConfig{
		{
			Network:  ironsource.Name,
			Enabled:  true,
			Settings: map[string]string{"appId": "demo-app-key"},
			Instances: json.RawMessage(`[
				{"adType": "banner", "name": "default", "id": "banner-bottom"},
				{"adType": "banner", "name": "top", "id": "banner-top", "param": "top"}
			]`),
			Parameters: []*mediation.InstanceParameters{
				{AdType: mediation.AdTypeBanner, Name: "top", Values: map[string]string{"size": "large", "position": "top"}},
			},
		},
	}
}

// initExporter streams committed events to the collector when EVENTS_URL is set
func (s *Server) initExporter() {
	if s.config.EventsURL == "" {
		return
	}
	s.exporter = events.NewExporter(events.Config{
		URL:           s.config.EventsURL,
		BufferSize:    s.config.EventsBatchSize,
		FlushInterval: s.config.EventsFlushInterval,
	})
	s.mediator.Subscribe(s.exportEvent)
	logger.Log.Info().Str("url", s.config.EventsURL).Msg("Event export enabled")
}

func (s *Server) exportEvent(e mediation.Event) {
	ev := events.Event{
		Network:  e.Adapter.Name(),
		AdType:   e.AdType.String(),
		Event:    e.Event.String(),
		Instance: mediation.InstanceName(e.Instance),
	}
	if e.Instance != nil {
		ev.AdID = e.Instance.AdID
	}
	s.exporter.Record(ev)
}

func logEvent(e mediation.Event) {
	logger.Log.Debug().
		Str("network", e.Adapter.Name()).
		Str("ad_type", e.AdType.String()).
		Str("event", e.Event.String()).
		Str("instance", mediation.InstanceName(e.Instance)).
		Msg("Mediation event")
}

// initHandlers builds the HTTP server
func (s *Server) initHandlers() {
	mux := http.NewServeMux()
	mux.Handle("GET /health", healthHandler())
	mux.Handle("GET /health/ready", s.readyHandler())
	mux.Handle("GET /status", endpoints.NewStatusHandler(s.mediator))
	mux.Handle("GET /info/networks", endpoints.NewInfoNetworksHandler(adapters.DefaultRegistry, s.mediator, s.sdk.PluginVersion))
	mux.Handle("GET /metrics", metrics.HandlerFor(s.registry))

	endpoints.NewAdHandler(s.mediator).Register(mux)

	var writer endpoints.NetworkWriter
	if s.redisSource != nil {
		writer = s.redisSource
	}
	var toggler endpoints.NetworkToggler
	if s.store != nil {
		toggler = s.store
	}
	endpoints.NewNetworkAdminHandler(writer, toggler).Register(mux)

	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.buildHandler(mux),
		ReadTimeout:  mconfig.ServerReadTimeout,
		WriteTimeout: mconfig.ServerWriteTimeout,
		IdleTimeout:  mconfig.ServerIdleTimeout,
	}
}

// buildHandler builds the middleware chain: Logging -> Size Limit -> Auth -> Metrics -> Handler
func (s *Server) buildHandler(mux *http.ServeMux) http.Handler {
	sizeLimiter := middleware.NewSizeLimiter(middleware.DefaultSizeLimitConfig())
	auth := middleware.NewAuth(s.config.AuthConfig)
	auth.SetMetrics(s.metrics)
	if s.redisClient != nil {
		auth.SetKeyStore(s.redisClient)
	}

	logger.Log.Info().
		Bool("auth_enabled", auth.IsEnabled()).
		Bool("shared_keys", s.redisClient != nil).
		Msg("Middleware chain built")

	handler := http.Handler(mux)
	handler = s.metrics.Middleware(handler)
	handler = auth.Middleware(handler)
	handler = sizeLimiter.Middleware(handler)
	handler = loggingMiddleware(handler)
	return handler
}

// Run drives the mediator and serves HTTP until ctx is done
func (s *Server) Run(ctx context.Context) error {
	log := logger.Log
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.mediator.Run(gctx)
	})

	g.Go(func() error {
		log.Info().Str("addr", s.httpServer.Addr).Msg("Server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Starting graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), mconfig.ShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	s.close()
	return err
}

// close releases storage connections and sends pending events
func (s *Server) close() {
	log := logger.Log

	if s.exporter != nil {
		if err := s.exporter.Close(); err != nil {
			log.Warn().Err(err).Msg("Error sending pending events")
		}
		stats := s.exporter.Stats()
		log.Info().
			Int64("sent", stats.SentEvents).
			Int64("dropped", stats.DroppedEvents).
			Int64("failed_batches", stats.FailedBatches).
			Msg("Event exporter closed")
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing Redis client")
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing database")
		}
	}
}
