package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nextconvert/cutstudio/internal/api/handlers"
	"github.com/nextconvert/cutstudio/internal/api/middleware"
	"github.com/nextconvert/cutstudio/internal/api/websocket"
	"github.com/nextconvert/cutstudio/internal/modules/segments"
	"github.com/nextconvert/cutstudio/internal/shared/config"
	"github.com/nextconvert/cutstudio/internal/shared/metrics"
	"github.com/nextconvert/cutstudio/internal/shared/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ServerConfig holds dependencies for the API server
type ServerConfig struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          handlers.Pinger
	Redis       handlers.Pinger
	RateCounter middleware.Counter
	Storage     *storage.Service
	WSHub       *websocket.Hub
	Jobs        handlers.JobService
	Segments    *segments.Registry
	Presets     handlers.CustomPresets
	Prober      handlers.Prober
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
}

// Server represents the API server
type Server struct {
	config      *config.Config
	logger      *zap.Logger
	db          handlers.Pinger
	redis       handlers.Pinger
	rateCounter middleware.Counter
	storage     *storage.Service
	wsHub       *websocket.Hub
	jobs        handlers.JobService
	segments    *segments.Registry
	presets     handlers.CustomPresets
	prober      handlers.Prober
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
}

// NewServer creates a new API server
func NewServer(cfg ServerConfig) *Server {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		config:      cfg.Config,
		logger:      cfg.Logger,
		db:          cfg.DB,
		redis:       cfg.Redis,
		rateCounter: cfg.RateCounter,
		storage:     cfg.Storage,
		wsHub:       cfg.WSHub,
		jobs:        cfg.Jobs,
		segments:    cfg.Segments,
		presets:     cfg.Presets,
		prober:      cfg.Prober,
		metrics:     cfg.Metrics,
		gatherer:    gatherer,
	}
}

// Router returns the configured HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	if s.metrics != nil {
		r.Use(middleware.MetricsMiddleware(s.metrics))
	}
	r.Use(chimiddleware.Compress(5))

	// The session cookie needs credentials, so origins are listed explicitly
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	rateLimiter := middleware.NewRateLimiter(s.rateCounter, s.logger)
	r.Use(rateLimiter.Limit(middleware.GlobalRateLimit(s.config.RateLimit)))

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	sessions := middleware.NewSessions(s.config.CookieSecure)

	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"postgres": s.db,
		"redis":    s.redis,
	})
	segmentHandler := handlers.NewSegmentHandler(s.segments, s.logger)
	fileHandler := handlers.NewFileHandler(s.storage, s.logger)
	mediaHandler := handlers.NewMediaHandler(s.prober, s.storage, s.logger)
	presetsHandler := handlers.NewPresetsHandler(s.presets, s.logger)
	jobHandler := handlers.NewJobHandler(handlers.JobHandlerConfig{
		Jobs:      s.jobs,
		Segments:  s.segments,
		Presets:   s.presets,
		Paths:     s.storage,
		Downloads: s.storage,
		Logger:    s.logger,
	})
	wsHandler := handlers.NewWebSocketHandler(s.wsHub, s.logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)
		r.Get("/ready", healthHandler.Ready)

		r.Group(func(r chi.Router) {
			r.Use(sessions.Handler)
			r.Use(middleware.NoCache)

			r.Route("/segments", func(r chi.Router) {
				r.Get("/", segmentHandler.List)
				r.Post("/", segmentHandler.Add)
				r.Delete("/", segmentHandler.Clear)
				r.Delete("/{id}", segmentHandler.Remove)
			})

			r.With(
				rateLimiter.Limit(middleware.UploadRateLimit),
				middleware.ValidateFileUpload(middleware.VideoUpload(s.config.MaxUploadSize)),
			).Post("/files/upload", fileHandler.Upload)

			r.Post("/media/probe", mediaHandler.Probe)

			r.Route("/presets", func(r chi.Router) {
				r.Get("/", presetsHandler.ListPresets)
				r.Get("/custom", presetsHandler.GetCustom)
				r.Put("/custom", presetsHandler.SaveCustom)
				r.Delete("/custom", presetsHandler.ClearCustom)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.With(rateLimiter.Limit(middleware.JobCreationRateLimit)).Post("/", jobHandler.CreateJob)
				r.Get("/", jobHandler.ListJobs)
				r.Get("/{id}", jobHandler.GetJob)
				r.Delete("/{id}", jobHandler.DeleteJob)
				r.Post("/{id}/cancel", jobHandler.CancelJob)
				r.Get("/{id}/downloads", jobHandler.Downloads)
			})

			r.Get("/ws", wsHandler.HandleConnection)
		})
	})

	return r
}
