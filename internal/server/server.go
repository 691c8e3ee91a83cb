package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rfranks/ai-chat-ehr/internal/cache"
	"github.com/rfranks/ai-chat-ehr/internal/config"
	"github.com/rfranks/ai-chat-ehr/internal/engine"
	"github.com/rfranks/ai-chat-ehr/internal/logger"
	"github.com/rfranks/ai-chat-ehr/internal/phi"
	"github.com/rfranks/ai-chat-ehr/internal/store"
	"github.com/rfranks/ai-chat-ehr/internal/websocket"
)

// Server is the anonymizer HTTP API: record anonymization, health and info
// endpoints, and the monitoring WebSocket feed.
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	engine    *engine.Engine
	detector  *phi.PatternDetector
	storage   store.Storage
	spanCache *cache.SpanCache
	wsHub     *websocket.Hub
	router    *mux.Router
	server    *http.Server
	startTime time.Time
	limiter   *clientLimiter
}

// New wires the detector, engine, storage, and hub into a server instance.
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	detector, err := phi.New(cfg.Detector, log.WithComponent("phi"))
	if err != nil {
		return nil, fmt.Errorf("failed to create PHI detector: %w", err)
	}

	var spanCache *cache.SpanCache
	if cfg.Cache.Enabled {
		spanCache, err = cache.NewSpanCache(cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			// Cache is a performance layer only; run without it.
			log.Warn("Span cache unavailable, continuing without it", zap.Error(err))
		} else {
			detector.WithCache(spanCache)
		}
	}

	eng, err := engine.New(cfg.Privacy, detector, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create anonymization engine: %w", err)
	}

	storage, err := store.New(cfg.Storage, log.WithComponent("store").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	wsHub := websocket.NewHub(cfg.WebSocket, log.WithComponent("websocket").Logger)

	server := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		engine:    eng,
		detector:  detector,
		storage:   storage,
		spanCache: spanCache,
		wsHub:     wsHub,
		router:    mux.NewRouter(),
		startTime: time.Now(),
	}

	if cfg.Server.RateLimit.Enabled {
		server.limiter = newClientLimiter(cfg.Server.RateLimit.RequestsPerMin, cfg.Server.RateLimit.Burst)
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")
	s.router.HandleFunc("/stats", s.handleStats).Methods("GET")
	s.router.HandleFunc("/cache/clear", s.handleCacheClear).Methods("POST")

	if s.config.WebSocket.Enabled {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.wsHub.HandleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/anonymize", s.handleAnonymize).Methods("POST")
}

// Handler exposes the configured router, primarily for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and the WebSocket hub.
func (s *Server) Start() error {
	s.logger.Info("Starting anonymizer server",
		zap.Int("port", s.config.Server.Port),
		zap.String("storage_mode", s.config.Storage.Mode),
		zap.Bool("span_cache", s.spanCache != nil),
	)

	go s.wsHub.Run()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server and releases storage and cache
// connections.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping anonymizer server")
	err := s.server.Shutdown(ctx)
	if closeErr := s.storage.Close(); err == nil {
		err = closeErr
	}
	if s.spanCache != nil {
		if closeErr := s.spanCache.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
