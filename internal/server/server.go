package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/remask/remask/internal/config"
	"github.com/remask/remask/internal/events"
	"github.com/remask/remask/internal/logger"
	"github.com/remask/remask/internal/masking"
	"github.com/remask/remask/internal/metrics"
	"github.com/remask/remask/internal/sessions"
	"github.com/remask/remask/internal/store"
	"github.com/remask/remask/internal/web"
)

// Version is reported by the info endpoint. Release builds stamp it via
// ldflags; the default marks a source build.
var Version = "dev"

const statusInterval = 30 * time.Second

// Server ties the masking engine, pattern registry, and its backing
// services to the HTTP API.
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	registry *masking.Registry
	store    *store.Store              // nil when the pattern database is disabled
	sessions *sessions.SessionStore    // nil when session storage is disabled
	hub      *events.Hub
	limiter  *RateLimiter
	router   *mux.Router
	server   *http.Server
	proxy    http.Handler

	// masking is the live copy of the masking config section, swappable
	// by hot reload. Guarded by patternsMu together with the registry.
	masking    config.MaskingConfig
	patternsMu sync.RWMutex

	startedAt     time.Time
	done          chan struct{}
	totalRequests int64
	totalMasked   int64
}

// New creates a server from the given configuration, connecting the
// pattern store and session store when they are enabled.
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	s := &Server{
		config:    cfg,
		masking:   cfg.Masking,
		logger:    log.WithComponent("server"),
		registry:  masking.NewRegistry(),
		router:    mux.NewRouter(),
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	if cfg.Patterns.Database.Enabled {
		st, err := store.NewStore(&store.Config{
			DatabaseURL:     cfg.Patterns.Database.URL,
			MaxOpenConns:    cfg.Patterns.Database.MaxConnections,
			MaxIdleConns:    cfg.Patterns.Database.MaxIdle,
			ConnMaxLifetime: cfg.Patterns.Database.ConnMaxLifetime,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open pattern store: %w", err)
		}
		s.store = st
		if err := s.loadStoredPatterns(); err != nil {
			return nil, err
		}
	}

	if err := s.loadRulepacks(); err != nil {
		return nil, err
	}

	if cfg.Sessions.Enabled {
		ss, err := sessions.NewSessionStore(&sessions.Config{
			RedisURL:  cfg.Sessions.RedisURL,
			TTL:       cfg.Sessions.TTL,
			KeyPrefix: cfg.Sessions.KeyPrefix,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect session store: %w", err)
		}
		s.sessions = ss
	}

	s.hub = events.NewHub(hubConfig(cfg), log)
	s.limiter = NewRateLimiter(&cfg.RateLimit, log)

	if cfg.Proxy.Enabled {
		proxy, err := s.newProxy()
		if err != nil {
			return nil, err
		}
		s.proxy = proxy
	}

	s.setupRoutes()
	s.updatePatternGauges()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler()).Methods("GET")
	}

	// Dashboard endpoints
	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")

	if s.config.Events.Enabled {
		s.router.HandleFunc(s.config.Events.Path, s.handleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.bodyLimitMiddleware)

	api.HandleFunc("/detect", s.handleDetect).Methods("POST")
	api.HandleFunc("/mask", s.handleMask).Methods("POST")
	api.HandleFunc("/mask/restorable", s.handleMaskRestorable).Methods("POST")
	api.HandleFunc("/restore", s.handleRestore).Methods("POST")

	// The builtin route must precede the {id} routes so the literal path
	// segment wins.
	api.HandleFunc("/patterns/builtin", s.handleBuiltinPatterns).Methods("GET")
	api.HandleFunc("/patterns", s.handleListPatterns).Methods("GET")
	api.HandleFunc("/patterns", s.handleCreatePattern).Methods("POST")
	api.HandleFunc("/patterns/{id}", s.handleGetPattern).Methods("GET")
	api.HandleFunc("/patterns/{id}", s.handleUpdatePattern).Methods("PUT")
	api.HandleFunc("/patterns/{id}", s.handleDeletePattern).Methods("DELETE")
	api.HandleFunc("/patterns/{id}/toggle", s.handleTogglePattern).Methods("POST")

	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	// Proxy mode forwards everything the API does not claim.
	if s.proxy != nil {
		s.router.PathPrefix("/").Handler(s.loggingMiddleware(s.proxy))
	}
}

// Start starts the HTTP server and its background loops.
func (s *Server) Start() error {
	s.logger.Info("Starting remask server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("store", s.store != nil),
		zap.Bool("sessions", s.sessions != nil),
		zap.Bool("proxy", s.proxy != nil),
	)

	go s.hub.Run()
	s.limiter.StartCleanupRoutine()
	go s.statusLoop()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server and closes the backing services.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping remask server")
	close(s.done)

	err := s.server.Shutdown(ctx)

	if s.sessions != nil {
		if cerr := s.sessions.Close(); cerr != nil {
			s.logger.Warn("Failed to close session store", zap.Error(cerr))
		}
	}
	if s.store != nil {
		if cerr := s.store.Close(); cerr != nil {
			s.logger.Warn("Failed to close pattern store", zap.Error(cerr))
		}
	}
	return err
}

// UpdateMasking swaps the live masking section, used by config hot
// reload. Server and transport settings still require a restart.
func (s *Server) UpdateMasking(cfg config.MaskingConfig) {
	s.patternsMu.Lock()
	s.masking = cfg
	s.patternsMu.Unlock()

	s.updatePatternGauges()
	s.logger.Info("Masking configuration reloaded")
}

// loadStoredPatterns seeds the registry from the pattern database. Rows
// that no longer validate are skipped with a warning rather than failing
// startup.
func (s *Server) loadStoredPatterns() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stored, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored patterns: %w", err)
	}

	loaded := 0
	for _, cp := range stored {
		if err := s.registry.Add(cp); err != nil {
			s.logger.Warn("Skipping stored pattern",
				zap.String("pattern_id", cp.ID),
				zap.String("name", cp.Name),
				zap.Error(err))
			continue
		}
		loaded++
	}
	if loaded > 0 {
		s.logger.Info("Loaded stored custom patterns", zap.Int("count", loaded))
	}
	return nil
}

// loadRulepacks registers the YAML-declared pattern sets. Duplicates are
// skipped so packs that were persisted on an earlier boot reload cleanly
// from the store.
func (s *Server) loadRulepacks() error {
	if len(s.config.Patterns.Rulepacks) == 0 {
		return nil
	}

	specs, err := config.LoadRulepacks(s.config.Patterns.Rulepacks)
	if err != nil {
		return fmt.Errorf("failed to load rulepacks: %w", err)
	}

	added := 0
	for _, spec := range specs {
		cp, err := s.registry.Register(spec)
		if err != nil {
			if errors.Is(err, masking.ErrDuplicatePattern) {
				continue
			}
			return fmt.Errorf("invalid rulepack pattern %q: %w", spec.Name, err)
		}
		if s.store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			serr := s.store.Save(ctx, &cp)
			cancel()
			if serr != nil {
				s.logger.Warn("Failed to persist rulepack pattern",
					zap.String("name", cp.Name), zap.Error(serr))
			}
		}
		added++
	}
	if added > 0 {
		s.logger.Info("Registered rulepack patterns", zap.Int("count", added))
	}
	return nil
}

// statusLoop periodically broadcasts a health snapshot to event stream
// clients and refreshes the connection gauge.
func (s *Server) statusLoop() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.broadcastStatus()
		}
	}
}

func (s *Server) broadcastStatus() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	hubStats := s.hub.GetStats()
	metrics.ConnectedClients.Set(float64(hubStats.ActiveConnections))

	s.hub.Broadcast(events.Event{
		Type:      events.EventTypeSystemStatus,
		Timestamp: time.Now(),
		Data: events.SystemStatusEvent{
			Status:           "healthy",
			Uptime:           time.Since(s.startedAt).Round(time.Second).String(),
			TotalRequests:    atomic.LoadInt64(&s.totalRequests),
			TotalMasked:      atomic.LoadInt64(&s.totalMasked),
			ActiveRules:      len(masking.ActivePatterns(s.baseConfig())),
			ConnectedClients: int(hubStats.ActiveConnections),
			MemoryUsage:      fmt.Sprintf("%.1f MB", float64(mem.Alloc)/(1<<20)),
		},
	})
}

func hubConfig(cfg *config.Config) *events.HubConfig {
	return &events.HubConfig{
		BroadcastMasking:     cfg.Events.Broadcast.Masking,
		BroadcastPatterns:    cfg.Events.Broadcast.Patterns,
		BroadcastSystem:      cfg.Events.Broadcast.System,
		BroadcastConnections: cfg.Events.Broadcast.Connections,
		AuthEnabled:          cfg.Events.Auth.Enabled,
		AuthUsername:         cfg.Events.Auth.Username,
		AuthPassword:         cfg.Events.Auth.Password,
		AllowedOrigins:       cfg.Events.AllowedOrigins,
		MaxConnections:       cfg.Events.MaxConnections,
		ReadBufferSize:       cfg.Events.ReadBufferSize,
		WriteBufferSize:      cfg.Events.WriteBufferSize,
		PingInterval:         cfg.Events.PingInterval,
		PongTimeout:          cfg.Events.PongTimeout,
		WriteTimeout:         cfg.Events.WriteTimeout,
		MaxMessageSize:       cfg.Events.MaxMessageSize,
	}
}
