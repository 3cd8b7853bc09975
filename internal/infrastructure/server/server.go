package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AgentOS/userscripts/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/bridge"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/dispatch"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/installer"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/resources"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/seeder"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/store"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/persistence"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/providers/fetch"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/providers/sandbox"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	kv      persistence.KV
	store   *store.Store
	seeder  *seeder.Seeder
	bridge  *bridge.Bridge
	pool    *sandbox.Pool
	hub     *ws.Hub
	tracer  *tracing.Tracer
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance and restores persisted state
func NewServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Server, error) {
	logger = logging.OrNop(logger)
	logger.Info("Initializing userscript manager",
		zap.String("port", cfg.Server.Port),
		zap.String("database", cfg.Storage.DatabasePath),
		zap.String("scripts_dir", cfg.Storage.ScriptsDir),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("userscripts", logger)

	kv, err := openKV(cfg, logger)
	if err != nil {
		tracer.Close()
		return nil, err
	}

	st := store.New(logger)
	persister := store.NewPersister(kv)
	report, err := persister.Load(ctx, st)
	if err != nil {
		kv.Close()
		tracer.Close()
		return nil, fmt.Errorf("failed to restore scripts: %w", err)
	}
	if report.Restored > 0 || report.Skipped > 0 {
		logger.Info("Restored scripts", zap.Int("restored", report.Restored), zap.Int("skipped", report.Skipped))
	}
	for _, e := range report.Errors {
		logger.Warn("Skipped stored script", zap.Error(e))
	}

	cache := resources.NewCache(kv)
	client := fetch.NewClient(fetch.Config{
		Timeout:           cfg.Fetch.Timeout.Std(),
		UserAgent:         cfg.Fetch.UserAgent,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		MaxBodyBytes:      cfg.Fetch.MaxBodyBytes,
	}, metrics, logger)

	hub := ws.NewHub(metrics, logger)
	br := bridge.New(kv, cache,
		bridge.WithRequester(client),
		bridge.WithHost(hub),
		bridge.WithRecorder(metrics),
		bridge.WithLogger(logger),
	)

	inst := installer.New(st, cache, client,
		installer.WithPersister(persister),
		installer.WithRecorder(metrics),
		installer.WithLogger(logger),
		installer.WithRemoveHook(func(ctx context.Context, sc *types.Script) {
			if err := br.ClearValues(ctx, sc.ID); err != nil {
				logger.Warn("Failed to clear script values", zap.String("script_id", sc.ID), zap.Error(err))
			}
		}),
	)

	dispatcher := dispatch.New(st, cache, metrics, logger)

	pool, err := sandbox.NewPool(sandbox.Config{
		Timeout:       cfg.Sandbox.Timeout.Std(),
		MaxCallStack:  sandbox.DefaultConfig().MaxCallStack,
		EnableConsole: true,
	}, cfg.Sandbox.PoolSize)
	if err != nil {
		kv.Close()
		tracer.Close()
		return nil, fmt.Errorf("failed to create sandbox pool: %w", err)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(apihttp.Deps{
		Store:      st,
		Installer:  inst,
		Dispatcher: dispatcher,
		Executor:   sandbox.NewExecutor(pool, br, logger),
		Listener:   hub,
		Metrics:    metrics,
		Logger:     logger,
	})
	handlers.Register(router)
	router.GET("/stream", hub.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", func(c *gin.Context) {
		c.JSON(http.StatusOK, metrics.Snapshot())
	})
	router.GET("/metrics/breakers", func(c *gin.Context) {
		states := client.BreakerStates()
		out := make(map[string]string, len(states))
		for name, s := range states {
			out[name] = s.String()
		}
		c.JSON(http.StatusOK, out)
	})

	metrics.SetScripts(st.Len(), len(st.ListEnabled()))
	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		kv:      kv,
		store:   st,
		seeder:  seeder.New(inst, cfg.Storage.ScriptsDir, logger),
		bridge:  br,
		pool:    pool,
		hub:     hub,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

func openKV(cfg *config.Config, logger *logging.Logger) (persistence.KV, error) {
	if cfg.Storage.DatabasePath == "" {
		logger.Info("Using in-memory storage")
		return persistence.NewMemory(), nil
	}
	db, err := persistence.OpenSQLite(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// Router returns the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Seed installs the scripts found in the scripts directory
func (s *Server) Seed(ctx context.Context) (seeder.Report, error) {
	if s.config.Storage.ScriptsDir == "" {
		return seeder.Report{}, nil
	}
	report, err := s.seeder.Seed(ctx)
	s.metrics.SetScripts(s.store.Len(), len(s.store.ListEnabled()))
	return report, err
}

// Run serves HTTP until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.Close()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases resources. In-flight cross-origin requests are awaited
// before storage closes.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	s.hub.Close()
	s.pool.Close()
	s.bridge.Wait()
	s.tracer.Close()

	if err := s.kv.Close(); err != nil {
		s.logger.Error("Failed to close storage", zap.Error(err))
		return fmt.Errorf("failed to close storage: %w", err)
	}

	_ = s.logger.Sync()
	return nil
}
