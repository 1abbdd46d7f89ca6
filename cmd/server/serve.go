package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"onenight-backend/internal/config"
	"onenight-backend/internal/database"
	"onenight-backend/internal/handlers"
	"onenight-backend/internal/metrics"
	"onenight-backend/internal/middleware"
	"onenight-backend/internal/models"
	"onenight-backend/internal/repository"
	"onenight-backend/internal/router"
	"onenight-backend/internal/services"
	"onenight-backend/internal/session"
	"onenight-backend/internal/websocket"
	"onenight-backend/internal/worker"
)

const (
	// workspaceTokenTTL outlives the longest session a user can configure.
	workspaceTokenTTL = time.Duration(models.MaxDurationMinutes)*time.Minute + 12*time.Hour
	tickInterval      = time.Second

	workspaceCreatesPerMinute = 10
)

var migrationsDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server (default)",
	Long: `Run the HTTP API and websocket server.

Configuration comes from the environment or a .env file:
  PORT, ENV, GEMINI_API_KEY, GEMINI_MODEL, JWT_SECRET, FRONTEND_URL
  DATABASE_URL (optional, enables study history)
  REDIS_URL (optional, enables multi-instance event fan-out)`,
	RunE: runServe,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().StringVar(&migrationsDir, "migrations", "migrations", "directory of SQL migrations")
	}
}

func newPrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting study partner backend", zap.String("env", cfg.Env), zap.String("version", version))

	promRegistry := newPrometheusRegistry()
	m := metrics.New(promRegistry)

	model, closeModel, err := newLanguageModel(cfg, logger)
	if err != nil {
		return fmt.Errorf("gemini client initialization failed: %w", err)
	}
	defer closeModel()

	// Study history is optional. The interfaces stay nil without a database.
	var (
		runs    session.RunRecorder
		history *handlers.HistoryHandler
	)
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres connection failed: %w", err)
		}
		defer pool.Close()

		if err := database.RunMigrations(cmd.Context(), pool, migrationsDir, logger); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}

		runRepo := repository.NewStudyRunRepo(pool)
		runs = runRepo
		history = handlers.NewHistoryHandler(runRepo)
		logger.Info("postgres connected, study history enabled")
	} else {
		history = handlers.NewHistoryHandler(nil)
		logger.Info("DATABASE_URL not set, study history disabled")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisClient.Close()
		logger.Info("redis connected, events fan out over pub/sub")
	}

	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret, workspaceTokenTTL)
	wsHub := websocket.NewHub(redisClient, jwtAuth, logger)

	digestPool := worker.NewPool(services.NewDigestClient(model, m, logger), cfg.DigestWorkers, logger)
	digestPool.Start()

	registry := session.NewRegistry(func(id uuid.UUID) *session.Controller {
		return session.NewController(id, session.Dependencies{
			Digester:     digestPool,
			Conversation: services.NewConversationClient(model, m, logger),
			Events:       wsHub,
			Runs:         runs,
			Metrics:      m,
			Logger:       logger,
			TickInterval: tickInterval,
		})
	}, cfg.WorkspaceIdleTTL, m, logger)
	registry.Start()

	ingestor := services.NewMaterialIngestor(services.NewFileExtractService(), m, logger)
	maxUpload := int64(cfg.MaxUploadMB) << 20

	workspaceLimiter := middleware.NewRateLimiter(workspaceCreatesPerMinute, time.Minute)
	defer workspaceLimiter.Close()

	r := router.New(jwtAuth, workspaceLimiter, router.Handlers{
		Workspace: handlers.NewWorkspaceHandler(registry, jwtAuth),
		Session:   handlers.NewSessionHandler(registry),
		Config:    handlers.NewConfigHandler(registry),
		Material:  handlers.NewMaterialHandler(registry, ingestor, maxUpload),
		Chat:      handlers.NewChatHandler(registry),
		Map:       handlers.NewMapHandler(registry),
		History:   history,
	}, wsHub, promRegistry, cfg.FrontendURL, logger)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// Chat and quiz requests wait on the model.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server ready",
			zap.String("api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port)),
			zap.String("ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err, ok := <-errChan:
		if ok {
			registry.CloseAll()
			digestPool.Stop()
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	registry.CloseAll()
	digestPool.Stop()
	logger.Info("server stopped")
	return nil
}
