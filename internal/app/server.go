// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rgavrysh/renovator-app-sub001/internal/config"
	"github.com/rgavrysh/renovator-app-sub001/internal/db"
	authHandler "github.com/rgavrysh/renovator-app-sub001/internal/handlers/auth"
	wsHandler "github.com/rgavrysh/renovator-app-sub001/internal/handlers/ws"
	"github.com/rgavrysh/renovator-app-sub001/internal/metrics"
	"github.com/rgavrysh/renovator-app-sub001/internal/middleware"
	"github.com/rgavrysh/renovator-app-sub001/internal/pkg/ratelimit"
	"github.com/rgavrysh/renovator-app-sub001/internal/pkg/state"
	"github.com/rgavrysh/renovator-app-sub001/internal/repository/postgres"
	authUsecase "github.com/rgavrysh/renovator-app-sub001/internal/service/auth"
	tokenService "github.com/rgavrysh/renovator-app-sub001/internal/service/token"
	"github.com/rgavrysh/renovator-app-sub001/internal/ws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start(ctx context.Context) error {
	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisCfg := db.RedisConfig{
		ClusterMode: false,
		Addresses:   []string{s.cfg.RedisAddr},
		Password:    s.cfg.RedisPass,
		DB:          0,
		PoolSize:    10,
	}

	redisClient, err := db.NewRedisClient(redisCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Println("[REDIS] ✅ Connected successfully")

	// ----- Logger -----
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	s.logger = logger

	// ----- Metrics -----
	m := metrics.New()

	// ----- Token service -----
	tokens, err := tokenService.NewService(ctx, s.cfg.OAuth, logger)
	if err != nil {
		return fmt.Errorf("failed to build token service: %w", err)
	}

	// ----- Repositories -----
	sessionRepo := postgres.NewSessionRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	// ----- State store & rate limiter -----
	stateStore := state.NewStore(redisClient, s.cfg.LoginStateTTL)
	rateLimiter := ratelimit.NewRateLimiter(redisClient)

	// ----- WebSocket hub -----
	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	// ----- Services (Usecases) -----
	authService := authUsecase.NewAuthService(
		tokens,
		sessionRepo,
		userRepo,
		stateStore,
		rateLimiter,
		hub,
		m,
		logger,
	)

	// ----- Session sweeper -----
	go s.runSessionSweeper(ctx, authService)

	// ----- Handlers -----
	authHandlerInst := authHandler.NewAuthHandler(authService, logger)
	wsHandlerInst := wsHandler.NewWSHandler(hub, authService, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(authService)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(s.cfg.AllowedOrigins),
	)

	// ----- Router -----
	handlers := &Handlers{
		AuthHandler:    authHandlerInst,
		WSHandler:      wsHandlerInst,
		AuthMiddleware: authMiddleware,
		Metrics:        m,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("🚀 Server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}

// runSessionSweeper reaps expired sessions off the request path.
func (s *Server) runSessionSweeper(ctx context.Context, authService *authUsecase.AuthService) {
	ticker := time.NewTicker(s.cfg.SessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if _, err := authService.SweepExpiredSessions(sweepCtx); err != nil {
				s.logger.Error("session sweep failed", zap.Error(err))
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}
