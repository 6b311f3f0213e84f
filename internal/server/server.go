package server

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/scholarmark/scholarmark-api/internal/admission"
	"github.com/scholarmark/scholarmark-api/internal/config"
	"github.com/scholarmark/scholarmark-api/internal/handler"
	"github.com/scholarmark/scholarmark-api/internal/middleware"
	"github.com/scholarmark/scholarmark-api/internal/repository"
	"github.com/scholarmark/scholarmark-api/internal/service"
	"github.com/scholarmark/scholarmark-api/internal/storage"
)

type Server struct {
	router              *gin.Engine
	config              *config.Config
	redis               *storage.RedisClient
	postgres            *storage.Postgres
	controller          *admission.Controller
	usageSink           *service.DurableUsageSink
	authService         *service.AuthService
	accountService      *service.AccountService
	authHandler         *handler.AuthHandler
	subscriptionHandler *handler.SubscriptionHandler
	aiHandler           *handler.AIHandler
	httpServer          *http.Server
	stopCleanup         chan struct{}
}

// Usage records are kept for long-term analytics but not forever
const usageRetentionDays = 90

func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Repositories
	userRepo := repository.NewUserRepository(postgres)
	usageRepo := repository.NewUsageRecordRepository(postgres)

	// Services
	authService := service.NewAuthService(userRepo, cfg.Server.JWTSecret, cfg.Server.JWTExpiryH)
	accountService := service.NewAccountService(userRepo, redis)
	usageSink := service.NewDurableUsageSink(usageRepo, 1000)
	aiService := service.NewAIService(cfg.OpenAI)

	// Admission controller over the configured rolling window
	window := time.Duration(cfg.Admission.WindowSeconds) * time.Second
	controller := admission.NewController(window, usageSink)

	subscriptionService := service.NewSubscriptionService(userRepo, usageRepo, accountService)

	s := &Server{
		router:              router,
		config:              cfg,
		redis:               redis,
		postgres:            postgres,
		controller:          controller,
		usageSink:           usageSink,
		authService:         authService,
		accountService:      accountService,
		authHandler:         handler.NewAuthHandler(authService),
		subscriptionHandler: handler.NewSubscriptionHandler(subscriptionService, controller),
		aiHandler:           handler.NewAIHandler(aiService),
		stopCleanup:         make(chan struct{}),
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.startCleanupWorker(subscriptionService)

	return s
}

// Prunes old usage records once a day
func (s *Server) startCleanupWorker(subscriptions *service.SubscriptionService) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deleted, err := subscriptions.CleanupOldRecords(context.Background(), usageRetentionDays)
				if err != nil {
					log.Printf("Usage record cleanup failed: %v", err)
					continue
				}
				if deleted > 0 {
					log.Printf("Deleted %d usage records older than %d days", deleted, usageRetentionDays)
				}
			case <-s.stopCleanup:
				return
			}
		}
	}()
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")

	auth := v1.Group("/auth")
	{
		auth.POST("/register", s.authHandler.Register)
		auth.POST("/login", s.authHandler.Login)
	}

	// Public plan comparison
	v1.GET("/subscription/tiers", s.subscriptionHandler.GetTiers)

	authed := v1.Group("")
	authed.Use(middleware.Auth(s.authService, s.accountService))

	subscription := authed.Group("/subscription")
	{
		subscription.GET("/info", s.subscriptionHandler.GetInfo)
		subscription.PUT("/update", s.subscriptionHandler.Update)
		subscription.GET("/usage", s.subscriptionHandler.GetUsage)
		subscription.GET("/usage/records", s.subscriptionHandler.GetUsageRecords)
		subscription.GET("/upgrades", s.subscriptionHandler.GetUpgrades)
		subscription.GET("/features", s.subscriptionHandler.GetFeatures)
	}

	ai := authed.Group("/ai")
	ai.GET("/rate-limit-info", s.subscriptionHandler.GetRateLimitInfo)

	// One gated, charged route per AI operation
	for _, operation := range s.aiHandler.Operations() {
		op := operation
		path := "/" + strings.ReplaceAll(op, "_", "-")
		ai.POST(path, middleware.Admit(s.controller, op), s.aiHandler.Operation(op))
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	redisHealthy := true

	if err := s.redis.Ping(c.Request.Context()); err != nil {
		redisHealthy = false
		log.Printf("Redis health check failed: %v", err)
	}

	dbHealthy := true
	if err := s.postgres.Ping(c.Request.Context()); err != nil {
		dbHealthy = false
		log.Printf("Database health check failed: %v", err)
	}

	status := "healthy"
	statusCode := http.StatusOK

	if !redisHealthy || !dbHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "scholarmark-api",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"redis":    redisHealthy,
			"database": dbHealthy,
		},
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	log.Printf("Starting Scholarmark API on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")

	close(s.stopCleanup)
	s.usageSink.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
