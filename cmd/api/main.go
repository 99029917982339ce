package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "commission-service/api/swagger" // swagger docs
	"commission-service/internal/config"
	"commission-service/internal/database"
	"commission-service/internal/handler"
	"commission-service/internal/middleware"
	"commission-service/internal/observability"
	"commission-service/internal/repository"
	"commission-service/internal/service"
	"commission-service/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Commission Engine API
// @version         1.0
// @description     Resolves commission rules, calculates commissions from revenue events and tracks their approval lifecycle.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/.env")
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	middleware.SetJWTSecret(cfg.JWTSecret)
	gin.SetMode(cfg.GinMode)

	db, err := database.NewConnection(cfg.DSN(), cfg.AutoMigrate, logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	logger.Info("connected to PostgreSQL", zap.String("host", cfg.DBHost), zap.String("database", cfg.DBName))

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(logger.Named("ws"))
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go wsHub.Run(hubCtx)

	// Set up dependencies (Repository -> Service -> Handler)
	ruleRepo := repository.NewRuleRepository(db)
	commissionRepo := repository.NewCommissionRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)
	metrics := observability.NewMetrics(nil)

	auditService := service.NewAuditService(service.AuditServiceDeps{
		Repository: auditRepo,
		Logger:     logger.Named("audit"),
		Metrics:    metrics,
	})
	ruleService := service.NewRuleService(service.RuleServiceDeps{
		Rules:       ruleRepo,
		Commissions: commissionRepo,
		Tx:          txManager,
		Audit:       auditService,
		Logger:      logger.Named("rules"),
	})
	commissionService := service.NewCommissionService(service.CommissionServiceDeps{
		Commissions: commissionRepo,
		Resolver:    service.NewRuleResolver(ruleRepo),
		Tx:          txManager,
		Audit:       auditService,
		Notifier:    wsHub,
		Logger:      logger.Named("commissions"),
		Metrics:     metrics,
	})

	// Initialize Handlers
	ruleHandler := handler.NewRuleHandler(ruleService, commissionService)
	commissionHandler := handler.NewCommissionHandler(commissionService)
	auditHandler := handler.NewAuditHandler(auditService)

	// Set up Gin Router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger.Named("http")))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Request-ID"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret(), "admin", "manager", "staff")
	})

	// API Routing
	ruleHandler.RegisterRoutes(router.Group(""))
	commissionHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	// hijacked websocket connections are not tracked by srv.Shutdown
	stopHub()
	select {
	case <-wsHub.Done():
	case <-shutdownCtx.Done():
		logger.Warn("websocket hub did not stop in time")
	}
}
