// main.go
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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Marga-Ghale/hdss-admin-backend/internal/api/handlers"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/api/middleware"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/config"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/cron"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/db"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/email"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/identity"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/logger"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/repository"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/service"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/socket"
)

func main() {
	// ============================================
	// Load environment variables
	// ============================================
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	appLogger, err := logger.New(cfg.LogLevel, cfg.LogFormat, "hdss-admin-backend")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer appLogger.Sync()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// ============================================
	// Run Database Migrations FIRST
	// ============================================
	if err := db.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, appLogger); err != nil {
		appLogger.Fatal("migration failed", zap.Error(err))
	}

	// ============================================
	// Initialize PostgreSQL
	// ============================================
	pg, err := db.NewPostgresDB(cfg.DatabaseURL, appLogger)
	if err != nil {
		appLogger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pg.Close()

	repos := repository.NewRepositories(pg.DB)

	// ============================================
	// Initialize Redis (optional)
	// ============================================
	var redisDB *db.RedisDB
	var locker service.Locker
	if cfg.RedisURL != "" {
		redisDB, err = db.NewRedisDB(cfg.RedisURL, appLogger)
		if err != nil {
			appLogger.Warn("failed to connect to Redis, approval locks are process local", zap.Error(err))
			redisDB = nil
		} else {
			defer redisDB.Close()
			locker = service.NewRedisLocker(redisDB)
		}
	}

	// ============================================
	// Initialize Email
	// ============================================
	emailSvc := email.NewService(&email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		UseTLS:   cfg.SMTPUseTLS,
		Timeout:  cfg.SMTPTimeout,
	}, appLogger)
	if !emailSvc.Enabled() {
		appLogger.Warn("email not configured (SMTP_HOST not set), notifications will be skipped")
	}
	notifier := email.NewNotifier(emailSvc, cfg.FrontendURL+"/login", appLogger)

	// ============================================
	// Initialize WebSocket Hub
	// ============================================
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	hub := socket.NewHub(appLogger)
	go hub.Run(ctx)
	broadcaster := socket.NewBroadcaster(hub)

	// ============================================
	// Initialize All Services
	// ============================================
	services := service.NewServices(&service.ServiceDeps{
		Config:   cfg,
		Repos:    repos,
		Identity: identity.NewClient(cfg.IdentityURL, cfg.IdentityServiceKey, appLogger),
		Notifier: notifier,
		Locker:   locker,
		Events:   broadcaster,
		Logger:   appLogger,
	})

	h := handlers.NewHandlers(services, cfg.ReviewerID, appLogger)
	wsHandler := socket.NewHandler(hub, services.Auth, []string{cfg.FrontendURL}, appLogger)

	// ============================================
	// Initialize Cron Scheduler
	// ============================================
	scheduler := cron.NewScheduler(services.Recovery, cfg.SagaStaleAfter, appLogger)
	if err := scheduler.Start(); err != nil {
		appLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	// ============================================
	// Create Gin Router
	// ============================================
	r := gin.New()
	r.Use(middleware.RequestLogger(appLogger), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		dbStatus := "connected"
		if err := pg.Ping(c.Request.Context()); err != nil {
			dbStatus = "unreachable"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"timestamp":  time.Now(),
			"database":   dbStatus,
			"locks":      getLockStatus(redisDB),
			"ws_clients": hub.GetConnectedClientsCount(),
			"email":      getEmailStatus(emailSvc),
		})
	})

	api := r.Group("/api")
	{
		// Public: applicants submit requests without an account.
		api.POST("/account-requests", h.AccountRequest.Submit)

		api.GET("/ws", wsHandler.HandleWebSocket)

		admin := api.Group("/admin")
		admin.Use(middleware.AuthMiddleware(services.Auth, appLogger))
		{
			requests := admin.Group("/account-requests")
			{
				requests.GET("", h.AccountRequest.List)
				requests.GET("/:id", h.AccountRequest.Get)
				requests.POST("/:id/approve", h.AccountRequest.Approve)
				requests.POST("/:id/reject", h.AccountRequest.Reject)
			}

			admin.POST("/passwords", h.Password.Generate)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("server forced to shutdown", zap.Error(err))
	}
	stop()

	appLogger.Info("server exited")
}

func getLockStatus(redisDB *db.RedisDB) string {
	if redisDB != nil {
		return "redis"
	}
	return "local"
}

func getEmailStatus(emailSvc *email.Service) string {
	if emailSvc.Enabled() {
		return "configured"
	}
	return "disabled"
}
