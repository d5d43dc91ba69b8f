package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studio_gallery_server/config"
	"studio_gallery_server/internal/handlers"
	"studio_gallery_server/internal/middleware"
	"studio_gallery_server/internal/repository"
	"studio_gallery_server/internal/services"
	"studio_gallery_server/pkg/cache"
	"studio_gallery_server/pkg/database"
	"studio_gallery_server/pkg/metrics"
	"studio_gallery_server/pkg/notify"
	"studio_gallery_server/pkg/storage"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type routeHandlers struct {
	health   *handlers.HealthHandler
	projects *handlers.ProjectHandler
	delivery *handlers.DeliveryHandler
	gallery  *handlers.GalleryHandler
}

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Setup logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
	if cfg.GinMode == gin.DebugMode {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	// Initialize database
	if err := database.ConnectDB(cfg); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB()

	// Run database migrations
	if err := database.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to run database migrations: %v", err)
	}

	// Redis backs the password throttle and view dedupe. Without it both are
	// disabled rather than failing requests.
	var throttle services.AttemptThrottle
	var views services.ViewDeduper
	redisDep := handlers.Dependency{Name: "redis"}
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warnf("Failed to connect to Redis: %v", err)
	} else {
		throttle = cache.NewAttemptThrottle(cache.RedisClient, cfg.PasswordMaxAttempts, cfg.PasswordLockoutBase)
		views = cache.NewViewDeduper(cache.RedisClient)
		redisDep.Ping = func(ctx context.Context) error { return cache.RedisClient.Ping(ctx).Err() }
	}
	defer cache.CloseRedis()

	// Without MinIO photos are listed but no URLs are issued
	var signer services.URLSigner
	minioDep := handlers.Dependency{Name: "minio"}
	if err := storage.ConnectMinIO(cfg); err != nil {
		logger.Warnf("Failed to connect to MinIO: %v", err)
	} else {
		signer = storage.NewPresigner(storage.MinIOClient, cfg.MinIOBucketName, cfg.MinIOPresignExpiry)
		minioDep.Ping = func(ctx context.Context) error {
			_, err := storage.MinIOClient.BucketExists(ctx, cfg.MinIOBucketName)
			return err
		}
	}

	var outbound services.Notifier = notify.NewLogNotifier(logger)
	if cfg.NotifyWebhookURL != "" {
		outbound = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyMaxAttempts, logger)
	}
	// Requests only queue intents; webhook retries run on the dispatcher
	notifier := notify.NewDispatcher(outbound, cfg.NotifyQueueSize, logger)

	// Initialize services
	store := repository.NewGormStore(database.DB)
	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.GallerySessionSecret, cfg.GallerySessionTTL)
	lifecycleService := services.NewLifecycleService(store, store, store, notifier, cfg.PublicBaseURL, logger)
	accessService := services.NewAccessService(store, store, lifecycleService, jwtService, throttle, views, store, logger)
	selectionService := services.NewSelectionService(store, accessService, lifecycleService, store, notifier, cfg.AutoStartSelection, logger)
	galleryService := services.NewGalleryService(accessService, store, store, lifecycleService, signer, store, cfg.AutoStartSelection, logger)
	projectService := services.NewProjectService(store, lifecycleService, signer, logger)
	deliveryService := services.NewDeliveryService(store, lifecycleService, signer, logger)

	// Initialize handlers
	h := routeHandlers{
		health: handlers.NewHealthHandler(logger,
			handlers.Dependency{Name: "database", Required: true, Ping: database.Ping},
			redisDep,
			minioDep,
		),
		projects: handlers.NewProjectHandler(projectService, lifecycleService, selectionService, logger),
		delivery: handlers.NewDeliveryHandler(deliveryService, lifecycleService, logger),
		gallery:  handlers.NewGalleryHandler(accessService, galleryService, selectionService, logger),
	}

	limiter := middleware.NewRateLimiter(cfg.PublicRateLimitRPS, cfg.PublicRateLimitBurst, logger)
	stopCleanup := make(chan struct{})
	limiter.StartCleanup(10*time.Minute, stopCleanup)

	// Setup Gin router
	router := gin.New()

	// Add middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.PublicBaseURL))
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(metrics.GinMiddleware())

	// Setup routes
	setupRoutes(router, h, jwtService, limiter)

	// Create HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")
	close(stopCleanup)

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := notifier.Close(ctx); err != nil {
		logger.WithError(err).Warn("Dropped queued notifications on shutdown")
	}

	logger.Info("Server exited")
}

func setupRoutes(router *gin.Engine, h routeHandlers, jwtService *services.JWTService, limiter *middleware.RateLimiter) {
	// Health check routes
	router.GET("/health", h.health.HealthCheck)
	router.GET("/health/ready", h.health.ReadinessCheck)
	router.GET("/health/live", h.health.LivenessCheck)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Client facing gallery routes, addressed by share token
	gallery := router.Group("/api/v1/gallery/:token")
	gallery.Use(limiter.Handler())
	{
		gallery.GET("", h.gallery.GetGallery)
		gallery.POST("/auth", h.gallery.Authenticate)
		gallery.POST("/view", h.gallery.RecordView)
		gallery.POST("/selections", h.gallery.AddSelection)
		gallery.DELETE("/selections/:photoId", h.gallery.RemoveSelection)
		gallery.POST("/selections/:photoId/toggle", h.gallery.ToggleSelection)
		gallery.GET("/quote", h.gallery.GetQuote)
		gallery.POST("/submit", h.gallery.Submit)
		gallery.GET("/photos/:photoId/download", h.gallery.DownloadPhoto)
	}

	delivery := router.Group("/api/v1/delivery/:token")
	delivery.Use(limiter.Handler())
	{
		delivery.GET("", h.gallery.GetDelivery)
		delivery.POST("/auth", h.gallery.AuthenticateDelivery)
		delivery.GET("/photos/:photoId/download", h.gallery.DownloadDeliveryPhoto)
	}

	// Studio owner routes (authentication required)
	protected := router.Group("/api/v1")
	protected.Use(middleware.AuthMiddleware(jwtService))
	{
		projects := protected.Group("/projects")
		{
			projects.POST("", h.projects.CreateProject)
			projects.GET("", h.projects.ListProjects)
			projects.GET("/:id", h.projects.GetProject)
			projects.DELETE("/:id", h.projects.DeleteProject)
			projects.DELETE("/:id/permanent", h.projects.PurgeProject)
			projects.PUT("/:id/billing", h.projects.UpdateBilling)
			projects.PUT("/:id/sharing", h.projects.UpdateSharing)
			projects.POST("/:id/share-token", h.projects.RotateShareToken)
			projects.POST("/:id/photos", h.projects.AddPhoto)
			projects.GET("/:id/photos", h.projects.ListPhotos)
			projects.GET("/:id/selections", h.projects.ListSelections)
			projects.GET("/:id/quote", h.projects.GetQuote)
			projects.POST("/:id/send", h.projects.SendProject)
			projects.POST("/:id/start-selection", h.projects.StartSelection)
			projects.POST("/:id/finalize", h.projects.FinalizeProject)
			projects.POST("/:id/archive", h.projects.ArchiveProject)
			projects.POST("/:id/restore", h.projects.RestoreProject)
		}

		deliveries := protected.Group("/deliveries")
		{
			deliveries.POST("", h.delivery.CreateDelivery)
			deliveries.GET("", h.delivery.ListDeliveries)
			deliveries.GET("/:id", h.delivery.GetDelivery)
			deliveries.DELETE("/:id", h.delivery.DeleteDelivery)
			deliveries.DELETE("/:id/permanent", h.delivery.PurgeDelivery)
			deliveries.PUT("/:id/sharing", h.delivery.UpdateSharing)
			deliveries.POST("/:id/photos", h.delivery.AddPhoto)
			deliveries.GET("/:id/photos", h.delivery.ListPhotos)
			deliveries.POST("/:id/send", h.delivery.SendDelivery)
			deliveries.POST("/:id/restore", h.delivery.RestoreDelivery)
		}
	}

	// Root route
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":   "Welcome to Studio Gallery Server",
			"version":   "1.0.0",
			"timestamp": time.Now().UTC(),
		})
	})
}
