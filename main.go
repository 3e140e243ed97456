package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bobfox23/Certificate-tool/config"
	"github.com/bobfox23/Certificate-tool/handler"
	"github.com/bobfox23/Certificate-tool/middleware"
	"github.com/bobfox23/Certificate-tool/pkg/logger"
	"github.com/bobfox23/Certificate-tool/service"
)

func main() {
	// Load configuration; fall back to defaults when no file is present
	cfg, err := config.Load("config.yaml")
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	// Initialize state and services
	service.InitCertificateStore(&cfg.Store)
	store := service.GetCertificateStore()

	var blobs service.BlobStore
	if cfg.Minio.Enabled {
		minioBlobs, err := service.NewMinioBlobStore(&cfg.Minio)
		if err != nil {
			slog.Error("failed to initialize MINIO blob store", "error", err)
			os.Exit(1)
		}
		if err := minioBlobs.EnsureBucket(context.Background()); err != nil {
			slog.Error("failed to ensure MINIO bucket", "error", err)
			os.Exit(1)
		}
		blobs = minioBlobs
	} else {
		blobs = service.NewMemoryBlobStore()
	}

	if cfg.Gemini.APIKey != "" {
		store.SetCredential(cfg.Gemini.APIKey)
	}

	geminiSvc := service.NewGeminiService(&cfg.Gemini)
	processor := service.NewBatchProcessor(store, blobs, geminiSvc, service.NewPDFTextExtractor())
	reconciler := service.NewReconciliationService(store, blobs)

	// Initialize handlers
	certHandler := handler.NewCertificateHandler(store, blobs, processor, &cfg.Upload)
	providerHandler := handler.NewProviderHandler(store)
	exportHandler := handler.NewExportHandler(reconciler)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware

	// Add custom middleware
	router.Use(middleware.RequestID())                 // Request ID for tracing
	router.Use(middleware.Recovery())                  // Panic recovery
	router.Use(middleware.RequestLogger())             // Access logging
	router.Use(corsMiddleware())                       // CORS
	router.Use(cacheMiddleware())                      // Cache control
	router.Use(middleware.RateLimit(100, time.Minute)) // Rate limiting: 100 requests per minute

	// Determine static files directory
	staticDir := "./"
	if _, err := os.Stat("./index.html"); os.IsNotExist(err) {
		staticDir = "../"
	}
	slog.Info("serving static files", "directory", staticDir)

	// Serve static files
	router.Static("/static", staticDir)
	router.StaticFile("/", staticDir+"index.html")
	router.StaticFile("/index.html", staticDir+"index.html")

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api")
	{
		api.POST("/certificates/upload", certHandler.Upload)
		api.GET("/certificates", certHandler.List)
		api.GET("/certificates/:id", certHandler.Get)
		api.POST("/certificates/process", certHandler.Process)
		api.DELETE("/certificates", certHandler.Clear)
		api.POST("/credential", certHandler.SetCredential)
		api.POST("/providers", providerHandler.Load)
		api.GET("/providers", providerHandler.Summary)
		api.GET("/export/archive", exportHandler.Archive)
		api.GET("/export/report", exportHandler.Report)
		api.GET("/export/workbook", exportHandler.Workbook)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Accept, Origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// cacheMiddleware sets cache control headers for static files
func cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		// Skip caching for API routes
		if strings.HasPrefix(path, "/api") {
			c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
			return
		}

		// Set cache headers for static files (1 hour)
		if strings.HasSuffix(path, ".js") ||
			strings.HasSuffix(path, ".css") ||
			strings.HasSuffix(path, ".html") ||
			path == "/" {
			c.Header("Cache-Control", "public, max-age=3600, must-revalidate")
		}

		c.Next()
	}
}
