package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/app"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/config"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/logging"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/metrics"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/middleware"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/platform"
)

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize")
	}
	defer a.Close()

	status := a.CheckTools(ctx)
	if missing := status.Missing(); len(missing) > 0 {
		logger.WithField("missing", missing).Warn("Required tools not found")
	}

	if cfg.Server.AuthSecret != "" {
		logger.Info("Token authentication enabled")
	}

	api := &API{
		session:  a.Session,
		tools:    a,
		settings: a.Settings,
		reveal:   platform.RevealFile,
		logger:   logger,
	}
	if a.Storage != nil {
		api.archive = a.Storage
	}

	limiter := middleware.NewRateLimiter(cfg.Server.AnalyzeRPS, cfg.Server.AnalyzeBurst)
	go limiter.Cleanup(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := setupRouter(api, limiter, cfg.Server.AuthSecret, logger)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Server.Host, cfg.Metrics.Port, logger)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Loopback only; the UI is the sole client.
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	go func() {
		logger.WithField("addr", addr).Info("Starting control API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Metrics server forced to shutdown")
		}
	}

	logger.Info("Server stopped")
}

// loadConfig reads CONFIG_PATH strictly when set, otherwise config.yaml
// if present.
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return config.Load(path)
	}
	return config.LoadOrDefault("config.yaml")
}

func setupRouter(api *API, limiter *middleware.RateLimiter, authSecret string, logger *logging.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(logger))

	// Health check
	router.GET("/health", api.healthCheck)

	// API routes
	v1 := router.Group("/api/v1", middleware.TokenAuth(authSecret))
	{
		v1.GET("/tools", api.checkTools)
		v1.GET("/output-dir", api.getOutputDir)
		v1.PUT("/output-dir", api.setOutputDir)

		// Session
		v1.POST("/analyze", middleware.RateLimit(limiter), api.analyze)
		v1.POST("/session/select", api.selectFormat)
		v1.GET("/session", api.getSession)
		v1.DELETE("/session", api.resetSession)

		// Downloads
		v1.POST("/downloads", api.startDownload)
		v1.GET("/downloads/events", api.downloadEvents)
		v1.POST("/reveal", api.revealFile)
		v1.GET("/archive", api.listArchive)

		// Appearance
		v1.GET("/settings", api.getSettings)
		v1.PUT("/settings", api.saveSettings)
	}

	return router
}
