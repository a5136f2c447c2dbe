package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/services"
	httphandlers "huddle/internal/handlers/http"
	"huddle/internal/infrastructure/middleware"
	"huddle/internal/infrastructure/monitoring"
	repositories "huddle/internal/infrastructure/repositories"
	signalinfra "huddle/internal/infrastructure/signal"
	"huddle/pkg/config"
	"huddle/pkg/logger"
	"huddle/pkg/retry"
	"huddle/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/huddle/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "huddle-signal",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize repositories
	repos, err := repositories.New(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repositories", "error", err)
	}
	defer repos.Close()

	// Initialize services
	timingService := services.NewTimingService(repos.Timeline, retry.DefaultConfig(), log)
	roomService := services.NewRoomService(repos.Participants, repos.Bans, timingService, log)
	hostService := services.NewHostService(roomService, repos.Bans, log)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.JoinTokenTTL)

	// Initialize monitoring
	metrics := monitoring.NewCollector()

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddProbe("store", func(ctx context.Context) error {
		_, err := repos.Participants.FindActive(ctx, domain.SessionID("healthcheck"))
		return err
	}, 15*time.Second, 5*time.Second)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	healthChecker.Start(rootCtx)

	// Initialize WebSocket server
	wsServer := signalinfra.NewWebSocketServer(roomService, hostService, authService, metrics, signalinfra.Options{
		PingInterval:      cfg.Signal.PingInterval,
		PongTimeout:       cfg.Signal.PongTimeout,
		WriteTimeout:      cfg.Signal.WriteTimeout,
		MaxMessageBytes:   cfg.Signal.MaxMessageBytes,
		ReactionWindow:    cfg.Reactions.DisplayWindow,
		RateLimitEnabled:  cfg.RateLimiting.Enabled,
		MessagesPerSecond: cfg.RateLimiting.WebSocket.MessagesPerSecond,
		Burst:             cfg.RateLimiting.WebSocket.Burst,
	}, log)

	signalMux := http.NewServeMux()
	signalMux.HandleFunc("/ws", wsServer.HandleWebSocket)
	signalMux.HandleFunc("/health", wsServer.HealthCheck)

	signalServer := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: signalMux,
	}

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.RequestLoggerMiddleware(zapLogger))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	sessionHandler := httphandlers.NewSessionHandler(roomService, authService, healthChecker)
	sessionHandler.SetupRoutes(router)

	apiServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Prometheus endpoint on its own port
	var metricsServer *http.Server
	if cfg.Monitoring.PrometheusEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
			Handler: metricsMux,
		}
		go func() {
			log.Infow("starting metrics server", "address", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("metrics server error", "error", err)
			}
		}()
	}

	go func() {
		log.Infow("starting signaling server", "address", cfg.Signal.Address)
		if err := signalServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("signaling server error", "error", err)
		}
	}()

	go func() {
		log.Infow("starting api server", "address", cfg.Server.Address)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("api server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
	defer shutdownCancel()

	if err := signalServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("signaling server shutdown error", "error", err)
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("api server shutdown error", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Errorw("metrics server shutdown error", "error", err)
		}
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("tracer shutdown error", "error", err)
	}

	log.Infow("shutdown complete")
}
