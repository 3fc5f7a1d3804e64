package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/copyleftdev/optplay/internal/config"
	"github.com/copyleftdev/optplay/internal/errors"
	"github.com/copyleftdev/optplay/internal/logging"
	"github.com/copyleftdev/optplay/internal/metrics"
	"github.com/copyleftdev/optplay/internal/playground"
	"github.com/copyleftdev/optplay/internal/server"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use standard logger as fallback if config loading fails
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize base logger
	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	serviceLogger := logger.WithFields(map[string]interface{}{
		"service": "optplay",
		"version": version,
	})
	ctx := (&logging.CtxLogger{Logger: serviceLogger}).WithContext(context.Background())

	// Run collectors go to the default registry next to the Go runtime ones
	runMetrics, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		serviceLogger.Fatal("Failed to register metrics", map[string]interface{}{"error": err.Error()})
	}

	// The engine logs through zap; route it into the service log stream
	engineLogger := logging.NewZapLogger(serviceLogger.WithField("component", "engine"))
	runner := playground.NewRunner(cfg.Optimization, engineLogger, runMetrics)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(serviceLogger))
	r.Use(errors.RecoveryMiddleware(serviceLogger))
	r.Use(errors.ErrorHandler(serviceLogger))
	r.Use(middleware.Timeout(cfg.HTTP.WriteTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).Debug("Health check")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	srv := server.NewServer(cfg, serviceLogger, runner)
	srv.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		serviceLogger.Info("Starting server", map[string]interface{}{
			"address": httpServer.Addr,
			"workers": cfg.Optimization.WorkerCount,
		})

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serviceLogger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	serviceLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		serviceLogger.Error("Server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}

	// Cancels queued and running optimizations and waits for them
	if err := srv.Close(); err != nil {
		serviceLogger.Error("error closing server resources", map[string]interface{}{"error": err.Error()})
	}
	_ = engineLogger.Sync()

	serviceLogger.Info("server exited properly")
}
