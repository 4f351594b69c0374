package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/draftea/group-coordinator/group-service/config"
	"github.com/draftea/group-coordinator/group-service/handlers"
	"github.com/draftea/group-coordinator/shared/logging"
	"github.com/draftea/group-coordinator/shared/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	cfg, err := config.ReadConfig()
	if err != nil {
		logging.Setup("info", "text").Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat).With("service", cfg.ServiceName)
	logger.Info("Starting service", "env", cfg.Env, "port", cfg.Port, "nodes", cfg.Nodes,
		"compensation_queue", cfg.Compensation.Queue)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := config.BuildDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to build dependencies", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error("Error closing dependencies", "error", err)
		}
	}()

	// Start the compensation worker
	workerCtx := ctx
	if deps.Telemetry != nil {
		workerCtx = telemetry.WithTelemetry(ctx, deps.Telemetry)
	}
	if err := deps.CompensationConsumer.Subscribe(workerCtx, deps.GroupEventHandlers); err != nil {
		logger.Error("Failed to start compensation worker", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: setupRouter(deps),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Stopped")
}

func setupRouter(deps *config.Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	// a saga run waits out node retries, keep this above the worst case
	r.Use(middleware.Timeout(120 * time.Second))

	if deps.Telemetry != nil {
		r.Use(telemetry.Middleware(deps.Telemetry))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Handle("/metrics", handlers.NewMetricsHandler())

	deps.GroupHandlers.RegisterRoutes(r)

	return r
}
