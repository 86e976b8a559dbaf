package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/trail-engine/internal/config"
	"github.com/jwebster45206/trail-engine/internal/handlers"
	"github.com/jwebster45206/trail-engine/internal/logger"
	"github.com/jwebster45206/trail-engine/internal/middleware"
	"github.com/jwebster45206/trail-engine/internal/services"
	"github.com/jwebster45206/trail-engine/internal/turn"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg)

	log.Info("Starting Trail Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"model", cfg.Model,
		"model_candidates", cfg.ModelCandidates(),
		"repair_model", cfg.RepairModel)

	if cfg.APIKey == "" {
		log.Warn("OPENROUTER_API_KEY is not set; turn requests will be rejected")
	}

	llmService := services.NewOpenRouterService(
		cfg.APIKey,
		"", // production base URL
		cfg.SiteURL,
		cfg.SiteName,
		cfg.Temperature,
		cfg.MaxTokens,
		cfg.UpstreamTimeout,
		log,
	)
	resolver := turn.NewResolver(llmService, cfg, log)

	mux := http.NewServeMux()
	mux.Handle("/health", handlers.NewHealthHandler(cfg, log))
	mux.Handle("/turn", handlers.NewTurnHandler(resolver, cfg, log))

	handler := middleware.Logger(mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset so the SSE stream can outlive slow turns;
		// the upstream client carries its own timeout.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}
