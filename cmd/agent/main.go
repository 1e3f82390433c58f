// Paywall agent - discovers providers advertising x402-protected resources,
// fetches them, and settles 402 payment challenges automatically.
// Designed for Cloud Run deployment with stateless operation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paywall-agent/internal/agent"
	"paywall-agent/internal/config"
	"paywall-agent/internal/discovery"
	"paywall-agent/internal/handler"
	"paywall-agent/internal/middleware"
	"paywall-agent/internal/paywall"
	"paywall-agent/internal/planner"
	"paywall-agent/internal/signer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("network", cfg.Signer.Network),
		slog.Any("discovery_urls", cfg.DiscoveryURLs),
		slog.Bool("llm_planner", cfg.Planner.APIKey != ""),
	)

	// Payment signer. An absent key is tolerated here so unpaid fetches
	// still work; signing reports a configuration error at run time.
	paymentSigner, err := signer.New(signer.Config{
		PrivateKey: cfg.Signer.PrivateKey,
		Network:    cfg.Signer.Network,
		ChainID:    cfg.Signer.ChainID,
		Asset:      cfg.Signer.Asset,
		AssetName:  cfg.Signer.AssetName,
		AssetVer:   cfg.Signer.AssetVer,
	})
	if err != nil {
		return fmt.Errorf("creating signer: %w", err)
	}

	// Planner: LLM when credentials are configured, deterministic otherwise
	targetPlanner, err := createPlanner(cfg)
	if err != nil {
		return fmt.Errorf("creating planner: %w", err)
	}

	discoverer := discovery.New(logger)
	client := paywall.NewClient(paymentSigner, logger)
	pipeline := agent.New(discoverer, targetPlanner, client, agent.NewLogSink(logger), logger)

	// Create handler and routes
	h := handler.New(pipeline, discoverer, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → logging → identity → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.PayerAgent(logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// createPlanner selects the planner implementation from configuration.
func createPlanner(cfg *config.Config) (planner.Planner, error) {
	if cfg.Planner.APIKey == "" {
		return planner.NewFirstMatch(), nil
	}
	return planner.NewLLM(planner.LLMConfig{
		BaseURL: cfg.Planner.BaseURL,
		APIKey:  cfg.Planner.APIKey,
		Model:   cfg.Planner.Model,
	})
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
