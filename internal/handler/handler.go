// Package handler provides HTTP handlers for the paywall agent API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"paywall-agent/internal/agent"
	"paywall-agent/internal/identity"
	"paywall-agent/internal/model"
)

// Runner executes one paywall run to its terminal outcome.
type Runner interface {
	Run(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	pipeline   Runner
	discoverer agent.Discoverer
	logger     *slog.Logger
}

// New creates a new Handler with the given pipeline, discoverer, and logger.
func New(pipeline Runner, discoverer agent.Discoverer, logger *slog.Logger) *Handler {
	return &Handler{
		pipeline:   pipeline,
		discoverer: discoverer,
		logger:     logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// This agent's own card, so other agents can discover it
	mux.HandleFunc("GET /.well-known/agent-card.json", h.handleAgentCard)
	mux.HandleFunc("GET /.well-known/agent.json", h.handleAgentCard)

	// REST transport
	mux.HandleFunc("POST /runs", h.handleRun)
	mux.HandleFunc("POST /discover", h.handleDiscover)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleRun executes a full discover/choose/fetch run.
// POST /runs
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req agent.RunRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.pipeline.Run(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// handleDiscover probes discovery URLs and returns the normalized provider
// records without selecting or fetching anything.
// POST /discover
func (h *Handler) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DiscoveryURLs []string `json:"discoveryUrls"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if len(req.DiscoveryURLs) == 0 {
		h.writeError(w, model.NewValidationError("discover", "discoveryUrls", "at least one URL is required"))
		return
	}

	providers := h.discoverer.Discover(r.Context(), req.DiscoveryURLs)
	h.writeJSON(w, http.StatusOK, struct {
		Providers []model.ProviderRecord `json:"providers"`
	}{Providers: providers})
}

// handleAgentCard serves this agent's own card.
// GET /.well-known/agent-card.json, GET /.well-known/agent.json
func (h *Handler) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, model.ProviderCard{
		Name:        identity.AgentName,
		Description: "Agent that discovers x402-paywalled resources, settles payment challenges, and returns the paid content.",
	})
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from AgentError
// if present. Uses errors.As() to unwrap error chains.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var agentErr *model.AgentError

	switch {
	case errors.As(err, &agentErr):
		// Found AgentError in error chain - use it
	case errors.Is(err, agent.ErrNoProviders):
		agentErr = &model.AgentError{
			Code:       "NO_PROVIDERS",
			Message:    err.Error(),
			StatusCode: http.StatusBadGateway,
		}
	case errors.Is(err, agent.ErrNoTarget):
		agentErr = &model.AgentError{
			Code:       "NO_TARGET",
			Message:    err.Error(),
			StatusCode: http.StatusNotFound,
		}
	default:
		agentErr = &model.AgentError{
			Code:       "INTERNAL_ERROR",
			Message:    "an internal error occurred",
			StatusCode: http.StatusInternalServerError,
		}
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, agentErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    agentErr.Code,
			Message: agentErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// An empty body is allowed and leaves v at its zero value.
// Returns an AgentError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		// Don't expose internal error details to client
		return model.NewValidationError("decode", "body", "invalid JSON")
	}
	return nil
}
