// MCP transport handler for the paywall agent using the official MCP Go SDK.
// Exposes discovery and paywalled-resource fetching as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"paywall-agent/internal/agent"
	"paywall-agent/internal/identity"
	"paywall-agent/internal/model"
)

// === MCP Tool Input/Output Types ===

// DiscoverInput is the input schema for the discover_providers tool.
type DiscoverInput struct {
	DiscoveryURLs []string `json:"discoveryUrls" jsonschema:"base URLs to probe for provider cards,required"`
}

// DiscoverOutput lists the providers found at the probed URLs.
type DiscoverOutput struct {
	Providers []model.ProviderRecord `json:"providers"`
}

// FetchInput is the input schema for the fetch_resource tool.
type FetchInput struct {
	Query         string   `json:"query,omitempty" jsonschema:"natural-language description of the resource to fetch"`
	DiscoveryURLs []string `json:"discoveryUrls,omitempty" jsonschema:"base URLs to probe for provider cards"`
}

// NewMCPServer creates an MCP server with the agent's tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    identity.AgentName,
			Version: identity.AgentVersion,
		},
		&mcp.ServerOptions{
			Instructions: "Paywall agent - discovers providers advertising x402-protected " +
				"resources and fetches them, settling 402 payment challenges automatically.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "discover_providers",
		Description: "Probe discovery URLs for provider cards and list their resources.",
	}, h.mcpDiscoverProviders)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fetch_resource",
		Description: "Discover providers, choose the resource matching the query, and fetch it. Settles an x402 payment challenge if the resource is paywalled.",
	}, h.mcpFetchResource)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpDiscoverProviders(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input DiscoverInput,
) (*mcp.CallToolResult, *DiscoverOutput, error) {
	if len(input.DiscoveryURLs) == 0 {
		return nil, nil, fmt.Errorf("discoveryUrls is required")
	}

	providers := h.discoverer.Discover(ctx, input.DiscoveryURLs)
	return nil, &DiscoverOutput{Providers: providers}, nil
}

func (h *Handler) mcpFetchResource(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input FetchInput,
) (*mcp.CallToolResult, *agent.RunResult, error) {
	result, err := h.pipeline.Run(ctx, agent.RunRequest{
		Query:         input.Query,
		DiscoveryURLs: input.DiscoveryURLs,
	})
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	return nil, result, nil
}

// mcpError converts pipeline errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var agentErr *model.AgentError
	switch {
	case errors.As(err, &agentErr):
		return fmt.Errorf("%s: %s", agentErr.Code, agentErr.Message)
	case errors.Is(err, agent.ErrNoProviders), errors.Is(err, agent.ErrNoTarget):
		return err
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
