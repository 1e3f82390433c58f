package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"paywall-agent/internal/agent"
	"paywall-agent/internal/model"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams represents the params for tools/call method.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolResult is the expected result structure from a tool call.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

func TestMCPServerCreation(t *testing.T) {
	h, _ := testHandler(&runnerMock{}, &discovererMock{})
	server := h.NewMCPServer()

	if server == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPToolsList(t *testing.T) {
	_, mux := testHandler(&runnerMock{}, &discovererMock{})

	sessionID := initMCPSession(t, mux)

	listReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/list",
	}

	listBody, _ := json.Marshal(listReq)
	listHTTPReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(listBody))
	setMCPHeaders(listHTTPReq, sessionID)
	listW := httptest.NewRecorder()

	mux.ServeHTTP(listW, listHTTPReq)

	if listW.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d\nBody: %s", listW.Code, http.StatusOK, listW.Body.String())
	}

	jsonData, err := parseSSEResponse(listW.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Error != nil {
		t.Errorf("Unexpected error: %+v", resp.Error)
	}

	var toolsResult struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}

	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools result: %v", err)
	}

	expectedTools := map[string]bool{
		"discover_providers": false,
		"fetch_resource":     false,
	}

	for _, tool := range toolsResult.Tools {
		if _, ok := expectedTools[tool.Name]; ok {
			expectedTools[tool.Name] = true
		}
	}

	for name, found := range expectedTools {
		if !found {
			t.Errorf("Expected tool %q not found in tools list", name)
		}
	}
}

func TestMCPDiscoverProviders(t *testing.T) {
	discoverer := &discovererMock{
		discoverFunc: func(ctx context.Context, baseURLs []string) []model.ProviderRecord {
			return []model.ProviderRecord{
				{Name: "weather-api", BaseURL: "https://weather.example.com"},
			}
		},
	}

	_, mux := testHandler(&runnerMock{}, discoverer)

	sessionID := initMCPSession(t, mux)

	args, _ := json.Marshal(map[string]interface{}{
		"discoveryUrls": []string{"https://weather.example.com"},
	})

	result := callTool(t, mux, sessionID, "discover_providers", args)
	if result.IsError {
		t.Fatalf("Expected success, got error: %+v", result.Content)
	}
	if len(result.Content) == 0 {
		t.Fatal("Expected content in result")
	}

	var out DiscoverOutput
	if err := json.Unmarshal([]byte(result.Content[0].Text), &out); err != nil {
		t.Fatalf("Failed to parse discover output: %v", err)
	}
	if len(out.Providers) != 1 || out.Providers[0].Name != "weather-api" {
		t.Errorf("Providers = %+v", out.Providers)
	}
}

func TestMCPFetchResource(t *testing.T) {
	runner := &runnerMock{
		runFunc: func(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error) {
			if req.Query != "weather forecast" {
				t.Errorf("Query = %q", req.Query)
			}
			return &agent.RunResult{
				RunID:     "run-1",
				Provider:  "weather-api",
				Paid:      true,
				PaymentID: "p1",
				Output:    "paid=true paymentId=p1\n\n{}",
			}, nil
		},
	}

	_, mux := testHandler(runner, &discovererMock{})

	sessionID := initMCPSession(t, mux)

	args, _ := json.Marshal(map[string]interface{}{
		"query":         "weather forecast",
		"discoveryUrls": []string{"http://localhost:8787"},
	})

	result := callTool(t, mux, sessionID, "fetch_resource", args)
	if result.IsError {
		t.Fatalf("Expected success, got error: %+v", result.Content)
	}

	var out agent.RunResult
	if err := json.Unmarshal([]byte(result.Content[0].Text), &out); err != nil {
		t.Fatalf("Failed to parse run result: %v", err)
	}
	if out.RunID != "run-1" || !out.Paid {
		t.Errorf("result = %+v", out)
	}
}

func TestMCPFetchResourceError(t *testing.T) {
	runner := &runnerMock{
		runFunc: func(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error) {
			return nil, model.NewChallengeError("challenge", "challenge body has no accepts")
		},
	}

	_, mux := testHandler(runner, &discovererMock{})

	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "fetch_resource", []byte(`{}`))
	if !result.IsError {
		t.Fatal("Expected tool error")
	}
	if len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, "MALFORMED_CHALLENGE") {
		t.Errorf("Content = %+v, want MALFORMED_CHALLENGE", result.Content)
	}
}

func TestMCPDiscoverRequiresURLs(t *testing.T) {
	_, mux := testHandler(&runnerMock{}, &discovererMock{})

	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "discover_providers", []byte(`{"discoveryUrls":[]}`))
	if !result.IsError {
		t.Fatal("Expected tool error for empty discoveryUrls")
	}
}

// callTool issues a tools/call request and returns the parsed result.
func callTool(t *testing.T, mux *http.ServeMux, sessionID, name string, args json.RawMessage) callToolResult {
	t.Helper()

	callReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params: toolCallParams{
			Name:      name,
			Arguments: args,
		},
	}

	body, _ := json.Marshal(callReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected JSON-RPC error: %+v", resp.Error)
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	return result
}

// setMCPHeaders sets the required headers for MCP Streamable HTTP requests.
func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) ([]byte, error) {
	lines := strings.Split(body, "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: ")), nil
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body), nil
}

// initMCPSession initializes an MCP session and returns the session ID.
func initMCPSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	initReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]interface{}{},
		},
	}

	body, _ := json.Marshal(initReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to initialize MCP session: %s", w.Body.String())
	}

	return w.Header().Get("Mcp-Session-Id")
}
