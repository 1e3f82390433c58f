package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paywall-agent/internal/model"
)

// systemPrompt instructs the model to answer with machine-parseable JSON only.
const systemPrompt = `Select the best provider resource for the user query.
Return ONLY valid JSON (no markdown, no prose).
If no x402 resource exists, return null.
Schema: {"providerIndex": number, "resourceIndex": number, "reason": string}`

// DefaultChatTimeout bounds one chat-completions call.
const DefaultChatTimeout = 30 * time.Second

// LLMConfig holds chat-completions API settings for the LLM planner.
type LLMConfig struct {
	BaseURL string // OpenAI-compatible API base, e.g. https://api.openai.com/v1
	APIKey  string
	Model   string
}

// LLM selects targets with an OpenAI-compatible chat-completions API.
type LLM struct {
	httpClient *http.Client
	cfg        LLMConfig
}

// NewLLM creates an LLM planner with the given configuration.
func NewLLM(cfg LLMConfig) (*LLM, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("planner base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("planner API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("planner model is required")
	}
	return &LLM{
		httpClient: &http.Client{Timeout: DefaultChatTimeout},
		cfg:        cfg,
	}, nil
}

// NewLLMWithHTTP creates an LLM planner with a custom HTTP client, used by tests.
func NewLLMWithHTTP(cfg LLMConfig, httpClient *http.Client) (*LLM, error) {
	p, err := NewLLM(cfg)
	if err != nil {
		return nil, err
	}
	p.httpClient = httpClient
	return p, nil
}

// Chat-completions wire types, narrowed to the fields we read.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ChooseTarget prompts the model with the summarized providers and parses its
// selection. A literal "null" reply means no suitable resource exists and
// yields (nil, nil). Invalid JSON or a schema mismatch is a planner error.
func (p *LLM) ChooseTarget(ctx context.Context, query string, providers []model.ProviderRecord) (*model.Selection, error) {
	const op = "plan"

	payload, err := json.Marshal(map[string]any{
		"query":     query,
		"providers": summarize(providers),
	})
	if err != nil {
		return nil, model.NewInternalError(op, err)
	}

	reply, err := p.chat(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: string(payload)},
	})
	if err != nil {
		return nil, model.NewNetworkError(op, "chat completion failed", err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "null" || reply == "" {
		return nil, nil
	}

	var selection model.Selection
	if err := json.Unmarshal([]byte(reply), &selection); err != nil {
		return nil, &model.AgentError{
			Code:       "PLANNER_ERROR",
			Message:    fmt.Sprintf("planner returned invalid JSON: %.300s", reply),
			Op:         op,
			StatusCode: 502,
			Err:        model.ErrInternal,
		}
	}
	if selection.ProviderIndex == nil || selection.ResourceIndex == nil {
		return nil, &model.AgentError{
			Code:       "PLANNER_ERROR",
			Message:    "planner returned JSON but not the expected schema",
			Op:         op,
			StatusCode: 502,
			Err:        model.ErrInternal,
		}
	}

	return &selection, nil
}

// chat issues one chat-completions call and returns the first choice's content.
func (p *LLM) chat(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{Model: p.cfg.Model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimSuffix(p.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %.200s", resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}
