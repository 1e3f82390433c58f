package planner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"paywall-agent/internal/model"
)

// chatServer returns an httptest server that replies to every chat-completions
// call with the given assistant content.
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer test-key", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding chat request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestLLM(t *testing.T, baseURL string) *LLM {
	t.Helper()
	p, err := NewLLMWithHTTP(LLMConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   "test-model",
	}, http.DefaultClient)
	if err != nil {
		t.Fatalf("NewLLMWithHTTP: %v", err)
	}
	return p
}

func TestLLMChooseTarget(t *testing.T) {
	srv := chatServer(t, `{"providerIndex": 0, "resourceIndex": 1, "reason": "premium forecast matches"}`)
	defer srv.Close()

	sel, err := newTestLLM(t, srv.URL).ChooseTarget(context.Background(), "weather forecast", plannerProviders())
	if err != nil {
		t.Fatalf("ChooseTarget: %v", err)
	}
	if sel == nil || sel.ProviderIndex == nil || sel.ResourceIndex == nil {
		t.Fatalf("incomplete selection: %+v", sel)
	}
	if *sel.ProviderIndex != 0 || *sel.ResourceIndex != 1 {
		t.Errorf("got (%d, %d), want (0, 1)", *sel.ProviderIndex, *sel.ResourceIndex)
	}
	if sel.Reason != "premium forecast matches" {
		t.Errorf("Reason = %q", sel.Reason)
	}
}

func TestLLMChooseTargetNull(t *testing.T) {
	srv := chatServer(t, "null")
	defer srv.Close()

	sel, err := newTestLLM(t, srv.URL).ChooseTarget(context.Background(), "anything", plannerProviders())
	if err != nil {
		t.Fatalf("ChooseTarget: %v", err)
	}
	if sel != nil {
		t.Errorf("expected nil selection, got %+v", sel)
	}
}

func TestLLMChooseTargetBadReplies(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "prose instead of JSON", content: "I would pick the weather API."},
		{name: "markdown fenced JSON", content: "```json\n{\"providerIndex\":0}\n```"},
		{name: "missing resourceIndex", content: `{"providerIndex": 0, "reason": "x"}`},
		{name: "missing providerIndex", content: `{"resourceIndex": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.content)
			defer srv.Close()

			_, err := newTestLLM(t, srv.URL).ChooseTarget(context.Background(), "query", plannerProviders())
			if err == nil {
				t.Fatal("expected an error")
			}
			var agentErr *model.AgentError
			if !errors.As(err, &agentErr) {
				t.Fatalf("expected *model.AgentError, got %T: %v", err, err)
			}
			if agentErr.Code != "PLANNER_ERROR" {
				t.Errorf("Code = %q, want PLANNER_ERROR", agentErr.Code)
			}
			if !errors.Is(err, model.ErrInternal) {
				t.Error("expected error to match model.ErrInternal")
			}
		})
	}
}

func TestLLMChooseTargetUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestLLM(t, srv.URL).ChooseTarget(context.Background(), "query", plannerProviders())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, model.ErrNetwork) {
		t.Errorf("expected model.ErrNetwork, got %v", err)
	}
}

func TestNewLLMValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  LLMConfig
	}{
		{name: "missing base URL", cfg: LLMConfig{APIKey: "k", Model: "m"}},
		{name: "missing API key", cfg: LLMConfig{BaseURL: "http://x", Model: "m"}},
		{name: "missing model", cfg: LLMConfig{BaseURL: "http://x", APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLLM(tt.cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
