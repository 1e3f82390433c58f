package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAgentError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AgentError
		want string
	}{
		{
			name: "with op",
			err: &AgentError{
				Code:    "NETWORK_ERROR",
				Message: "status 500",
				Op:      "settle",
			},
			want: "settle: NETWORK_ERROR: status 500",
		},
		{
			name: "without op",
			err: &AgentError{
				Code:    "VALIDATION_ERROR",
				Message: "invalid providerIndex: out of range",
			},
			want: "VALIDATION_ERROR: invalid providerIndex: out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAgentError_Sentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"config", NewConfigError("sign", "X402_PRIVATE_KEY is not set"), ErrConfig},
		{"network", NewNetworkError("fetch", "status 500", nil), ErrNetwork},
		{"network with cause", NewNetworkError("fetch", "dial failed", errors.New("refused")), ErrNetwork},
		{"validation", NewValidationError("resolve", "providerIndex", "out of range"), ErrMalformedInput},
		{"challenge", NewChallengeError("fetch", "no accepts"), ErrMalformedInput},
		{"internal", NewInternalError("run", errors.New("boom")), ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tt.err, tt.sentinel)
			}
		})
	}
}

func TestAgentError_UnwrapThroughWrapping(t *testing.T) {
	inner := NewConfigError("sign", "missing key")
	wrapped := fmt.Errorf("generating payment header: %w", inner)

	var agentErr *AgentError
	if !errors.As(wrapped, &agentErr) {
		t.Fatal("errors.As() failed to find AgentError in chain")
	}
	if agentErr.Code != "CONFIG_ERROR" {
		t.Errorf("Code = %s, want CONFIG_ERROR", agentErr.Code)
	}
	if !errors.Is(wrapped, ErrConfig) {
		t.Error("errors.Is(wrapped, ErrConfig) = false, want true")
	}
}

func TestAcceptTerm_Timeout(t *testing.T) {
	term := AcceptTerm{}
	if got := term.Timeout(); got != DefaultTimeoutSeconds {
		t.Errorf("Timeout() = %d, want %d", got, DefaultTimeoutSeconds)
	}

	term.MaxTimeoutSeconds = 60
	if got := term.Timeout(); got != 60 {
		t.Errorf("Timeout() = %d, want 60", got)
	}
}

func TestNewProviderRecord(t *testing.T) {
	tests := []struct {
		name      string
		card      ProviderCard
		probedURL string
		wantName  string
		wantBase  string
	}{
		{
			name:      "card declares name and url",
			card:      ProviderCard{Name: "weather", URL: "https://api.example.com/"},
			probedURL: "http://localhost:8787",
			wantName:  "weather",
			wantBase:  "https://api.example.com",
		},
		{
			name:      "missing name falls back to unknown",
			card:      ProviderCard{},
			probedURL: "http://localhost:8787/",
			wantName:  "unknown",
			wantBase:  "http://localhost:8787",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewProviderRecord(tt.card, tt.probedURL)
			if rec.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", rec.Name, tt.wantName)
			}
			if rec.BaseURL != tt.wantBase {
				t.Errorf("BaseURL = %q, want %q", rec.BaseURL, tt.wantBase)
			}
		})
	}
}
