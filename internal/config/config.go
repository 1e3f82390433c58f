// Package config handles loading and validation of agent configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// DefaultDiscoveryURL is probed when a run request does not name any
// candidate providers.
const DefaultDiscoveryURL = "http://localhost:8787"

// Config holds all agent configuration.
// Environment determines whether the signing key loads from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	SecretName string // Secret Manager secret holding the signer config JSON

	// Default discovery endpoints, comma-separated in DISCOVERY_URLS
	DiscoveryURLs []string

	// Signer holds payment-signing settings (loaded from secrets in production)
	Signer SignerConfig

	// Planner holds LLM target-selection settings; empty APIKey disables the
	// LLM planner and the agent falls back to deterministic selection
	Planner PlannerConfig
}

// SignerConfig contains payment-signing settings.
// In production, this is loaded from Secret Manager as JSON.
// In development, loaded from individual env vars or CONFIG_FILE.
type SignerConfig struct {
	PrivateKey string `json:"private_key"`
	Network    string `json:"network,omitempty"`  // CAIP-2 style network name
	ChainID    int64  `json:"chain_id,omitempty"` // EVM chain ID for EIP-712 domain
	Asset      string `json:"asset,omitempty"`    // Token contract address
	AssetName  string `json:"asset_name,omitempty"`
	AssetVer   string `json:"asset_version,omitempty"`
}

// PlannerConfig contains LLM planner settings.
type PlannerConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:          envOrDefault("PORT", "9001"),
		Environment:   envOrDefault("ENVIRONMENT", "development"),
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
		GCPProject:    os.Getenv("GCP_PROJECT"),
		SecretName:    envOrDefault("SIGNER_SECRET_NAME", "x402-signer"),
		DiscoveryURLs: splitURLs(envOrDefault("DISCOVERY_URLS", DefaultDiscoveryURL)),
		Planner: PlannerConfig{
			BaseURL: envOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  os.Getenv("LLM_API_KEY"),
			Model:   envOrDefault("LLM_MODEL", "gpt-4o-mini"),
		},
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadSignerFromSecretManager(ctx)
	} else {
		cfg.loadSignerFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading signer config: %w", err)
	}

	cfg.applySignerDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port          string        `json:"port"`
		Environment   string        `json:"environment"`
		LogLevel      string        `json:"log_level"`
		DiscoveryURLs []string      `json:"discovery_urls"`
		Signer        SignerConfig  `json:"signer"`
		Planner       PlannerConfig `json:"planner"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:          withDefault(fileConfig.Port, "9001"),
		Environment:   withDefault(fileConfig.Environment, "development"),
		LogLevel:      withDefault(fileConfig.LogLevel, "info"),
		DiscoveryURLs: fileConfig.DiscoveryURLs,
		Signer:        fileConfig.Signer,
		Planner:       fileConfig.Planner,
	}
	if len(cfg.DiscoveryURLs) == 0 {
		cfg.DiscoveryURLs = []string{DefaultDiscoveryURL}
	}

	cfg.applySignerDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadSignerFromSecretManager fetches the signer config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{name}/versions/latest
func (c *Config) loadSignerFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.SecretName)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Signer); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadSignerFromEnv reads signer config from individual environment variables.
// Used in development mode for local testing. A missing X402_PRIVATE_KEY is
// not an error here: the signer reports a configuration error at signing time,
// so unpaid fetches still work without credentials.
func (c *Config) loadSignerFromEnv() {
	c.Signer = SignerConfig{
		PrivateKey: os.Getenv("X402_PRIVATE_KEY"),
		Network:    os.Getenv("X402_NETWORK"),
		Asset:      os.Getenv("X402_ASSET"),
	}
}

// applySignerDefaults fills network settings for the default Cronos testnet
// facilitator when unset.
func (c *Config) applySignerDefaults() {
	if c.Signer.Network == "" {
		c.Signer.Network = "cronos-testnet"
	}
	if c.Signer.ChainID == 0 {
		c.Signer.ChainID = 338
	}
	if c.Signer.AssetName == "" {
		c.Signer.AssetName = "USDC"
	}
	if c.Signer.AssetVer == "" {
		c.Signer.AssetVer = "2"
	}
}

// validate checks that configuration fields are well-formed.
func (c *Config) validate() error {
	for _, u := range c.DiscoveryURLs {
		parsed, err := url.Parse(u)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid discovery URL %q", u)
		}
	}
	if c.Planner.APIKey != "" && c.Planner.Model == "" {
		return fmt.Errorf("planner model is required when an API key is set")
	}
	return nil
}

// splitURLs splits a comma-separated URL list, trimming whitespace.
func splitURLs(s string) []string {
	parts := strings.Split(s, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
