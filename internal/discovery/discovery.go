// Package discovery probes candidate base URLs for machine-readable provider
// cards served at well-known paths.
//
// Discovery is intentionally resilient: every failure mode for a candidate
// (connection error, timeout, non-200 on every path, non-JSON body) removes
// that candidate from the result silently and never affects the others.
package discovery

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"paywall-agent/internal/model"
	"paywall-agent/internal/transport"
)

// WellKnownPaths are probed in order for each base URL until one returns
// HTTP 200 with a JSON object body.
var WellKnownPaths = []string{
	"/.well-known/agent-card.json",
	"/.well-known/agent.json",
}

// DefaultProbeTimeout bounds each discovery probe.
const DefaultProbeTimeout = 5 * time.Second

// maxCardSize limits provider card bodies to 1MB to prevent abuse.
const maxCardSize = 1 << 20

// Discoverer probes base URLs for provider cards.
type Discoverer struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Discoverer. A nil logger discards discovery diagnostics.
func New(logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Discoverer{
		httpClient: &http.Client{
			Timeout:   DefaultProbeTimeout,
			Transport: transport.NewChromeTransport(DefaultProbeTimeout),
		},
		logger: logger,
	}
}

// NewWithClient creates a Discoverer with a custom HTTP client, used by tests
// to control timeouts and transports.
func NewWithClient(client *http.Client, logger *slog.Logger) *Discoverer {
	d := New(logger)
	d.httpClient = client
	return d
}

// Discover probes each base URL for a provider card and returns normalized
// records for the candidates that answered. URLs are probed concurrently;
// the output preserves the relative input order of the successes. Discover
// never returns an error: absence of a record is the only visible effect of
// a failed candidate.
func (d *Discoverer) Discover(ctx context.Context, baseURLs []string) []model.ProviderRecord {
	found := make([]*model.ProviderRecord, len(baseURLs))

	var wg sync.WaitGroup
	for i, base := range baseURLs {
		wg.Add(1)
		go func(i int, base string) {
			defer wg.Done()
			card, ok := d.fetchCard(ctx, base)
			if !ok {
				return
			}
			rec := model.NewProviderRecord(card, strings.TrimSuffix(base, "/"))
			found[i] = &rec
		}(i, base)
	}
	wg.Wait()

	records := make([]model.ProviderRecord, 0, len(baseURLs))
	for _, rec := range found {
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records
}

// fetchCard probes the well-known paths for one base URL, returning the first
// card that parses as a JSON object. All errors are absorbed.
func (d *Discoverer) fetchCard(ctx context.Context, baseURL string) (model.ProviderCard, bool) {
	base := strings.TrimSuffix(baseURL, "/")

	for _, path := range WellKnownPaths {
		probeURL := base + path

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
		if err != nil {
			d.logger.Debug("discovery probe skipped",
				slog.String("url", probeURL),
				slog.String("error", err.Error()))
			return model.ProviderCard{}, false
		}
		req.Header.Set("Accept", "application/json")

		resp, err := d.httpClient.Do(req)
		if err != nil {
			d.logger.Debug("discovery probe failed",
				slog.String("url", probeURL),
				slog.String("error", err.Error()))
			continue
		}

		card, ok := decodeCard(resp)
		if ok {
			return card, true
		}
	}

	return model.ProviderCard{}, false
}

// decodeCard reads a probe response and parses it as a provider card.
// Returns false for non-200 statuses and bodies that are not JSON objects.
func decodeCard(resp *http.Response) (model.ProviderCard, bool) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return model.ProviderCard{}, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCardSize))
	if err != nil {
		return model.ProviderCard{}, false
	}

	// A card must be a JSON object; arrays, strings, and nulls are not cards.
	trimmed := strings.TrimLeftFunc(string(body), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if !strings.HasPrefix(trimmed, "{") {
		return model.ProviderCard{}, false
	}

	var card model.ProviderCard
	if err := json.Unmarshal(body, &card); err != nil {
		return model.ProviderCard{}, false
	}
	return card, true
}
