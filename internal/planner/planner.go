// Package planner selects a target provider/resource pair for a
// natural-language query. The pipeline treats planners as oracles: a nil
// selection means no suitable resource exists, and any error is absorbed
// into a "no target" outcome rather than crashing the run.
package planner

import (
	"context"

	"paywall-agent/internal/model"
)

// Planner chooses a provider/resource pair for a query.
// Implementations must not mutate the providers slice.
type Planner interface {
	// ChooseTarget returns the selection, or nil when no suitable x402
	// resource exists among the discovered providers.
	ChooseTarget(ctx context.Context, query string, providers []model.ProviderRecord) (*model.Selection, error)
}

// providerSummary is the compact provider view handed to the LLM: indices the
// model must echo back, plus enough text to rank resources by relevance.
type providerSummary struct {
	ProviderIndex int               `json:"providerIndex"`
	Name          string            `json:"name"`
	BaseURL       string            `json:"baseUrl"`
	Resources     []resourceSummary `json:"resources"`
}

type resourceSummary struct {
	ResourceIndex   int    `json:"resourceIndex"`
	URL             string `json:"url"`
	Description     string `json:"description"`
	PaywallProtocol string `json:"paywallProtocol,omitempty"`
}

// summarize flattens provider records for planner consumption.
func summarize(providers []model.ProviderRecord) []providerSummary {
	out := make([]providerSummary, len(providers))
	for pi, p := range providers {
		resources := make([]resourceSummary, len(p.Card.Resources))
		for ri, r := range p.Card.Resources {
			protocol := ""
			if r.Paywall != nil {
				protocol = r.Paywall.Protocol
			}
			resources[ri] = resourceSummary{
				ResourceIndex:   ri,
				URL:             r.URL,
				Description:     r.Description,
				PaywallProtocol: protocol,
			}
		}
		out[pi] = providerSummary{
			ProviderIndex: pi,
			Name:          p.Name,
			BaseURL:       p.BaseURL,
			Resources:     resources,
		}
	}
	return out
}
