package planner

import (
	"context"
	"fmt"
	"strings"

	"paywall-agent/internal/model"
)

// FirstMatch is the deterministic planner used when no LLM credentials are
// configured. It picks the first x402 resource whose description or URL
// contains a query term, falling back to the first x402 resource overall.
type FirstMatch struct{}

// NewFirstMatch creates a FirstMatch planner.
func NewFirstMatch() *FirstMatch {
	return &FirstMatch{}
}

// ChooseTarget scans providers in discovery order. Returns nil when no
// provider advertises any x402 resource.
func (f *FirstMatch) ChooseTarget(ctx context.Context, query string, providers []model.ProviderRecord) (*model.Selection, error) {
	terms := strings.Fields(strings.ToLower(query))

	var fallback *model.Selection

	for pi := range providers {
		for ri, resource := range providers[pi].Card.Resources {
			if !resource.IsX402() {
				continue
			}
			if fallback == nil {
				fallback = newSelection(pi, ri, "first x402 resource")
			}
			haystack := strings.ToLower(resource.Description + " " + resource.URL)
			for _, term := range terms {
				if strings.Contains(haystack, term) {
					return newSelection(pi, ri, fmt.Sprintf("matched query term %q", term)), nil
				}
			}
		}
	}

	return fallback, nil
}

func newSelection(pi, ri int, reason string) *model.Selection {
	return &model.Selection{
		ProviderIndex: &pi,
		ResourceIndex: &ri,
		Reason:        reason,
	}
}
