// Package model defines the data types and error taxonomy shared across the
// paywall agent: provider cards discovered from well-known endpoints, resolved
// fetch targets, 402 challenge bodies, and fetch results. All values are scoped
// to a single end-to-end run; nothing here is cached or persisted.
package model

import "strings"

// X402Protocol is the paywall protocol identifier this agent can settle.
const X402Protocol = "x402"

// ProviderCard is the machine-readable capability descriptor served by a
// provider at its well-known path. Unknown fields are ignored; absent fields
// fall back to defaults during normalization (see ProviderRecord).
type ProviderCard struct {
	Name        string               `json:"name,omitempty"`
	URL         string               `json:"url,omitempty"`
	Description string               `json:"description,omitempty"`
	Resources   []ResourceDescriptor `json:"resources,omitempty"`
}

// ResourceDescriptor describes one protected resource within a provider card.
type ResourceDescriptor struct {
	// URL is absolute or root-relative. Root-relative URLs are joined to the
	// provider's base URL at fetch time.
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	Paywall     *Paywall `json:"paywall,omitempty"`
}

// Paywall declares how a resource is protected.
type Paywall struct {
	Protocol string `json:"protocol"`
	// Settlement is the provider-declared settlement path. Empty means the
	// default settlement path applies.
	Settlement string `json:"settlement,omitempty"`
	// Version optionally declares the paywall protocol version ("1.0", "v1.2").
	// Absent means any supported version.
	Version string `json:"version,omitempty"`
}

// IsX402 reports whether the resource is protected by an x402 paywall.
func (r *ResourceDescriptor) IsX402() bool {
	return r.Paywall != nil && r.Paywall.Protocol == X402Protocol
}

// ProviderRecord is a discovered provider, normalized from its card:
// Name falls back to "unknown", BaseURL to the probed URL, trailing slashes
// stripped. Created fresh per discovery call and owned by that run.
type ProviderRecord struct {
	Name    string       `json:"name"`
	BaseURL string       `json:"baseUrl"`
	Card    ProviderCard `json:"card"`
}

// NewProviderRecord normalizes a fetched card into a ProviderRecord.
// probedURL is the base URL the card was discovered at.
func NewProviderRecord(card ProviderCard, probedURL string) ProviderRecord {
	name := card.Name
	if name == "" {
		name = "unknown"
	}
	base := card.URL
	if base == "" {
		base = probedURL
	}
	return ProviderRecord{
		Name:    name,
		BaseURL: strings.TrimSuffix(base, "/"),
		Card:    card,
	}
}

// Selection is the oracle's choice of provider and resource, by index into
// the discovered provider sequence and the provider's resource list.
// Pointers distinguish "absent" from zero (a missing index is a malformed
// selection, not index 0).
type Selection struct {
	ProviderIndex *int   `json:"providerIndex"`
	ResourceIndex *int   `json:"resourceIndex"`
	Reason        string `json:"reason,omitempty"`
}

// Target is a fully resolved provider+resource pair, written once by the
// resolver and read-only thereafter.
type Target struct {
	Provider ProviderRecord     `json:"provider"`
	Resource ResourceDescriptor `json:"resource"`
}
