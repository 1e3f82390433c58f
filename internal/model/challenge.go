package model

import "encoding/json"

// DefaultTimeoutSeconds is the validity window applied when a challenge's
// accept term omits maxTimeoutSeconds.
const DefaultTimeoutSeconds = 300

// Challenge is the body of an HTTP 402 response. Only the first accept term
// is ever consulted.
type Challenge struct {
	Accepts []AcceptTerm `json:"accepts"`
}

// AcceptTerm is one payment-terms option within a challenge.
type AcceptTerm struct {
	PayTo             string      `json:"payTo"`
	MaxAmountRequired string      `json:"maxAmountRequired"`
	MaxTimeoutSeconds int         `json:"maxTimeoutSeconds,omitempty"`
	Asset             string      `json:"asset,omitempty"`
	Network           string      `json:"network,omitempty"`
	Extra             AcceptExtra `json:"extra"`
}

// AcceptExtra carries provider-specific accept fields. PaymentID must be
// non-empty before settlement proceeds.
type AcceptExtra struct {
	PaymentID string `json:"paymentId"`
}

// Timeout returns the accept term's validity window in seconds, defaulting
// to DefaultTimeoutSeconds when absent.
func (a *AcceptTerm) Timeout() int {
	if a.MaxTimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds
	}
	return a.MaxTimeoutSeconds
}

// FetchResult is the terminal outcome of a successful negotiator run.
// Invariants: Paid=false means the first GET returned 200 and no settlement
// call was made; Paid=true means a full challenge/settle/retry cycle completed
// with Data populated from the retried GET.
type FetchResult struct {
	OK         bool            `json:"ok"`
	Paid       bool            `json:"paid"`
	PaymentID  string          `json:"paymentId,omitempty"`
	Settlement json.RawMessage `json:"settlement,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// SettlementRequest is the body POSTed to a provider's settlement endpoint.
type SettlementRequest struct {
	PaymentID           string     `json:"paymentId"`
	PaymentHeader       string     `json:"paymentHeader"`
	PaymentRequirements AcceptTerm `json:"paymentRequirements"`
}
