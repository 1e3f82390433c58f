package paywall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"paywall-agent/internal/identity"
	"paywall-agent/internal/model"
	"paywall-agent/internal/transport"
)

// XPaymentIDHeader conveys the payment identifier on the post-settlement
// retry request.
const XPaymentIDHeader = "x-payment-id"

// DefaultSettlementPath is used when the provider card does not declare a
// settlement endpoint for a resource.
const DefaultSettlementPath = "/api/pay"

// DefaultFetchTimeout bounds each resource fetch, settlement, and retry call.
const DefaultFetchTimeout = 20 * time.Second

// bodyExcerptLimit truncates upstream bodies quoted in error messages.
const bodyExcerptLimit = 400

// maxBodySize limits payload and challenge bodies to 4MB.
const maxBodySize = 4 << 20

// Signer produces a signed payment credential for an accept term. A missing
// signing key must surface as a configuration error (model.ErrConfig), which
// the negotiator propagates unmodified.
type Signer interface {
	SignPayment(ctx context.Context, term *model.AcceptTerm) (string, error)
}

// Client negotiates access to x402-paywalled resources.
//
// Fetch walks the states INIT → FETCHING → {DONE_FREE | CHALLENGED → SIGNING →
// SETTLING → RETRY_FETCHING → DONE_PAID | FAILED}. Exactly one
// challenge/settle/retry cycle is performed; every HTTP call is attempted once,
// with retry policy left to the caller.
type Client struct {
	httpClient *http.Client
	signer     Signer
	logger     *slog.Logger
}

// NewClient creates a paywall Client using the given signer.
// A nil logger discards diagnostics.
func NewClient(signer Signer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   DefaultFetchTimeout,
			Transport: transport.NewChromeTransport(DefaultFetchTimeout),
		},
		signer: signer,
		logger: logger,
	}
}

// NewClientWithHTTP creates a Client with a custom HTTP client, used by tests.
func NewClientWithHTTP(signer Signer, httpClient *http.Client, logger *slog.Logger) *Client {
	c := NewClient(signer, logger)
	c.httpClient = httpClient
	return c
}

// Fetch retrieves the target resource, settling an x402 payment challenge if
// one is issued. On a 200 first response it returns an unpaid result and never
// touches the settlement endpoint. On a 402 it signs accepts[0], settles, and
// retries once with the payment identifier attached.
func (c *Client) Fetch(ctx context.Context, target *model.Target) (*model.FetchResult, error) {
	const op = "fetch"

	resourceURL := resolveResourceURL(target)
	settlementURL := resolveSettlementURL(target)

	// First GET: the only request on the free path.
	status, body, err := c.do(ctx, http.MethodGet, resourceURL, nil, nil)
	if err != nil {
		return nil, model.NewNetworkError(op, "fetching resource", err)
	}

	switch {
	case status == http.StatusOK:
		data, err := parseJSONBody(op, body)
		if err != nil {
			return nil, err
		}
		return &model.FetchResult{OK: true, Paid: false, Data: data}, nil

	case status != http.StatusPaymentRequired:
		return nil, model.NewNetworkError(op,
			fmt.Sprintf("unexpected status %d: %s", status, excerpt(body)), nil)
	}

	// CHALLENGED: parse the 402 body and take the first accept term.
	term, err := parseChallenge(body)
	if err != nil {
		return nil, err
	}
	paymentID := term.Extra.PaymentID

	c.logger.Debug("payment challenge received",
		slog.String("payment_id", paymentID),
		slog.String("pay_to", term.PayTo),
		slog.String("amount", term.MaxAmountRequired))

	// SIGNING: configuration errors from the signer propagate unmodified.
	paymentHeader, err := c.signer.SignPayment(ctx, term)
	if err != nil {
		return nil, err
	}

	// SETTLING: one POST; a failed settlement stops the run before any retry.
	settleBody, err := json.Marshal(model.SettlementRequest{
		PaymentID:           paymentID,
		PaymentHeader:       paymentHeader,
		PaymentRequirements: *term,
	})
	if err != nil {
		return nil, model.NewInternalError("settle", err)
	}

	settleStatus, settleResp, err := c.do(ctx, http.MethodPost, settlementURL, settleBody, nil)
	if err != nil {
		return nil, model.NewNetworkError("settle", "posting settlement", err)
	}
	if settleStatus >= 400 {
		return nil, model.NewNetworkError("settle",
			fmt.Sprintf("settlement failed with status %d: %s", settleStatus, excerpt(settleResp)), nil)
	}

	// RETRY_FETCHING: one GET with the payment identifier attached.
	retryStatus, retryBody, err := c.do(ctx, http.MethodGet, resourceURL,
		nil, map[string]string{XPaymentIDHeader: paymentID})
	if err != nil {
		return nil, model.NewNetworkError("retry", "retrying after settlement", err)
	}
	if retryStatus != http.StatusOK {
		return nil, model.NewNetworkError("retry",
			fmt.Sprintf("retry after settlement failed with status %d: %s", retryStatus, excerpt(retryBody)), nil)
	}

	data, err := parseJSONBody("retry", retryBody)
	if err != nil {
		return nil, err
	}

	return &model.FetchResult{
		OK:         true,
		Paid:       true,
		PaymentID:  paymentID,
		Settlement: jsonOrNull(settleResp),
		Data:       data,
	}, nil
}

// do issues one HTTP request and returns the status and body. Each call is
// attempted exactly once.
func (c *Client) do(ctx context.Context, method, url string, body []byte, headers map[string]string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", identity.AgentName+"/"+identity.AgentVersion)
	req.Header.Set(identity.Header, identity.Value())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

// parseChallenge validates a 402 body and returns its first accept term.
func parseChallenge(body []byte) (*model.AcceptTerm, error) {
	const op = "challenge"

	var challenge model.Challenge
	if err := json.Unmarshal(body, &challenge); err != nil {
		return nil, model.NewChallengeError(op,
			fmt.Sprintf("invalid 402 challenge body: %s", excerpt(body)))
	}
	if len(challenge.Accepts) == 0 {
		return nil, model.NewChallengeError(op, "invalid 402 challenge: no accepts")
	}

	term := challenge.Accepts[0]
	if term.Extra.PaymentID == "" {
		return nil, model.NewChallengeError(op, "invalid 402 challenge: missing paymentId")
	}

	return &term, nil
}

// resolveResourceURL joins a root-relative resource URL to the provider base;
// absolute URLs are used as-is.
func resolveResourceURL(target *model.Target) string {
	resourceURL := target.Resource.URL
	if strings.HasPrefix(resourceURL, "/") {
		return target.Provider.BaseURL + resourceURL
	}
	return resourceURL
}

// resolveSettlementURL joins the declared (or default) settlement path to the
// provider base, normalizing a missing leading slash.
func resolveSettlementURL(target *model.Target) string {
	path := DefaultSettlementPath
	if target.Resource.Paywall != nil && target.Resource.Paywall.Settlement != "" {
		path = target.Resource.Paywall.Settlement
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return target.Provider.BaseURL + path
}

// parseJSONBody validates that a 200 body is JSON before handing it to the
// caller as an opaque payload.
func parseJSONBody(op string, body []byte) (json.RawMessage, error) {
	if !json.Valid(body) {
		return nil, model.NewInternalError(op,
			fmt.Errorf("response body is not valid JSON: %s", excerpt(body)))
	}
	return json.RawMessage(body), nil
}

// jsonOrNull returns the body as a raw JSON value, or JSON null if the
// settlement endpoint returned a non-JSON (or empty) success body.
func jsonOrNull(body []byte) json.RawMessage {
	if json.Valid(body) && len(bytes.TrimSpace(body)) > 0 {
		return json.RawMessage(body)
	}
	return json.RawMessage("null")
}

// excerpt truncates an upstream body for inclusion in error messages.
func excerpt(body []byte) string {
	s := string(body)
	if len(s) > bodyExcerptLimit {
		return s[:bodyExcerptLimit]
	}
	return s
}
