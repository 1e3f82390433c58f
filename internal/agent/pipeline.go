// Package agent orchestrates a full paywall run: discover providers, choose
// a target, fetch the resource (settling a 402 challenge when one appears),
// and report the outcome through an event sink.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"paywall-agent/internal/config"
	"paywall-agent/internal/model"
	"paywall-agent/internal/paywall"
	"paywall-agent/internal/planner"
)

// DefaultQuery is used when a run request carries no query text.
const DefaultQuery = "fetch paywalled resource"

// artifactName labels the final artifact of a successful run.
const artifactName = "paywalled_resource"

// Progress and failure messages emitted to the event sink.
const (
	msgPlanning    = "Planning paywall request"
	msgDiscovering = "Discovering providers"
	msgSelecting   = "Selecting target provider/resource"
	msgFetching    = "Fetching resource (may trigger 402)"
)

// Terminal failure conditions a run can end in before fetching starts.
var (
	ErrNoProviders = errors.New("no providers discovered")
	ErrNoTarget    = errors.New("no suitable resource found in discovered provider cards")
)

// Discoverer probes discovery URLs for provider cards.
type Discoverer interface {
	Discover(ctx context.Context, baseURLs []string) []model.ProviderRecord
}

// Fetcher retrieves a target resource, handling any payment challenge.
type Fetcher interface {
	Fetch(ctx context.Context, target *model.Target) (*model.FetchResult, error)
}

// RunRequest is a normalized run payload. Zero values select the defaults.
type RunRequest struct {
	Query         string   `json:"query"`
	DiscoveryURLs []string `json:"discoveryUrls"`
}

// RunResult is the terminal outcome of a successful run.
type RunResult struct {
	RunID     string             `json:"runId"`
	Provider  string             `json:"provider"`
	Resource  string             `json:"resource"`
	Reason    string             `json:"reason,omitempty"`
	Paid      bool               `json:"paid"`
	PaymentID string             `json:"paymentId,omitempty"`
	Output    string             `json:"output"`
	Result    *model.FetchResult `json:"result"`
}

// Pipeline wires the run stages together. All collaborators are injected so
// tests can substitute fakes for any stage.
type Pipeline struct {
	discoverer Discoverer
	planner    planner.Planner
	fetcher    Fetcher
	events     Sink
	logger     *slog.Logger
}

// New creates a Pipeline.
func New(d Discoverer, p planner.Planner, f Fetcher, events Sink, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		discoverer: d,
		planner:    p,
		fetcher:    f,
		events:     events,
		logger:     logger,
	}
}

// Run executes one discover, choose, fetch cycle and returns the terminal
// outcome. Every run emits progress events while working and exactly one
// Finish or Fail. Errors from the fetch stage pass through unmodified so
// callers can map the error taxonomy onto their own surface.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	runID := uuid.NewString()

	query := req.Query
	if query == "" {
		query = DefaultQuery
	}
	urls := req.DiscoveryURLs
	if len(urls) == 0 {
		urls = []string{config.DefaultDiscoveryURL}
	}

	p.events.Progress(ctx, runID, fmt.Sprintf("%s: %s", msgPlanning, query))
	p.events.Progress(ctx, runID, fmt.Sprintf("%s: %v", msgDiscovering, urls))

	providers := p.discoverer.Discover(ctx, urls)
	if len(providers) == 0 {
		p.events.Fail(ctx, runID, ErrNoProviders.Error())
		return nil, ErrNoProviders
	}

	p.events.Progress(ctx, runID, msgSelecting)

	selection, err := p.planner.ChooseTarget(ctx, query, providers)
	if err != nil {
		// A planner failure means no selection, not a broken run.
		p.logger.WarnContext(ctx, "planner failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
		selection = nil
	}
	if selection == nil {
		p.events.Fail(ctx, runID, ErrNoTarget.Error())
		return nil, ErrNoTarget
	}

	target, err := paywall.ResolveTarget(providers, selection)
	if err != nil {
		p.events.Fail(ctx, runID, fmt.Sprintf("%s: %s", ErrNoTarget.Error(), err))
		return nil, err
	}

	p.events.Progress(ctx, runID, fmt.Sprintf("Selected: %s (%s)", target.Provider.Name, target.Provider.BaseURL))
	p.events.Progress(ctx, runID, msgFetching)

	result, err := p.fetcher.Fetch(ctx, target)
	if err != nil {
		p.events.Fail(ctx, runID, fmt.Sprintf("fetch failed: %s", err))
		return nil, err
	}
	if result == nil || !result.OK {
		err := model.NewInternalError("run", errors.New("fetch returned no result"))
		p.events.Fail(ctx, runID, err.Error())
		return nil, err
	}

	output := paywall.FormatResult(result)
	p.events.Finish(ctx, runID, artifactName, output)

	return &RunResult{
		RunID:     runID,
		Provider:  target.Provider.Name,
		Resource:  target.Resource.URL,
		Reason:    selection.Reason,
		Paid:      result.Paid,
		PaymentID: result.PaymentID,
		Output:    output,
		Result:    result,
	}, nil
}
