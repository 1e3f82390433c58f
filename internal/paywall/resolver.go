// Package paywall implements the x402 paywall flow: resolving an oracle
// selection into a concrete fetch target, negotiating the
// GET/402/sign/settle/retry sequence, and formatting the outcome.
package paywall

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"paywall-agent/internal/model"
)

// MaxProtocolVersion is the highest x402 paywall version this agent settles.
// Cards may declare a paywall version; newer majors are rejected at resolve
// time rather than failing mid-settlement.
const MaxProtocolVersion = "v1"

// ResolveTarget validates a selection against the discovered providers and
// returns a concrete, self-contained Target. The input providers slice is
// never mutated; resolving the same inputs twice yields equal Targets.
func ResolveTarget(providers []model.ProviderRecord, selection *model.Selection) (*model.Target, error) {
	const op = "resolve"

	if selection == nil || selection.ProviderIndex == nil || selection.ResourceIndex == nil {
		return nil, model.NewValidationError(op, "selection", "missing providerIndex or resourceIndex")
	}

	pi := *selection.ProviderIndex
	ri := *selection.ResourceIndex

	if pi < 0 || pi >= len(providers) {
		return nil, model.NewValidationError(op, "providerIndex",
			fmt.Sprintf("%d out of range [0,%d)", pi, len(providers)))
	}

	provider := providers[pi]
	resources := provider.Card.Resources

	if ri < 0 || ri >= len(resources) {
		return nil, model.NewValidationError(op, "resourceIndex",
			fmt.Sprintf("%d out of range [0,%d)", ri, len(resources)))
	}

	resource := resources[ri]
	if !resource.IsX402() {
		protocol := "none"
		if resource.Paywall != nil {
			protocol = resource.Paywall.Protocol
		}
		return nil, model.NewValidationError(op, "paywall.protocol",
			fmt.Sprintf("%q is not supported (want %s)", protocol, model.X402Protocol))
	}

	if v := resource.Paywall.Version; v != "" && !versionSupported(v) {
		return nil, model.NewValidationError(op, "paywall.version",
			fmt.Sprintf("%q is newer than supported %s", v, MaxProtocolVersion))
	}

	return &model.Target{
		Provider: provider,
		Resource: resource,
	}, nil
}

// versionSupported reports whether a declared paywall version is within the
// major version this agent implements. Non-semver declarations fall back to
// string equality against the supported major.
func versionSupported(declared string) bool {
	v := declared
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return declared == strings.TrimPrefix(MaxProtocolVersion, "v")
	}
	return semver.Compare(semver.Major(v), MaxProtocolVersion) <= 0
}
