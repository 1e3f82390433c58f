// Package identity builds and parses the Payer-Agent header that identifies
// this agent to providers on every outbound call, and identifies callers of
// the agent's own API. The header is an RFC 8941 Structured Field Dictionary:
//
//	Payer-Agent: agent="paywall-agent";version="1.0"
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
)

// Header is the header name carried on outbound provider calls and accepted
// on inbound run requests.
const Header = "Payer-Agent"

// AgentName and AgentVersion identify this build.
const (
	AgentName    = "paywall-agent"
	AgentVersion = "1.0"
)

// Info identifies an agent from a parsed Payer-Agent header.
type Info struct {
	Agent   string
	Version string
}

// Value renders the Payer-Agent header for this agent.
func Value() string {
	item := httpsfv.NewItem(AgentName)
	item.Params.Add("version", AgentVersion)
	dict := httpsfv.NewDictionary()
	dict.Add("agent", item)

	v, err := httpsfv.Marshal(dict)
	if err != nil {
		return fmt.Sprintf("agent=%q", AgentName)
	}
	return v
}

// Parse extracts the agent identity from a Payer-Agent header.
// Returns an error if the header is empty, malformed, or missing the agent key.
func Parse(header string) (*Info, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, errors.New("empty Payer-Agent header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return nil, fmt.Errorf("invalid Payer-Agent header: %w", err)
	}

	member, ok := dict.Get("agent")
	if !ok {
		return nil, errors.New("agent key not found in Payer-Agent header")
	}

	item, ok := member.(httpsfv.Item)
	if !ok {
		return nil, errors.New("agent value must be an item")
	}

	name, ok := item.Value.(string)
	if !ok {
		return nil, errors.New("agent value must be a string")
	}

	info := &Info{Agent: name}
	if v, ok := item.Params.Get("version"); ok {
		if ver, ok := v.(string); ok {
			info.Version = ver
		}
	}
	return info, nil
}
