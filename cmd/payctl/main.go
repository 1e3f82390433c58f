// payctl is a CLI tool for testing the paywall agent.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	payctl discover -agent URL -url <discovery-url>[,<discovery-url>...]
//	payctl fetch -agent URL [-discovery <url>,...] [-query TEXT]
//	payctl health -agent URL
//
// Examples:
//
//	payctl discover -agent http://localhost:9001 -url http://localhost:8787
//	payctl fetch -agent http://localhost:9001 -query "premium weather forecast"
//	DATA=$(payctl fetch -agent http://localhost:9001 -query "forecast" -q)
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var client = &http.Client{Timeout: 120 * time.Second}

// Global flags (apply to all commands)
var (
	agentURL string
	quiet    bool
	noColor  bool
	verbose  bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen = "", "", ""
	colorYellow, colorCyan, colorGray, colorBold = "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "discover":
		runDiscover(args)
	case "fetch":
		runFetch(args)
	case "health":
		runHealth(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `payctl - paywall agent test tool

Usage:
  payctl <command> [options]

Commands:
  discover  Probe discovery URLs and list provider cards
  fetch     Run the full discover/choose/fetch cycle via the agent
  health    Check agent health

Examples:
  # List providers at a discovery endpoint
  payctl discover -agent http://localhost:9001 -url http://localhost:8787

  # Fetch a paywalled resource end to end
  payctl fetch -agent http://localhost:9001 -query "premium weather forecast"

  # Capture the fetched data for scripting
  DATA=$(payctl fetch -query "forecast" -q)

Run 'payctl <command> -h' for command-specific options.
`)
}

// =============================================================================
// DISCOVER COMMAND
// =============================================================================

func runDiscover(args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	fs.StringVar(&agentURL, "agent", "http://localhost:9001", "Paywall agent base URL")
	var urls string
	fs.StringVar(&urls, "url", "", "Comma-separated discovery URLs (required)")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output provider names")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: payctl discover -url <discovery-url>[,...] [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}

	if urls == "" {
		fs.Usage()
		os.Exit(1)
	}

	reqBody := map[string]interface{}{
		"discoveryUrls": splitList(urls),
	}

	resp, err := doRequest("POST", "/discover", reqBody)
	if err != nil {
		fatal("Failed to discover providers: %v", err)
	}

	providers, _ := resp["providers"].([]interface{})
	if quiet {
		for _, p := range providers {
			if pMap, ok := p.(map[string]interface{}); ok {
				fmt.Println(pMap["name"])
			}
		}
		return
	}

	if len(providers) == 0 {
		printWarning("No providers discovered")
		return
	}

	printSuccess("Discovered %d provider(s)", len(providers))
	for _, p := range providers {
		pMap, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Printf("  %s%s%s (%s)\n", colorCyan, pMap["name"], colorReset, pMap["baseUrl"])

		card, _ := pMap["card"].(map[string]interface{})
		resources, _ := card["resources"].([]interface{})
		for _, r := range resources {
			rMap, ok := r.(map[string]interface{})
			if !ok {
				continue
			}
			marker := " "
			if paywall, ok := rMap["paywall"].(map[string]interface{}); ok {
				if paywall["protocol"] == "x402" {
					marker = fmt.Sprintf("%s$%s", colorYellow, colorReset)
				}
			}
			fmt.Printf("    %s %s  %s%s%s\n", marker, rMap["url"], colorGray, rMap["description"], colorReset)
		}
	}
}

// =============================================================================
// FETCH COMMAND
// =============================================================================

func runFetch(args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	fs.StringVar(&agentURL, "agent", "http://localhost:9001", "Paywall agent base URL")
	var discovery, query string
	fs.StringVar(&discovery, "discovery", "", "Comma-separated discovery URLs (agent default if empty)")
	fs.StringVar(&query, "query", "", "What to fetch, in natural language")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output resource data")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: payctl fetch [-discovery <url>,...] [-query TEXT] [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}

	reqBody := map[string]interface{}{}
	if query != "" {
		reqBody["query"] = query
	}
	if discovery != "" {
		reqBody["discoveryUrls"] = splitList(discovery)
	}

	resp, err := doRequest("POST", "/runs", reqBody)
	if err != nil {
		fatal("Run failed: %v", err)
	}

	if quiet {
		if result, ok := resp["result"].(map[string]interface{}); ok {
			data, _ := json.Marshal(result["data"])
			fmt.Println(string(data))
		}
		return
	}

	paid, _ := resp["paid"].(bool)
	printSuccess("Resource fetched")
	fmt.Printf("  Run:      %s%s%s\n", colorGray, resp["runId"], colorReset)
	fmt.Printf("  Provider: %s%s%s (%s)\n", colorCyan, resp["provider"], colorReset, resp["resource"])
	if reason, ok := resp["reason"].(string); ok && reason != "" {
		fmt.Printf("  Reason:   %s\n", reason)
	}
	if paid {
		fmt.Printf("  Paid:     %syes%s (payment %s)\n", colorYellow, colorReset, resp["paymentId"])
	} else {
		fmt.Printf("  Paid:     no\n")
	}
	if output, ok := resp["output"].(string); ok {
		fmt.Printf("\n%s\n", output)
	}
}

// =============================================================================
// HEALTH COMMAND
// =============================================================================

func runHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	fs.StringVar(&agentURL, "agent", "http://localhost:9001", "Paywall agent base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output status")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Parse(args)

	if noColor {
		disableColors()
	}

	resp, err := doRequest("GET", "/health", nil)
	if err != nil {
		fatal("Health check failed: %v", err)
	}

	status, _ := resp["status"].(string)
	if quiet {
		fmt.Println(status)
	} else {
		printSuccess("Agent healthy: %s", status)
	}
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func doRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	reqURL := strings.TrimSuffix(agentURL, "/") + path
	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Payer-Agent", `agent="payctl";version="1.0"`)

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return result, nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}

	output := pretty.String()
	if !verbose {
		lines := strings.Split(output, "\n")
		if len(lines) > 30 {
			lines = append(lines[:25], fmt.Sprintf("%s  %s(%d more lines, use -v for full output)%s", prefix, colorGray, len(lines)-25, colorReset))
			output = strings.Join(lines, "\n")
		}
	}
	fmt.Println(output)
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
