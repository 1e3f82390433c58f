package paywall

import (
	"fmt"

	"paywall-agent/internal/model"
)

// FormatResult renders a successful fetch result as a human-readable summary:
// whether payment occurred, the payment identifier if any, and the payload.
func FormatResult(result *model.FetchResult) string {
	pid := result.PaymentID
	if pid == "" {
		pid = "none"
	}
	return fmt.Sprintf("paid=%t paymentId=%s\n\n%s", result.Paid, pid, string(result.Data))
}
