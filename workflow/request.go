package workflow

import "strings"

// AccountTypeFor derives the product type implied by a request type tag,
// e.g. "open_roth_ira" -> "roth_ira". IRA-family requests without a clearer
// hint default to roth_ira, matching the sample scenario catalog.
func AccountTypeFor(requestType string) string {
	rt := strings.ToLower(requestType)
	switch {
	case strings.Contains(rt, "traditional"):
		return "traditional_ira"
	case strings.Contains(rt, "rollover"):
		return "rollover_ira"
	}
	return "roth_ira"
}
