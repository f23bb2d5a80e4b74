package tools

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wealthdesk/agentflow/backend"
)

// rothIncomeLimit is the 2024 single-filer Roth IRA income limit.
const rothIncomeLimit = 161000

var usdPrinter = message.NewPrinter(language.English)

func usd(n int) string { return usdPrinter.Sprintf("$%d", n) }

// checkEligibility verifies the client may open the requested product. Roth
// IRA eligibility is income-based and reads the filed tax return rather than
// the CRM record; a missing return means income cannot be verified, which is
// reported as ineligibility, not as an error.
func (r *Registry) checkEligibility(params map[string]any) (map[string]any, error) {
	clientID, err := stringParam(params, "client_id")
	if err != nil {
		return nil, err
	}
	productType, err := stringParam(params, "product_type")
	if err != nil {
		return nil, err
	}
	if _, err := r.backends.CRM.Get(clientID); err != nil {
		return nil, err
	}

	if strings.ToLower(productType) != "roth_ira" {
		return map[string]any{
			"eligible": true,
			"reason":   fmt.Sprintf("No income restrictions for %s", productType),
		}, nil
	}

	taxDoc, err := r.backends.Documents.Get(clientID, "tax_return_2023")
	if err != nil {
		var notFound *backend.NotFoundError
		if errors.As(err, &notFound) {
			return map[string]any{
				"eligible": false,
				"reason":   "No tax return found for income verification",
			}, nil
		}
		return nil, err
	}

	income := intField(taxDoc, "income")
	if income >= rothIncomeLimit {
		return map[string]any{
			"eligible": false,
			"reason":   fmt.Sprintf("Income %s exceeds Roth IRA limit of %s", usd(income), usd(rothIncomeLimit)),
			"income":   income,
			"limit":    rothIncomeLimit,
		}, nil
	}
	return map[string]any{
		"eligible": true,
		"reason":   fmt.Sprintf("Income %s is within Roth IRA limit", usd(income)),
		"income":   income,
		"limit":    rothIncomeLimit,
	}, nil
}
