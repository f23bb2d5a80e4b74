package tools

import (
	"fmt"

	"github.com/wealthdesk/agentflow/backend"
)

// validateDocument checks a document for completeness. The doc type is
// normalized first so aliases ("IRA application", "roth_ira") validate under
// the canonical rules. Types without rules validate clean.
func (r *Registry) validateDocument(params map[string]any) (map[string]any, error) {
	clientID, err := stringParam(params, "client_id")
	if err != nil {
		return nil, err
	}
	docType, err := stringParam(params, "doc_type")
	if err != nil {
		return nil, err
	}
	doc, err := r.backends.Documents.Get(clientID, docType)
	if err != nil {
		return nil, err
	}

	findings := []string{}
	warnings := []string{}
	switch backend.NormalizeDocType(docType) {
	case "ira_application":
		if !boolField(doc, "signature_page3") {
			findings = append(findings, "Missing signature on page 3")
		}
		if !boolField(doc, "submitted") {
			warnings = append(warnings, "Application not yet submitted")
		}
		if status, _ := doc["status"].(string); status != "submitted" {
			warnings = append(warnings, fmt.Sprintf("Application status is '%s', expected 'submitted'", status))
		}
	case "tax_return_2023":
		if intField(doc, "income") == 0 {
			findings = append(findings, "Income information missing")
		}
		if intField(doc, "year") != 2023 {
			findings = append(findings, "Tax return year must be 2023")
		}
	}

	return map[string]any{
		"valid":    len(findings) == 0,
		"errors":   findings,
		"warnings": warnings,
		"document": map[string]any(doc),
	}, nil
}

func boolField(doc backend.Document, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

// intField reads a numeric field that may arrive as an int from fixtures or
// as a float64 from decoded JSON.
func intField(doc backend.Document, key string) int {
	switch v := doc[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
