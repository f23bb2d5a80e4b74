package backend

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Fixtures describes the seed data for the simulated backends. Fixture files
// are YAML with three top-level lists: clients, documents and accounts.
type Fixtures struct {
	Clients   []ClientFixture   `yaml:"clients" json:"clients"`
	Documents []DocumentFixture `yaml:"documents" json:"documents"`
	Accounts  []AccountFixture  `yaml:"accounts" json:"accounts"`
}

// ClientFixture seeds one CRM record.
type ClientFixture struct {
	ID     string `yaml:"id" json:"id"`
	Client `yaml:",inline"`
}

// DocumentFixture seeds one document on file for a client. Type is stored as
// given; lookups normalize aliases, so fixtures should use canonical names.
type DocumentFixture struct {
	ClientID string         `yaml:"client_id" json:"client_id"`
	Type     string         `yaml:"type" json:"type"`
	Fields   map[string]any `yaml:"fields" json:"fields"`
}

// AccountFixture seeds one already-open account.
type AccountFixture struct {
	ClientID    string `yaml:"client_id" json:"client_id"`
	AccountType string `yaml:"account_type" json:"account_type"`
	Number      string `yaml:"number" json:"number"`
}

// LoadFixtures parses a YAML fixture file. Unknown fields are rejected so
// typos in hand-written fixtures surface early.
func LoadFixtures(r io.Reader) (*Fixtures, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var fx Fixtures
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &fx, nil
}

// DefaultFixtures returns the built-in demo dataset: two clients able to
// complete an IRA opening end to end, one over the Roth income limit, one
// with an incomplete application, and one who already holds a Roth IRA.
func DefaultFixtures() *Fixtures {
	return &Fixtures{
		Clients: []ClientFixture{
			{ID: "john_smith_123", Client: Client{
				Name:             "John Smith",
				Age:              45,
				Email:            "john@example.com",
				Income:           145000,
				ExistingAccounts: []string{"checking", "brokerage"},
			}},
			{ID: "test_client_complete", Client: Client{
				Name:             "Test Client Complete",
				Age:              35,
				Email:            "test@example.com",
				Income:           120000,
				ExistingAccounts: []string{},
			}},
			{ID: "rachel_kim_452", Client: Client{
				Name:             "Rachel Kim",
				Age:              41,
				Email:            "rachel.kim@example.com",
				Income:           210000,
				ExistingAccounts: []string{"brokerage"},
			}},
			{ID: "omar_haddad_710", Client: Client{
				Name:             "Omar Haddad",
				Age:              29,
				Email:            "omar.haddad@example.com",
				Income:           98000,
				ExistingAccounts: []string{"checking"},
			}},
			{ID: "dana_wells_204", Client: Client{
				Name:             "Dana Wells",
				Age:              52,
				Email:            "dana.wells@example.com",
				Income:           131000,
				ExistingAccounts: []string{"roth_ira"},
			}},
		},
		Documents: []DocumentFixture{
			{ClientID: "john_smith_123", Type: "drivers_license", Fields: map[string]any{
				"status": "valid", "uploaded": true, "verified": true,
			}},
			{ClientID: "john_smith_123", Type: "tax_return_2023", Fields: map[string]any{
				"status": "valid", "income": 145000, "year": 2023,
			}},
			{ClientID: "john_smith_123", Type: "ira_application", Fields: map[string]any{
				"status": "submitted", "signature_page3": true, "submitted": true,
			}},
			{ClientID: "test_client_complete", Type: "drivers_license", Fields: map[string]any{
				"status": "valid", "uploaded": true, "verified": true,
			}},
			{ClientID: "test_client_complete", Type: "tax_return_2023", Fields: map[string]any{
				"status": "valid", "income": 120000, "year": 2023,
			}},
			{ClientID: "test_client_complete", Type: "ira_application", Fields: map[string]any{
				"status": "submitted", "signature_page3": true, "submitted": true,
			}},
			{ClientID: "rachel_kim_452", Type: "tax_return_2023", Fields: map[string]any{
				"status": "valid", "income": 210000, "year": 2023,
			}},
			{ClientID: "rachel_kim_452", Type: "ira_application", Fields: map[string]any{
				"status": "submitted", "signature_page3": true, "submitted": true,
			}},
			// Unsigned application and a stale tax return: validation fails
			// on the signature before eligibility ever becomes the issue.
			{ClientID: "omar_haddad_710", Type: "tax_return_2023", Fields: map[string]any{
				"status": "valid", "income": 98000, "year": 2022,
			}},
			{ClientID: "omar_haddad_710", Type: "ira_application", Fields: map[string]any{
				"status": "draft", "signature_page3": false, "submitted": false,
			}},
			{ClientID: "dana_wells_204", Type: "tax_return_2023", Fields: map[string]any{
				"status": "valid", "income": 131000, "year": 2023,
			}},
			{ClientID: "dana_wells_204", Type: "ira_application", Fields: map[string]any{
				"status": "submitted", "signature_page3": true, "submitted": true,
			}},
		},
		Accounts: []AccountFixture{
			{ClientID: "dana_wells_204", AccountType: "roth_ira", Number: "ROTH_IRA-1001"},
		},
	}
}
