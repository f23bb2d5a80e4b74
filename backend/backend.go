// Package backend holds the simulated systems of record the workflow tools
// act on: a CRM, a document store, an account system and a notification
// channel. All four are in-memory, mutex-guarded and safe for concurrent
// workflows. They are seeded from Fixtures so demos and tests are
// reproducible.
package backend

import (
	"fmt"

	"github.com/wealthdesk/agentflow/events"
	"github.com/wealthdesk/agentflow/workflow"
)

// Backends aggregates the simulated systems a tool registry dispatches to.
type Backends struct {
	CRM       *CRM
	Documents *DocumentStore
	Accounts  *AccountSystem
	Notifier  *Notifier
}

// Options configures backend construction.
type Options struct {
	// Clock stamps account and notification timestamps. Defaults to the
	// system clock.
	Clock workflow.Clock
	// Bus, when set, receives a notification event for every Notifier.Send.
	Bus *events.Bus
}

// New builds the backend set from fixtures. A nil fx yields empty systems.
func New(fx *Fixtures, opts Options) (*Backends, error) {
	clock := opts.Clock
	if clock == nil {
		clock = workflow.SystemClock()
	}
	if fx == nil {
		fx = &Fixtures{}
	}

	clients := make(map[string]Client, len(fx.Clients))
	for _, cf := range fx.Clients {
		if cf.ID == "" {
			return nil, fmt.Errorf("client fixture %q missing id", cf.Name)
		}
		if _, dup := clients[cf.ID]; dup {
			return nil, fmt.Errorf("duplicate client fixture %s", cf.ID)
		}
		clients[cf.ID] = cf.Client
	}

	docs := make(map[string]map[string]Document)
	for _, df := range fx.Documents {
		if df.ClientID == "" || df.Type == "" {
			return nil, fmt.Errorf("document fixture missing client_id or type")
		}
		byType, ok := docs[df.ClientID]
		if !ok {
			byType = make(map[string]Document)
			docs[df.ClientID] = byType
		}
		byType[df.Type] = Document(df.Fields)
	}

	accounts := NewAccountSystem(clock)
	for _, af := range fx.Accounts {
		if err := accounts.Seed(af.ClientID, af.AccountType, af.Number); err != nil {
			return nil, fmt.Errorf("seed account: %w", err)
		}
	}

	return &Backends{
		CRM:       NewCRM(clients),
		Documents: NewDocumentStore(docs),
		Accounts:  accounts,
		Notifier:  NewNotifier(clock, opts.Bus),
	}, nil
}
