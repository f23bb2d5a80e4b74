package backend

import "sync"

// Client is one CRM record. The engine reads these; it never writes them.
type Client struct {
	Name             string   `yaml:"name" json:"name"`
	Age              int      `yaml:"age" json:"age"`
	Email            string   `yaml:"email" json:"email"`
	Income           int      `yaml:"income" json:"income"`
	ExistingAccounts []string `yaml:"existing_accounts" json:"existing_accounts"`
}

// CRM simulates the customer system of record with pre-seeded fixture data.
type CRM struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewCRM builds a CRM holding the given clients keyed by id.
func NewCRM(clients map[string]Client) *CRM {
	store := make(map[string]Client, len(clients))
	for id, c := range clients {
		c.ExistingAccounts = append([]string(nil), c.ExistingAccounts...)
		store[id] = c
	}
	return &CRM{clients: store}
}

// Get returns a copy of the client record or a NotFoundError.
func (c *CRM) Get(clientID string) (Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	client, ok := c.clients[clientID]
	if !ok {
		return Client{}, &NotFoundError{Entity: "client", ID: clientID}
	}
	client.ExistingAccounts = append([]string(nil), client.ExistingAccounts...)
	return client, nil
}
