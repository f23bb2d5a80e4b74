package backend

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wealthdesk/agentflow/workflow"
)

// Account is one opened account.
type Account struct {
	Number    string    `json:"account_number"`
	ClientID  string    `json:"client_id"`
	Type      string    `json:"account_type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountSystem simulates the account management backend. Account numbers
// are monotonically increasing per process, formatted <ACCOUNT_TYPE>-<N>
// starting at 1000. At most one account of a given type may exist per
// client; the uniqueness check and the open are a single transaction under
// the store mutex, so concurrent workflows cannot both win.
type AccountSystem struct {
	mu       sync.Mutex
	clock    workflow.Clock
	next     int
	accounts map[string]Account // keyed by account number
}

const firstAccountNumber = 1000

// NewAccountSystem builds an empty account system. A nil clock defaults to
// the system clock.
func NewAccountSystem(clock workflow.Clock) *AccountSystem {
	if clock == nil {
		clock = workflow.SystemClock()
	}
	return &AccountSystem{
		clock:    clock,
		next:     firstAccountNumber,
		accounts: make(map[string]Account),
	}
}

// Open creates a new account of the given type for the client. It returns a
// ConflictError carrying the existing account number when the client already
// holds an account of that type.
func (a *AccountSystem) Open(clientID, accountType string) (Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, acct := range a.accounts {
		if acct.ClientID == clientID && acct.Type == accountType {
			return Account{}, &ConflictError{ClientID: clientID, AccountType: accountType, Existing: acct.Number}
		}
	}
	number := fmt.Sprintf("%s-%d", strings.ToUpper(accountType), a.next)
	a.next++
	acct := Account{
		Number:    number,
		ClientID:  clientID,
		Type:      accountType,
		Status:    "active",
		CreatedAt: a.clock.Now(),
	}
	a.accounts[number] = acct
	return acct, nil
}

// Seed installs a pre-existing account, e.g. from fixtures. The number
// counter advances past the seeded number so later opens stay unique.
func (a *AccountSystem) Seed(clientID, accountType, number string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.accounts[number]; dup {
		return fmt.Errorf("account %s already seeded", number)
	}
	a.accounts[number] = Account{
		Number:    number,
		ClientID:  clientID,
		Type:      accountType,
		Status:    "active",
		CreatedAt: a.clock.Now(),
	}
	if idx := strings.LastIndex(number, "-"); idx >= 0 {
		if n, err := strconv.Atoi(number[idx+1:]); err == nil && n >= a.next {
			a.next = n + 1
		}
	}
	return nil
}

// Get returns the account with the given number or a NotFoundError.
func (a *AccountSystem) Get(number string) (Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.accounts[number]
	if !ok {
		return Account{}, &NotFoundError{Entity: "account", ID: number}
	}
	return acct, nil
}

// List returns all accounts sorted by account number.
func (a *AccountSystem) List() []Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Account, 0, len(a.accounts))
	for _, acct := range a.accounts {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
