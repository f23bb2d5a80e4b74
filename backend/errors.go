package backend

import "fmt"

// NotFoundError reports a missing entity. Entity names the kind ("client",
// "document", "account"); ClientID scopes document lookups.
type NotFoundError struct {
	Entity   string
	ID       string
	ClientID string
}

func (e *NotFoundError) Error() string {
	if e.ClientID != "" {
		return fmt.Sprintf("%s %s not found for client %s", e.Entity, e.ID, e.ClientID)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ConflictError reports an attempt to open a second account of the same type
// for a client. Existing carries the number of the account already on file so
// recovery flows can reference it.
type ConflictError struct {
	ClientID    string
	AccountType string
	Existing    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Client %s already has a %s account: %s", e.ClientID, e.AccountType, e.Existing)
}
