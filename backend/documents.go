package backend

import (
	"sort"
	"strings"
	"sync"
)

// Document is a free-form client document record.
type Document map[string]any

// DocumentStore simulates document storage keyed by (client id, doc type).
// Lookups normalize common doc type variations ("driver's license",
// "tax return") onto the stored names before resolving.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]Document
}

// NewDocumentStore builds a store from fixture documents keyed client id ->
// doc type -> document.
func NewDocumentStore(docs map[string]map[string]Document) *DocumentStore {
	store := make(map[string]map[string]Document, len(docs))
	for clientID, byType := range docs {
		store[clientID] = make(map[string]Document, len(byType))
		for docType, doc := range byType {
			store[clientID][docType] = cloneDocument(doc)
		}
	}
	return &DocumentStore{docs: store}
}

// NormalizeDocType maps common doc type variations onto the canonical stored
// names. Unrecognized types pass through unchanged.
func NormalizeDocType(docType string) string {
	dt := strings.ToLower(strings.TrimSpace(docType))
	switch {
	case strings.Contains(dt, "driver"), strings.Contains(dt, "license"):
		return "drivers_license"
	case strings.Contains(dt, "tax"), strings.Contains(dt, "return"), strings.Contains(dt, "income"):
		return "tax_return_2023"
	case strings.Contains(dt, "application"),
		strings.Contains(dt, "ira") && strings.Contains(dt, "form"):
		return "ira_application"
	case dt == "roth_ira", dt == "traditional_ira", dt == "roth ira", dt == "traditional ira":
		return "ira_application"
	}
	return docType
}

// Get returns a copy of the document or a NotFoundError. The doc type is
// normalized before lookup.
func (d *DocumentStore) Get(clientID, docType string) (Document, error) {
	normalized := NormalizeDocType(docType)
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.docs[clientID][normalized]
	if !ok {
		return nil, &NotFoundError{Entity: "document", ID: normalized, ClientID: clientID}
	}
	return cloneDocument(doc), nil
}

// List returns the stored doc types for a client in sorted order.
func (d *DocumentStore) List(clientID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	byType, ok := d.docs[clientID]
	if !ok {
		return nil
	}
	types := make([]string, 0, len(byType))
	for docType := range byType {
		types = append(types, docType)
	}
	sort.Strings(types)
	return types
}

// Upsert stores the document under the normalized doc type, replacing any
// existing record, and returns a copy of what was stored. Create is an
// idempotent upsert.
func (d *DocumentStore) Upsert(clientID, docType string, data Document) Document {
	normalized := NormalizeDocType(docType)
	stored := cloneDocument(data)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.docs[clientID] == nil {
		d.docs[clientID] = make(map[string]Document)
	}
	d.docs[clientID][normalized] = stored
	return cloneDocument(stored)
}

// Update replaces an existing document and returns a copy of the stored
// record, or a NotFoundError when no document of that type exists for the
// client.
func (d *DocumentStore) Update(clientID, docType string, data Document) (Document, error) {
	normalized := NormalizeDocType(docType)
	stored := cloneDocument(data)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.docs[clientID][normalized]; !ok {
		return nil, &NotFoundError{Entity: "document", ID: normalized, ClientID: clientID}
	}
	d.docs[clientID][normalized] = stored
	return cloneDocument(stored), nil
}

func cloneDocument(doc Document) Document {
	if doc == nil {
		return Document{}
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneDocValue(v)
	}
	return out
}

func cloneDocValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = cloneDocValue(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneDocValue(e)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
