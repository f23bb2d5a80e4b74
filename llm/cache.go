package llm

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wealthdesk/agentflow/workflow"
)

const defaultCacheSize = 512

// Cache stores decisions keyed by inference fingerprint. Implementations
// must tolerate concurrent use and treat every failure as a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*Decision, bool)
	Set(ctx context.Context, key string, d *Decision)
}

type memoryEntry struct {
	decision Decision
	expires  time.Time
}

// MemoryCache is an in-process LRU decision cache with optional TTL.
type MemoryCache struct {
	entries *lru.Cache[string, memoryEntry]
	ttl     time.Duration
	clock   workflow.Clock
}

// NewMemoryCache builds a MemoryCache holding up to size entries. A zero or
// negative size falls back to the default; a zero ttl disables expiry; a nil
// clock uses the system clock.
func NewMemoryCache(size int, ttl time.Duration, clock workflow.Clock) (*MemoryCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	if clock == nil {
		clock = workflow.SystemClock()
	}
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("llm: build decision cache: %w", err)
	}
	return &MemoryCache{entries: entries, ttl: ttl, clock: clock}, nil
}

// Get returns a copy of the cached decision, expiring stale entries on read.
func (m *MemoryCache) Get(ctx context.Context, key string) (*Decision, bool) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return nil, false
	}
	if m.ttl > 0 && m.clock.Now().After(entry.expires) {
		m.entries.Remove(key)
		return nil, false
	}
	return entry.decision.clone(), true
}

// Set stores a copy of the decision so later mutations by the caller cannot
// leak into cache hits.
func (m *MemoryCache) Set(ctx context.Context, key string, d *Decision) {
	if d == nil {
		return
	}
	entry := memoryEntry{decision: *d.clone()}
	if m.ttl > 0 {
		entry.expires = m.clock.Now().Add(m.ttl)
	}
	m.entries.Add(key, entry)
}
