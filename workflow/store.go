package workflow

import (
	"github.com/google/uuid"
)

// Store creates workflow state documents and produces snapshots for
// observers. State lives in memory only; nothing survives the process.
type Store struct {
	clock Clock
}

// NewStore constructs a Store. A nil clock defaults to the system clock.
func NewStore(clock Clock) *Store {
	if clock == nil {
		clock = SystemClock()
	}
	return &Store{clock: clock}
}

// Create builds a fresh pending state document for the request. The request's
// CreatedAt is stamped here if the caller left it zero.
func (st *Store) Create(req Request) *State {
	now := st.clock.Now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	return &State{
		WorkflowID: uuid.NewString(),
		Request:    req,
		Status:     StatusPending,
		Context:    make(map[string]any),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Snapshot returns a deep copy of the state safe to hand to observers while
// the executor keeps mutating the original.
func (st *Store) Snapshot(s *State) *State {
	return s.Clone()
}
