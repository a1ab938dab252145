package flowstate

import (
	"errors"
	"sync"
	"time"

	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
)

// DefaultMaxAge bounds how long a login attempt may take.
const DefaultMaxAge = 10 * time.Minute

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu     sync.RWMutex
	states map[string]*FlowState
	maxAge time.Duration
	now    func() time.Time
}

// NewInMemoryRepo creates a new in-memory flow state repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		states: make(map[string]*FlowState),
		maxAge: DefaultMaxAge,
		now:    time.Now,
	}
}

// Upsert stores or updates a flow state and drops expired ones
func (r *InMemoryRepo) Upsert(state string, flow *FlowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if flow == nil {
		return errors.New("flow cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range r.states {
		if r.expired(v) {
			delete(r.states, k)
		}
	}
	cp := *flow
	r.states[state] = &cp
	return nil
}

// Get retrieves a flow state by state parameter
func (r *InMemoryRepo) Get(state string) (*FlowState, error) {
	if state == "" {
		return nil, apperrors.ErrInvalidState
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, exists := r.states[state]
	if !exists || r.expired(flow) {
		return nil, apperrors.ErrInvalidState
	}
	cp := *flow
	return &cp, nil
}

// Delete removes a flow state
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, state)
	return nil
}

func (r *InMemoryRepo) expired(flow *FlowState) bool {
	return !flow.CreatedAt.IsZero() && r.now().Sub(flow.CreatedAt) > r.maxAge
}
