package tokenstore

import (
	"fmt"
	"sync"

	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
)

// InMemoryRepo is an in-memory implementation of Repo
type InMemoryRepo struct {
	mu     sync.RWMutex
	tokens map[string]map[string]Tokens // realm -> clientID -> Tokens
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		tokens: make(map[string]map[string]Tokens),
	}
}

// Upsert creates or replaces the tokens of a client
func (r *InMemoryRepo) Upsert(realm, clientID string, tokens Tokens) error {
	if realm == "" {
		return fmt.Errorf("realm is required")
	}
	if clientID == "" {
		return fmt.Errorf("clientID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[realm]; !ok {
		r.tokens[realm] = make(map[string]Tokens)
	}
	r.tokens[realm][clientID] = tokens
	return nil
}

// Get retrieves the tokens of a client
func (r *InMemoryRepo) Get(realm, clientID string) (Tokens, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[realm][clientID]
	if !ok {
		return Tokens{}, fmt.Errorf("tokens for %s/%s: %w", realm, clientID, apperrors.ErrNotFound)
	}
	return t, nil
}

// Delete removes the tokens of a client
func (r *InMemoryRepo) Delete(realm, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	realmTokens, ok := r.tokens[realm]
	if !ok {
		return nil
	}
	delete(realmTokens, clientID)
	if len(realmTokens) == 0 {
		delete(r.tokens, realm)
	}
	return nil
}
