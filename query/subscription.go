package query

import (
	"context"
	"sync"
)

// Subscription keeps a cache entry alive and refreshed. Close it when the
// result is no longer displayed.
type Subscription struct {
	store *Store
	key   string
	once  sync.Once
}

func (s *Subscription) Key() string { return s.key }

func (s *Subscription) Snapshot() Snapshot {
	snap, _, _, _ := s.store.snapshot(s.key)
	return snap
}

// Changed returns a channel that is closed on the next state change.
func (s *Subscription) Changed() <-chan struct{} {
	_, ch, _, err := s.store.snapshot(s.key)
	if err != nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return ch
}

// Wait blocks until the entry has settled: a request completed and no
// refetch is owed.
func (s *Subscription) Wait(ctx context.Context) (Snapshot, error) {
	for {
		snap, changed, done, err := s.store.snapshot(s.key)
		if err != nil || done {
			return snap, err
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Refetch requests the entry again. It joins a request already in flight.
func (s *Subscription) Refetch() {
	s.store.refetch(s.key)
}

// Close releases the subscription. When the last subscriber leaves the entry
// is kept for the keep-unused period and then evicted.
func (s *Subscription) Close() {
	s.once.Do(func() { s.store.release(s.key) })
}

// TypedSubscription is a Subscription whose data is decoded as T.
type TypedSubscription[T any] struct {
	*Subscription
}

func (s *TypedSubscription[T]) Result() Result[T] {
	return resultOf[T](s.Snapshot())
}

func (s *TypedSubscription[T]) WaitResult(ctx context.Context) (Result[T], error) {
	snap, err := s.Wait(ctx)
	return resultOf[T](snap), err
}

// MutationState is the state of a Mutation's most recent call.
type MutationState struct {
	Loading bool
	Data    any
	Err     error
}

// Mutation tracks the calls made through one mutation handle.
type Mutation struct {
	store *Store
	name  string

	mu    sync.Mutex
	state MutationState
}

func (m *Mutation) Trigger(ctx context.Context, arg any) (any, error) {
	m.mu.Lock()
	m.state = MutationState{Loading: true}
	m.mu.Unlock()

	data, err := m.store.Mutate(ctx, m.name, arg)

	m.mu.Lock()
	m.state = MutationState{Data: data, Err: err}
	m.mu.Unlock()
	return data, err
}

func (m *Mutation) State() MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
