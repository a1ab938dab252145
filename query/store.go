// Package query is a keyed, tag-invalidated cache of backend responses.
//
// Queries are registered once in a Registry and run through a Store. Each
// distinct (operation, argument) pair owns one cache entry. Concurrent
// fetches of the same entry share a single request. A successful mutation
// marks every entry carrying one of its tags as stale, and entries that still
// have subscribers are refetched. Entries without subscribers are evicted
// after the keep-unused period.
package query

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
	"github.com/bh-premnath-git/bhadminui/transport"
)

const (
	DefaultKeepUnusedDataFor = 60 * time.Second
	DefaultMaxUnusedEntries  = 256
)

// TokenSource supplies the bearer credential attached to each request. An
// empty token means the request is sent without an Authorization header.
type TokenSource interface {
	AccessToken(ctx context.Context) string
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) string

func (f TokenSourceFunc) AccessToken(ctx context.Context) string { return f(ctx) }

type Store struct {
	registry *Registry
	client   *transport.Client
	tokens   TokenSource
	metrics  *Metrics
	log      zerolog.Logger
	now      func() time.Time

	keepUnused time.Duration
	maxUnused  int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	flight singleflight.Group
	// unused holds keys of entries with no subscribers. Its methods must not
	// be called while mu is held, because the eviction callback takes mu.
	unused *expirable.LRU[string, struct{}]
}

type StoreOption func(*Store)

func WithTokenSource(ts TokenSource) StoreOption {
	return func(s *Store) { s.tokens = ts }
}

func WithMetrics(m *Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

func WithStoreLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

// WithKeepUnusedDataFor sets how long an entry without subscribers is kept.
func WithKeepUnusedDataFor(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.keepUnused = d
		}
	}
}

// WithMaxUnusedEntries caps the number of entries without subscribers.
func WithMaxUnusedEntries(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxUnused = n
		}
	}
}

func NewStore(reg *Registry, client *transport.Client, opts ...StoreOption) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		registry:   reg,
		client:     client,
		log:        log.Logger.With().Str("component", "query").Logger(),
		now:        time.Now,
		keepUnused: DefaultKeepUnusedDataFor,
		maxUnused:  DefaultMaxUnusedEntries,
		ctx:        ctx,
		cancel:     cancel,
		entries:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	s.unused = expirable.NewLRU[string, struct{}](s.maxUnused, s.onEvict, s.keepUnused)
	return s
}

// Registry returns the operations this store can run.
func (s *Store) Registry() *Registry { return s.registry }

// Subscribe registers interest in the result of the query name(arg). If no
// fresh result is cached a request is started; concurrent callers share it.
func (s *Store) Subscribe(name string, arg any) (*Subscription, error) {
	op, err := s.registry.Lookup(name, KindQuery)
	if err != nil {
		return nil, err
	}
	key, err := cacheKey(op, arg)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperrors.ErrStoreClosed
	}
	e, ok := s.entries[key]
	if !ok {
		e = newEntry(key, op, arg)
		s.entries[key] = e
	}
	e.subscribers++
	if e.fresh() {
		s.metrics.CacheHits.WithLabelValues(name).Inc()
	} else {
		s.fetchLocked(e)
	}
	s.mu.Unlock()

	s.unused.Remove(key)
	return &Subscription{store: s, key: key}, nil
}

// Query returns the result of name(arg), waiting for a request only when no
// fresh result is cached. A failed request is reported in Snapshot.Err; the
// returned error is reserved for unknown operations and ctx cancellation.
func (s *Store) Query(ctx context.Context, name string, arg any) (Snapshot, error) {
	sub, err := s.Subscribe(name, arg)
	if err != nil {
		return Snapshot{}, err
	}
	defer sub.Close()
	return sub.Wait(ctx)
}

// Mutate runs the mutation name(arg). On success every entry carrying one of
// the mutation's tags is invalidated. A failed mutation invalidates nothing.
// Mutations are never de-duplicated.
func (s *Store) Mutate(ctx context.Context, name string, arg any) (any, error) {
	op, err := s.registry.Lookup(name, KindMutation)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, apperrors.ErrStoreClosed
	}

	result, err := s.execute(ctx, op, arg)
	if err != nil {
		s.log.Debug().Err(err).Str("operation", name).Msg("mutation failed")
		return nil, err
	}
	s.Invalidate(name, op.Tags(result, arg))
	return result, nil
}

// UseMutation returns a handle for the mutation name that records the state
// of its most recent call.
func (s *Store) UseMutation(name string) (*Mutation, error) {
	if _, err := s.registry.Lookup(name, KindMutation); err != nil {
		return nil, err
	}
	return &Mutation{store: s, name: name}, nil
}

// Invalidate marks every entry providing any of tags as stale and refetches
// those that have subscribers. source labels the metric.
func (s *Store) Invalidate(source string, tags []Tag) {
	if len(tags) == 0 {
		return
	}
	set := newTagSet(tags)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !set.intersects(e.tags) {
			continue
		}
		n++
		e.stale = true
		e.gen++
		if e.subscribers > 0 {
			e.needsRefetch = true
			s.fetchLocked(e)
		} else {
			e.notify()
		}
	}
	if n > 0 {
		s.metrics.Invalidations.WithLabelValues(source).Add(float64(n))
		s.log.Debug().Str("source", source).Int("entries", n).Msg("invalidated")
	}
}

// Len reports the number of cache entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close cancels in-flight requests and drops every entry.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.unused.Purge()

	s.mu.Lock()
	for _, e := range s.entries {
		e.notify()
	}
	s.entries = make(map[string]*entry)
	s.mu.Unlock()
}

// fetchLocked starts, or joins, the request for e. Must be called with mu
// held. singleflight collapses concurrent calls for the same key.
func (s *Store) fetchLocked(e *entry) {
	joined := e.inflight > 0
	e.inflight++
	if e.status != StatusPending {
		e.status = StatusPending
		e.notify()
	}
	key := e.key
	ch := s.flight.DoChan(key, func() (any, error) {
		return nil, s.run(key)
	})
	go func() {
		res := <-ch
		if joined && res.Shared {
			s.metrics.SharedResults.WithLabelValues(e.op.Name).Inc()
		}
		s.settle(key)
	}()
}

// run performs one request for the entry under key and records the outcome.
func (s *Store) run(key string) error {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || s.closed {
		s.mu.Unlock()
		return apperrors.ErrStoreClosed
	}
	gen := e.gen
	op, arg := e.op, e.arg
	s.mu.Unlock()

	result, err := s.execute(s.ctx, op, arg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[key] != e {
		return err
	}
	if err != nil {
		e.status = StatusRejected
		e.err = err
	} else {
		e.status = StatusFulfilled
		e.data = result
		e.err = nil
		e.fulfilledAt = s.now()
	}
	e.settled = e.status
	e.tags = op.Tags(result, arg)
	if e.gen == gen {
		e.stale = false
		e.needsRefetch = false
	}
	e.notify()
	return err
}

// settle runs once per fetchLocked call after its request has completed. It
// restores the status when the call joined a request that had already
// finished, and issues the single follow-up request owed to an invalidation
// that arrived while a request was in flight.
func (s *Store) settle(key string) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.inflight--
	if e.needsRefetch && e.subscribers > 0 && !s.closed {
		e.needsRefetch = false
		s.fetchLocked(e)
	} else if e.needsRefetch && e.subscribers == 0 {
		e.needsRefetch = false
	}
	if e.inflight == 0 && e.status == StatusPending {
		e.status = e.settled
		e.notify()
	}
	idle := e.inflight == 0 && e.subscribers == 0 && !s.closed
	s.mu.Unlock()

	if idle {
		s.unused.Add(key, struct{}{})
	}
}

func (s *Store) execute(ctx context.Context, op *Operation, arg any) (any, error) {
	req, err := op.Build(arg)
	if err != nil {
		return nil, err
	}
	var token string
	if s.tokens != nil {
		token = s.tokens.AccessToken(ctx)
	}
	header := transport.BearerHeader(token)
	body, err := s.client.Do(ctx, req, header)
	if err != nil {
		s.metrics.Requests.WithLabelValues(op.Name, op.Kind.String(), "error").Inc()
		return nil, err
	}
	result, err := op.Decode(body)
	if err != nil {
		s.metrics.Requests.WithLabelValues(op.Name, op.Kind.String(), "error").Inc()
		return nil, err
	}
	s.metrics.Requests.WithLabelValues(op.Name, op.Kind.String(), "ok").Inc()
	return result, nil
}

func (s *Store) onEvict(key string, _ struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.subscribers > 0 || e.inflight > 0 {
		return
	}
	delete(s.entries, key)
	s.metrics.Evictions.Inc()
	s.log.Debug().Str("key", key).Msg("evicted unused entry")
}

func (s *Store) release(key string) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.subscribers--
	idle := e.subscribers == 0 && e.inflight == 0 && !s.closed
	s.mu.Unlock()

	if idle {
		s.unused.Add(key, struct{}{})
	}
}

func (s *Store) snapshot(key string) (Snapshot, <-chan struct{}, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		if s.closed {
			return Snapshot{Key: key}, nil, true, apperrors.ErrStoreClosed
		}
		return Snapshot{Key: key}, nil, true, apperrors.ErrNotFound
	}
	return e.snapshot(), e.changed, e.done(), nil
}

func (s *Store) refetch(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && !s.closed {
		s.fetchLocked(e)
	}
}
