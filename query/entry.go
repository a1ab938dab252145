package query

import (
	"time"
)

// Status is the lifecycle state of a cache entry.
type Status int

const (
	StatusUninitialized Status = iota
	StatusPending
	StatusFulfilled
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFulfilled:
		return "fulfilled"
	case StatusRejected:
		return "rejected"
	default:
		return "uninitialized"
	}
}

type entry struct {
	key string
	op  *Operation
	arg any

	status  Status
	settled Status
	data    any
	err     error
	tags    []Tag

	fulfilledAt time.Time
	stale       bool
	// gen is bumped on every invalidation. A response whose request started
	// under an older gen does not clear stale.
	gen          uint64
	needsRefetch bool
	inflight     int
	subscribers  int

	// changed is closed and replaced on every state change.
	changed chan struct{}
}

func newEntry(key string, op *Operation, arg any) *entry {
	return &entry{
		key:     key,
		op:      op,
		arg:     arg,
		changed: make(chan struct{}),
	}
}

func (e *entry) notify() {
	close(e.changed)
	e.changed = make(chan struct{})
}

func (e *entry) fresh() bool {
	return e.status == StatusFulfilled && !e.stale
}

// done reports whether a waiter can stop waiting: a request has settled and
// no refetch is owed.
func (e *entry) done() bool {
	return (e.status == StatusFulfilled || e.status == StatusRejected) && !e.needsRefetch
}

func (e *entry) snapshot() Snapshot {
	tags := make([]Tag, len(e.tags))
	copy(tags, e.tags)
	return Snapshot{
		Key:         e.key,
		Status:      e.status,
		Data:        e.data,
		Err:         e.err,
		Tags:        tags,
		Stale:       e.stale,
		Fetching:    e.inflight > 0,
		FulfilledAt: e.fulfilledAt,
	}
}

// Snapshot is a point-in-time copy of a cache entry. Data keeps the last
// successful result while a refetch is pending or after it failed.
type Snapshot struct {
	Key         string
	Status      Status
	Data        any
	Err         error
	Tags        []Tag
	Stale       bool
	Fetching    bool
	FulfilledAt time.Time
}

// IsLoading is true while the first request for the entry is in flight.
func (s Snapshot) IsLoading() bool {
	return s.Status == StatusPending && s.FulfilledAt.IsZero()
}

func (s Snapshot) IsSuccess() bool { return s.Status == StatusFulfilled }

func (s Snapshot) IsError() bool { return s.Status == StatusRejected }

// Result is the typed view of a Snapshot.
type Result[T any] struct {
	Status      Status
	Data        T
	Err         error
	Stale       bool
	Fetching    bool
	FulfilledAt time.Time
}

func resultOf[T any](s Snapshot) Result[T] {
	data, _ := s.Data.(T)
	return Result[T]{
		Status:      s.Status,
		Data:        data,
		Err:         s.Err,
		Stale:       s.Stale,
		Fetching:    s.Fetching,
		FulfilledAt: s.FulfilledAt,
	}
}
