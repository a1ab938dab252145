package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
	"github.com/bh-premnath-git/bhadminui/transport"
)

// Kind distinguishes read operations from writes.
type Kind int

const (
	KindQuery Kind = iota
	KindMutation
)

func (k Kind) String() string {
	if k == KindMutation {
		return "mutation"
	}
	return "query"
}

// Operation is a registered endpoint descriptor. Build maps the argument to a
// transport request, Decode turns a 2xx body into the result, and Tags
// returns the tags a query provides or a mutation invalidates.
type Operation struct {
	Kind   Kind
	Name   string
	Build  func(arg any) (transport.Request, error)
	Decode func(data []byte) (any, error)
	Tags   func(result any, arg any) []Tag
}

// Registry is the closed set of operations a Store can run.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]*Operation
}

func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Operation)}
}

// Register adds op. Names are unique across queries and mutations.
func (r *Registry) Register(op Operation) error {
	if op.Name == "" || op.Build == nil || op.Decode == nil {
		return fmt.Errorf("operation %q: name, Build and Decode are required", op.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ops[op.Name]; ok {
		return fmt.Errorf("%w: %s", apperrors.ErrDuplicateOperation, op.Name)
	}
	r.ops[op.Name] = &op
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(op Operation) {
	if err := r.Register(op); err != nil {
		panic(err)
	}
}

// Lookup returns the operation called name if it has the given kind.
func (r *Registry) Lookup(name string, kind Kind) (*Operation, error) {
	r.mu.RLock()
	op, ok := r.ops[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownOperation, name)
	}
	if op.Kind != kind {
		return nil, fmt.Errorf("%w: %s is a %s", apperrors.ErrWrongKind, name, op.Kind)
	}
	return op, nil
}

// Operations lists every registered operation ordered by name.
func (r *Registry) Operations() []Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]Operation, 0, len(r.ops))
	for _, op := range r.ops {
		ops = append(ops, *op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// QueryDef is a typed handle to a registered query.
type QueryDef[A, T any] struct {
	name string
}

func (q QueryDef[A, T]) Name() string { return q.name }

// DefineQuery registers a read operation. provides computes the tags of a
// result; it is called with the zero T when the request failed. Panics if
// name is already registered.
func DefineQuery[A, T any](r *Registry, name string, build func(A) transport.Request, provides func(result T, arg A) []Tag) QueryDef[A, T] {
	r.MustRegister(Operation{
		Kind:   KindQuery,
		Name:   name,
		Build:  typedBuild(name, build),
		Decode: decodeAs[T],
		Tags: func(result any, arg any) []Tag {
			if provides == nil {
				return nil
			}
			t, _ := result.(T)
			a, _ := arg.(A)
			return provides(t, a)
		},
	})
	return QueryDef[A, T]{name: name}
}

// Subscribe is the typed form of Store.Subscribe.
func (q QueryDef[A, T]) Subscribe(s *Store, arg A) (*TypedSubscription[T], error) {
	sub, err := s.Subscribe(q.name, arg)
	if err != nil {
		return nil, err
	}
	return &TypedSubscription[T]{Subscription: sub}, nil
}

// Fetch is the typed form of Store.Query.
func (q QueryDef[A, T]) Fetch(ctx context.Context, s *Store, arg A) (Result[T], error) {
	snap, err := s.Query(ctx, q.name, arg)
	if err != nil {
		return Result[T]{}, err
	}
	return resultOf[T](snap), nil
}

// MutationDef is a typed handle to a registered mutation.
type MutationDef[A, T any] struct {
	name string
}

func (m MutationDef[A, T]) Name() string { return m.name }

// DefineMutation registers a write operation. invalidates computes the tags
// to invalidate from the argument alone, since responses do not always carry
// enough to know which lists are affected. Panics if name is already
// registered.
func DefineMutation[A, T any](r *Registry, name string, build func(A) transport.Request, invalidates func(arg A) []Tag) MutationDef[A, T] {
	r.MustRegister(Operation{
		Kind:   KindMutation,
		Name:   name,
		Build:  typedBuild(name, build),
		Decode: decodeAs[T],
		Tags: func(_ any, arg any) []Tag {
			if invalidates == nil {
				return nil
			}
			a, _ := arg.(A)
			return invalidates(a)
		},
	})
	return MutationDef[A, T]{name: name}
}

// Trigger runs the mutation and returns the typed result.
func (m MutationDef[A, T]) Trigger(ctx context.Context, s *Store, arg A) (T, error) {
	var zero T
	res, err := s.Mutate(ctx, m.name, arg)
	if err != nil {
		return zero, err
	}
	t, _ := res.(T)
	return t, nil
}

// Use returns a mutation handle that tracks the state of its last call.
func (m MutationDef[A, T]) Use(s *Store) (*Mutation, error) {
	return s.UseMutation(m.name)
}

func typedBuild[A any](name string, build func(A) transport.Request) func(any) (transport.Request, error) {
	return func(arg any) (transport.Request, error) {
		a, ok := arg.(A)
		if !ok {
			var want A
			return transport.Request{}, fmt.Errorf("operation %s expects %T, got %T", name, want, arg)
		}
		return build(a), nil
	}
}

func decodeAs[T any](data []byte) (any, error) {
	var out T
	if err := transport.Decode(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// cacheKey derives the entry key from the request arg builds, so arguments
// that produce the same request share an entry.
func cacheKey(op *Operation, arg any) (string, error) {
	req, err := op.Build(arg)
	if err != nil {
		return "", err
	}
	key := op.Name + " " + req.Method + " " + req.Path
	if len(req.Query) > 0 {
		key += "?" + req.Query.Encode()
	}
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return "", fmt.Errorf("operation %s: body not serializable: %w", op.Name, err)
		}
		key += " " + string(b)
	}
	return key, nil
}
