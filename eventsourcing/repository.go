package eventsourcing

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Command is the minimal shape an EventStore needs to persist the command
// row alongside the events it produced (§4.D schema).
type Command interface {
	CommandType() string
	CommandPayload() ([]byte, error)
}

// Loader fetches an aggregate's full event history from durable storage.
// EventStore satisfies this; Repository depends on the narrow interface so
// it can be tested against a fake.
type Loader interface {
	LoadEvents(ctx context.Context, aggregateID string) ([]Event, error)
}

// Committer persists a command and the events it produced.
type Committer interface {
	CommitEvents(ctx context.Context, command Command, events []Event) error
}

// Repository is a per-command unit of work: an identity map over
// aggregates, bound to the lifetime of a single command (§4.C).
type Repository struct {
	mu      sync.Mutex
	loader  Loader
	commits Committer
	byID    map[string]Aggregate
	order   []string
}

// NewRepository constructs a fresh, empty identity map bound to store for
// loads and commits.
func NewRepository(store interface {
	Loader
	Committer
}) *Repository {
	return &Repository{
		loader:  store,
		commits: store,
		byID:    make(map[string]Aggregate),
	}
}

// AddAggregate inserts agg into the identity map. It fails with
// ErrNonUniqueAggregateID if a different object is already registered
// under the same id (§8 property 5).
func (r *Repository) AddAggregate(agg Aggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := agg.ID()
	if existing, ok := r.byID[id]; ok {
		if !sameInstance(existing, agg) {
			return fmt.Errorf("%w: %s", ErrNonUniqueAggregateID, id)
		}
		return nil
	}

	r.byID[id] = agg
	r.order = append(r.order, id)
	return nil
}

// LoadAggregate returns the aggregate identified by id. If it is already
// present in the identity map, the same in-memory instance is returned
// (§8 property 4) after a runtime type check against expectedType
// (ErrTypeMismatch if it doesn't match, §8 property 6). Otherwise its
// history is fetched from the store, rehydrated via newEmpty, inserted
// into the identity map, and returned.
func LoadAggregate[T Aggregate](ctx context.Context, r *Repository, id string, newEmpty func() T) (T, error) {
	var zero T

	r.mu.Lock()
	if existing, ok := r.byID[id]; ok {
		r.mu.Unlock()
		typed, ok := existing.(T)
		if !ok {
			return zero, fmt.Errorf("%w: aggregate %s is %T, not %T", ErrTypeMismatch, id, existing, zero)
		}
		return typed, nil
	}
	r.mu.Unlock()

	events, err := r.loader.LoadEvents(ctx, id)
	if err != nil {
		return zero, err
	}

	agg, err := LoadFromHistory(events, newEmpty)
	if err != nil {
		return zero, err
	}

	if err := r.AddAggregate(agg); err != nil {
		return zero, err
	}
	return agg, nil
}

// EnsureExists reports whether id can be loaded as expectedType, failing
// with the same errors LoadAggregate would produce.
func EnsureExists[T Aggregate](ctx context.Context, r *Repository, id string, newEmpty func() T) (bool, error) {
	_, err := LoadAggregate(ctx, r, id, newEmpty)
	if err != nil {
		return false, err
	}
	return true, nil
}

// Commit gathers every tracked aggregate's uncommitted events in
// insertion order, submits (command, events) to the store as a single
// unit, and clears uncommitted events on every aggregate (§4.C, §8
// property 7). After Commit returns successfully the repository is
// drained: a second Commit call is a no-op.
func (r *Repository) Commit(ctx context.Context, command Command) error {
	r.mu.Lock()
	var all []Event
	aggs := make([]Aggregate, 0, len(r.order))
	for _, id := range r.order {
		agg := r.byID[id]
		aggs = append(aggs, agg)
		all = append(all, agg.UncommittedEvents()...)
	}
	r.mu.Unlock()

	if len(all) == 0 {
		return nil
	}

	if err := r.commits.CommitEvents(ctx, command, all); err != nil {
		return err
	}

	for _, agg := range aggs {
		agg.ClearEvents()
	}
	return nil
}

func sameInstance(a, b Aggregate) bool {
	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	if va.Kind() == reflect.Pointer && vb.Kind() == reflect.Pointer {
		return va.Pointer() == vb.Pointer()
	}
	return a == b
}
