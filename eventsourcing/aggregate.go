package eventsourcing

import (
	"fmt"
	"time"
)

// Aggregate is the sealed contract every aggregate root must satisfy
// (§3/§4.B). The mutating methods are unexported so the only way to
// obtain a legal implementation is to embed AggregateRoot — mirroring the
// "mutable only via apply" invariant at the type-system level.
type Aggregate interface {
	ID() string
	SequenceNumber() int
	UncommittedEvents() []Event
	ClearEvents()

	setID(string)
	setSequenceNumber(int)
	appendUncommitted(Event)

	// HandlerFor returns the apply function registered for eventType, or
	// false if this aggregate type has no handler for that variant.
	// Dispatch is variant-exact — no inheritance-based lookup (§4.B).
	HandlerFor(eventType string) (func(Event) error, bool)
}

// AggregateRoot is the embeddable base every concrete aggregate type uses
// to satisfy Aggregate. It tracks identity, the next sequence number, and
// the events raised since the last commit.
type AggregateRoot struct {
	id             string
	sequenceNumber int
	uncommitted    []Event
}

// Init sets up a fresh aggregate: id, sequence_number = 1, empty
// uncommitted events (§4.B "new(id)").
func (a *AggregateRoot) Init(id string) {
	a.id = id
	a.sequenceNumber = 1
	a.uncommitted = nil
}

func (a *AggregateRoot) ID() string             { return a.id }
func (a *AggregateRoot) SequenceNumber() int    { return a.sequenceNumber }
func (a *AggregateRoot) setID(id string)        { a.id = id }
func (a *AggregateRoot) setSequenceNumber(n int) { a.sequenceNumber = n }

func (a *AggregateRoot) UncommittedEvents() []Event {
	out := make([]Event, len(a.uncommitted))
	copy(out, a.uncommitted)
	return out
}

func (a *AggregateRoot) ClearEvents() { a.uncommitted = nil }

func (a *AggregateRoot) appendUncommitted(e Event) {
	a.uncommitted = append(a.uncommitted, e)
}

// LoadFromHistory rehydrates an aggregate of type T from its full event
// history, bypassing any application-level constructor (§4.B: "Rehydration
// bypasses any application-level constructor logic"). newEmpty must return
// a bare zero-value *T — e.g. `func() *Order { return &Order{} }` — never
// one produced by a business constructor, since that constructor might
// itself emit creation events that must not be re-emitted on rehydrate.
func LoadFromHistory[T Aggregate](events []Event, newEmpty func() T) (T, error) {
	var zero T
	if len(events) == 0 {
		return zero, ErrEmptyHistory
	}

	agg := newEmpty()
	agg.setID(events[0].Meta().AggregateID)

	for _, e := range events {
		handler, ok := agg.HandlerFor(e.EventType())
		if !ok {
			return zero, fmt.Errorf("%w: %s", ErrMissingHandler, e.EventType())
		}
		if err := handler(e); err != nil {
			return zero, err
		}
	}

	agg.setSequenceNumber(len(events) + 1)
	return agg, nil
}

// Apply builds the event's meta (aggregate_id, sequence_number, created_at
// defaulted to now when zero), dispatches it through the aggregate's
// handler table to mutate state, appends it to uncommitted_events, and
// increments sequence_number (§4.B).
func Apply(a Aggregate, event Event) error {
	handler, ok := a.HandlerFor(event.EventType())
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingHandler, event.EventType())
	}

	meta := event.Meta()
	meta.AggregateID = a.ID()
	meta.SequenceNumber = a.SequenceNumber()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}

	if err := handler(event); err != nil {
		return err
	}

	a.appendUncommitted(event)
	a.setSequenceNumber(a.SequenceNumber() + 1)
	return nil
}
