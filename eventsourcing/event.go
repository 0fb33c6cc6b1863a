package eventsourcing

import (
	"fmt"
	"reflect"
	"sync"
	"time"
)

// EventMeta carries the mandatory fields every Event must have (§3):
// aggregate_id, sequence_number, created_at. event_type is derived from
// the concrete Go type via Event.EventType() rather than stored, so it
// cannot drift from the registry key used to decode it.
type EventMeta struct {
	AggregateID    string    `json:"aggregate_id"`
	SequenceNumber int       `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
}

// Event is implemented by every event variant. Concrete types embed
// EventMeta and declare their payload fields with `es:"..."` tags.
type Event interface {
	EventType() string
	Meta() *EventMeta
}

// Payload projects an event down to the fields used for equality (§6):
// aggregate_id, sequence_number, and tenant-scoping fields are excluded,
// but event_type is included.
func Payload(e Event) (map[string]any, error) {
	attrs, err := ToTree(e)
	if err != nil {
		return nil, err
	}
	stripTenantFields(e, attrs)
	attrs["event_type"] = e.EventType()
	return attrs, nil
}

func stripTenantFields(e Event, attrs map[string]any) {
	rv := reflect.ValueOf(e)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		rawTag, ok := sf.Tag.Lookup("es")
		if !ok {
			continue
		}
		spec, ok := parseTag(rawTag)
		if !ok || !spec.tenant {
			continue
		}
		delete(attrs, jsonName(sf))
	}
}

// SerializeEvent produces the full wire JSON document for e, per §6:
// {event_type, aggregate_id, sequence_number, created_at, ...payload}.
func SerializeEvent(e Event) (string, error) {
	meta := e.Meta()
	extra := map[string]any{
		"event_type":      e.EventType(),
		"aggregate_id":    meta.AggregateID,
		"sequence_number": meta.SequenceNumber,
		"created_at":      meta.CreatedAt.Format(time.RFC3339),
	}
	return Marshal(e, extra)
}

// DeserializeEvent fills target (a fresh instance of the concrete event
// type, typically from a Registry lookup) from a previously serialized
// tree, including the EventMeta fields.
func DeserializeEvent(target Event, tree map[string]any) error {
	if err := FromTree(target, tree); err != nil {
		return err
	}

	meta := target.Meta()
	if v, ok := tree["aggregate_id"].(string); ok {
		meta.AggregateID = v
	}
	if v, ok := tree["sequence_number"]; ok {
		n, err := coerceInteger(v)
		if err != nil {
			return &SerializationError{Field: "sequence_number", Err: err}
		}
		if n != nil {
			meta.SequenceNumber = *n
		}
	}
	if v, ok := tree["created_at"]; ok {
		t, err := coerceDateTime(v)
		if err != nil {
			return &SerializationError{Field: "created_at", Err: err}
		}
		if t != nil {
			meta.CreatedAt = *t
		}
	}
	return nil
}

// EventsEqual compares two events by their full serialized form: same
// meta, same declared attributes (§8 property 3/Invariant "Equality of two
// deserialized events with identical serialized payload is true").
func EventsEqual(a, b Event) bool {
	if a == nil || b == nil {
		return a == b
	}
	ma, mb := a.Meta(), b.Meta()
	if ma.AggregateID != mb.AggregateID || ma.SequenceNumber != mb.SequenceNumber {
		return false
	}
	if !ma.CreatedAt.Equal(mb.CreatedAt) {
		return false
	}
	if a.EventType() != b.EventType() {
		return false
	}
	return StructurallyEqual(a, b)
}

// Registry maps event_type -> constructor so EventStore.LoadEvents and
// ReplaySession consumers can decode persisted rows (§9 design note:
// "keep a per-variant registry event_type -> constructor").
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]func() Event
}

// NewRegistry returns an empty event-type registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]func() Event)}
}

// Register associates eventType with a constructor producing a fresh,
// zero-valued instance for decode.
func (r *Registry) Register(eventType string, ctor func() Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[eventType] = ctor
}

// New constructs a fresh instance for eventType, or ErrUnknownEventType if
// no constructor was registered — this is the "missing event variant class
// at deserialize" SerializationError case from §7.
func (r *Registry) New(eventType string) (Event, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[eventType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	return ctor(), nil
}

// Decode looks up eventType's constructor and fills it from tree.
func (r *Registry) Decode(eventType string, tree map[string]any) (Event, error) {
	ev, err := r.New(eventType)
	if err != nil {
		return nil, err
	}
	if err := DeserializeEvent(ev, tree); err != nil {
		return nil, err
	}
	return ev, nil
}
