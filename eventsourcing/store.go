package eventsourcing

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
)

// Handler is any object that can receive a single event during fan-out or
// replay (§6 "Handler interface").
type Handler interface {
	HandleMessage(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) HandleMessage(ctx context.Context, event Event) error { return f(ctx, event) }

// StoreConfig is the {record_class, event_handler_classes} configuration
// named in §4.D/§4.F: the event registry used to decode rows, and the set
// of handlers invoked on fan-out and replay.
type StoreConfig struct {
	Registry *Registry
	Handlers []Handler
	// Buffer, when set, receives events whose handler fan-out failed so
	// an external scheduler can retry them later (§9 design note on
	// crash/partial-delivery recovery). Leaving it nil reproduces
	// spec.md's plain behavior: HandlerError surfaced, nothing staged.
	Buffer FailureSink
}

// FailureSink durably stages an event that a handler failed to process,
// for later retry by a process outside the EventStore itself. The
// eventsourcing package never retries on its own; staging is the entire
// contract.
type FailureSink interface {
	Stage(ctx context.Context, event Event, handlerErr error) error
}

// EventStore is the durable append-only log with handler fan-out (§4.D).
type EventStore interface {
	Loader
	Committer
	ReplayEvents(ctx context.Context, supplier RawEventSupplier) error
	Configure(cfg StoreConfig)
}

// RawEventRow is a single persisted event row, prior to decoding, as
// produced by a stream supplier for ReplayEvents.
type RawEventRow struct {
	ID             string
	AggregateID    string
	SequenceNumber int
	EventType      string
	EventJSON      []byte
	CreatedAt      string
}

// ReplayOrdering resolves the §9 open question about whether
// ReplayEvents' handlers may assume per-aggregate ordering only, or a
// total order across the whole stream. It is a configuration choice on
// the supplier, not a guess made by the core.
type ReplayOrdering int

const (
	// PerAggregateOrder guarantees events for the same aggregate arrive
	// in sequence_number order, but makes no promise about interleaving
	// across different aggregates.
	PerAggregateOrder ReplayOrdering = iota
	// GlobalStreamOrder guarantees a single total order across every
	// aggregate, matching durable insertion order.
	GlobalStreamOrder
)

// RawEventSupplier streams raw event rows for a full replay (§4.D
// replay_events). Ordering() documents which guarantee the stream makes;
// handlers that require a specific ordering can check it and refuse to
// run otherwise.
type RawEventSupplier interface {
	Ordering() ReplayOrdering
	Next(ctx context.Context) (RawEventRow, bool, error)
}

// configHolder publishes StoreConfig atomically (§4.F/§5: "Reconfiguration
// must atomically publish a new instance; readers see either fully the
// old or fully the new configuration, never a torn view").
type configHolder struct {
	v atomic.Pointer[StoreConfig]
}

func (h *configHolder) store(cfg StoreConfig) { h.v.Store(&cfg) }

func (h *configHolder) load() StoreConfig {
	p := h.v.Load()
	if p == nil {
		return StoreConfig{Registry: NewRegistry()}
	}
	return *p
}

// fanOut dispatches events to every configured handler in order,
// collecting every failure rather than stopping at the first (§7
// HandlerError "surfaced to caller", enriched here to name every handler
// that failed, not just the first one — via go-multierror). It also
// returns the subset of events that had at least one failing handler, so
// a caller configured with an outbox buffer can stage exactly those for
// retry rather than the whole batch.
func fanOut(ctx context.Context, handlers []Handler, events []Event) ([]Event, error) {
	var result *multierror.Error
	var failed []Event
	for _, h := range handlers {
		for _, e := range events {
			if err := h.HandleMessage(ctx, e); err != nil {
				result = multierror.Append(result, err)
				failed = append(failed, e)
			}
		}
	}
	if result != nil {
		return dedupeEvents(failed), &HandlerError{Err: result.ErrorOrNil()}
	}
	return nil, nil
}

func dedupeEvents(events []Event) []Event {
	seen := make(map[Event]struct{}, len(events))
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// decodeCache memoizes the variant-type lookup performed by LoadEvents
// and ReplayEvents. One cache lives for the whole PostgresStore and is
// shared by every call; a cached constructor keeps the Registry it was
// first resolved against.
type decodeCache struct {
	mu    sync.Mutex
	cache map[string]func() Event
}

func newDecodeCache() *decodeCache { return &decodeCache{cache: make(map[string]func() Event)} }

func (d *decodeCache) resolver(reg *Registry, eventType string) (func() Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ctor, ok := d.cache[eventType]; ok {
		return ctor, nil
	}
	// Probe the registry once to confirm eventType is known, then
	// remember a constructor closure for it; each call of that closure
	// still goes through reg.New.
	if _, err := reg.New(eventType); err != nil {
		return nil, err
	}
	ctor := func() Event {
		fresh, _ := reg.New(eventType)
		return fresh
	}
	d.cache[eventType] = ctor
	return ctor, nil
}
