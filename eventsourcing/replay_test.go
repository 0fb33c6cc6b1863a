package eventsourcing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/eventcore/eventsourcing"
)

func newTestSession(indices map[string][]eventsourcing.IndexSpec, timestamped map[string]bool) *eventsourcing.ReplaySession {
	return eventsourcing.NewReplaySession(nil, eventsourcing.SessionConfig{
		Indices:     indices,
		Timestamped: timestamped,
	})
}

// CreateRecord defaults updated_at from created_at only for classes marked
// Timestamped; untouched classes are left alone.
func TestReplaySession_CreateRecord_DefaultsUpdatedAtWhenTimestamped(t *testing.T) {
	session := newTestSession(nil, map[string]bool{"tasks": true})
	now := time.Now()

	rec := session.CreateRecord("tasks", map[string]any{
		"aggregate_id": "t-1",
		"created_at":   now,
	}, nil)

	assert.Equal(t, now, rec.Get("updated_at"))
}

func TestReplaySession_CreateRecord_SkipsUpdatedAtWhenNotTimestamped(t *testing.T) {
	session := newTestSession(nil, nil)
	rec := session.CreateRecord("widgets", map[string]any{"aggregate_id": "w-1"}, nil)
	assert.Nil(t, rec.Get("updated_at"))
}

// A single aggregate_id key hits the direct index shortcut in FindRecords.
func TestReplaySession_FindRecords_AggregateIDShortcut(t *testing.T) {
	session := newTestSession(nil, nil)
	session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-1", "title": "a"}, nil)
	session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-2", "title": "b"}, nil)

	found := session.FindRecords("tasks", map[string]any{"aggregate_id": "t-1"})
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].Get("title"))

	assert.Empty(t, session.FindRecords("tasks", map[string]any{"aggregate_id": "missing"}))
}

// A where-clause whose keys exactly match a declared composite index's
// column tuple hits that index rather than falling through to a scan.
func TestReplaySession_FindRecords_DeclaredCompositeIndex(t *testing.T) {
	session := newTestSession(map[string][]eventsourcing.IndexSpec{
		"tasks": {{"owner_id", "status"}},
	}, nil)
	session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-1", "owner_id": "u-1", "status": "pending"}, nil)
	session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-2", "owner_id": "u-1", "status": "done"}, nil)
	session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-3", "owner_id": "u-2", "status": "pending"}, nil)

	found := session.FindRecords("tasks", map[string]any{"owner_id": "u-1", "status": "pending"})
	require.Len(t, found, 1)
	assert.Equal(t, "t-1", found[0].Get("aggregate_id"))
}

// A where-clause that matches no declared index falls back to a linear
// scan, matching every key by equality.
func TestReplaySession_FindRecords_LinearScanFallback(t *testing.T) {
	session := newTestSession(nil, nil)
	session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-1", "priority": 1}, nil)
	session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-2", "priority": 1}, nil)
	session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-3", "priority": 2}, nil)

	found := session.FindRecords("tasks", map[string]any{"priority": 1})
	assert.Len(t, found, 2)
}

// UpdateRecord fails with ErrRecordNotFound when no record matches, and
// otherwise mutates the one match in place and stamps bookkeeping columns.
func TestReplaySession_UpdateRecord(t *testing.T) {
	session := newTestSession(nil, map[string]bool{"tasks": true})
	session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-1", "title": "old", "created_at": time.Now()}, nil)

	ev := &fakeEventMeta{aggregateID: "t-1", sequenceNumber: 4, createdAt: time.Now()}
	err := session.UpdateRecord("tasks", ev, map[string]any{"aggregate_id": "t-1"}, eventsourcing.UpdateOptions{}, func(r *eventsourcing.Record) {
		r.Set("title", "new")
	})
	require.NoError(t, err)

	rec := session.FindRecords("tasks", map[string]any{"aggregate_id": "t-1"})[0]
	assert.Equal(t, "new", rec.Get("title"))
	assert.Equal(t, 4, rec.Get("sequence_number"))
	assert.Equal(t, ev.createdAt, rec.Get("updated_at"))

	err = session.UpdateRecord("tasks", ev, map[string]any{"aggregate_id": "missing"}, eventsourcing.UpdateOptions{}, nil)
	assert.ErrorIs(t, err, eventsourcing.ErrRecordNotFound)
}

func TestReplaySession_UpdateRecord_CanSkipSequenceStamp(t *testing.T) {
	session := newTestSession(nil, nil)
	session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-1"}, nil)

	skip := false
	ev := &fakeEventMeta{aggregateID: "t-1", sequenceNumber: 9}
	opts := eventsourcing.UpdateOptions{UpdateSequenceNumber: &skip}
	err := session.UpdateRecord("tasks", ev, map[string]any{"aggregate_id": "t-1"}, opts, nil)
	require.NoError(t, err)

	rec := session.FindRecords("tasks", map[string]any{"aggregate_id": "t-1"})[0]
	assert.Nil(t, rec.Get("sequence_number"))
}

// CreateOrUpdateRecord returns the record matching every key/value of
// values (applying customize to it) and otherwise creates a fresh record
// stamped with the supplied created_at.
func TestReplaySession_CreateOrUpdateRecord(t *testing.T) {
	session := newTestSession(nil, nil)
	now := time.Now()

	created := session.CreateOrUpdateRecord("counters", map[string]any{"aggregate_id": "c-1", "value": 1}, now, nil)
	assert.Equal(t, now, created.Get("created_at"))

	updated := session.CreateOrUpdateRecord("counters", map[string]any{"aggregate_id": "c-1", "value": 1}, now, func(r *eventsourcing.Record) {
		r.Set("value", 2)
	})
	assert.Same(t, created, updated)
	assert.Equal(t, 2, updated.Get("value"))
}

func TestReplaySession_DeleteRecord_RemovesFromStoreAndIndex(t *testing.T) {
	session := newTestSession(map[string][]eventsourcing.IndexSpec{
		"tasks": {{"owner_id"}},
	}, nil)
	rec := session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-1", "owner_id": "u-1"}, nil)

	session.DeleteRecord("tasks", rec)

	assert.Empty(t, session.FindRecords("tasks", map[string]any{"aggregate_id": "t-1"}))
	assert.Empty(t, session.FindRecords("tasks", map[string]any{"owner_id": "u-1"}))
}

func TestReplaySession_DeleteAllRecords(t *testing.T) {
	session := newTestSession(nil, nil)
	a := session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-1"}, nil)
	b := session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-2"}, nil)

	session.DeleteAllRecords("tasks", []*eventsourcing.Record{a, b})

	var count int
	session.DoWithRecords("tasks", func(*eventsourcing.Record) { count++ })
	assert.Zero(t, count)
}

func TestReplaySession_UpdateAllRecords(t *testing.T) {
	session := newTestSession(nil, nil)
	session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-1", "status": "pending"}, nil)
	session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-2", "status": "pending"}, nil)

	session.UpdateAllRecords("tasks", map[string]any{"status": "pending"}, map[string]any{"status": "archived"})

	var statuses []any
	session.DoWithRecords("tasks", func(r *eventsourcing.Record) { statuses = append(statuses, r.Get("status")) })
	assert.ElementsMatch(t, []any{"archived", "archived"}, statuses)
}

func TestReplaySession_LastRecord(t *testing.T) {
	session := newTestSession(nil, nil)
	assert.Nil(t, session.LastRecord("tasks", map[string]any{"status": "pending"}))

	session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-1", "status": "pending"}, nil)
	last := session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-2", "status": "pending"}, nil)

	assert.Same(t, last, session.LastRecord("tasks", map[string]any{"status": "pending"}))
}

// Clear drops every staged record and index entry.
func TestReplaySession_Clear(t *testing.T) {
	session := newTestSession(nil, nil)
	session.CreateRecord("tasks", map[string]any{"aggregate_id": "t-1"}, nil)
	session.Clear()

	assert.Empty(t, session.FindRecords("tasks", map[string]any{"aggregate_id": "t-1"}))
}

type fakeEventMeta struct {
	aggregateID    string
	sequenceNumber int
	createdAt      time.Time
}

func (f *fakeEventMeta) EventType() string { return "fake.event" }

func (f *fakeEventMeta) Meta() *eventsourcing.EventMeta {
	return &eventsourcing.EventMeta{
		AggregateID:    f.aggregateID,
		SequenceNumber: f.sequenceNumber,
		CreatedAt:      f.createdAt,
	}
}

var _ eventsourcing.Event = (*fakeEventMeta)(nil)
