package outbox_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/eventcore/eventsourcing"
	"github.com/fastygo/eventcore/outbox"
)

func openTestStore(t *testing.T) *outbox.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outbox.db")
	store, err := outbox.Open(path, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Enqueue assigns an id and timestamp when the caller leaves them blank,
// and GetBatch returns what was staged without removing it.
func TestStore_EnqueueThenGetBatch(t *testing.T) {
	store := openTestStore(t)

	item := outbox.Item{AggregateID: "t-1", EventType: "task.created", EventJSON: json.RawMessage(`{}`)}
	require.NoError(t, store.Enqueue(item))

	batch, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "t-1", batch[0].AggregateID)
	assert.NotEmpty(t, batch[0].ID)
	assert.False(t, batch[0].Timestamp.IsZero())

	again, err := store.GetBatch(10)
	require.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestStore_Remove(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Enqueue(outbox.Item{AggregateID: "t-1"}))

	batch, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	require.NoError(t, store.Remove(batch[0]))

	remaining, err := store.GetBatch(10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

// Requeue bumps the retry count and re-stamps the timestamp, keeping the
// item in the buffer under a fresh key.
func TestStore_Requeue(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Enqueue(outbox.Item{AggregateID: "t-1"}))

	batch, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	require.NoError(t, store.Requeue(batch[0]))

	after, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, 1, after[0].Retries)
}

func TestStore_Size(t *testing.T) {
	store := openTestStore(t)
	count, err := store.Size()
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, store.Enqueue(outbox.Item{AggregateID: "a"}))
	require.NoError(t, store.Enqueue(outbox.Item{AggregateID: "b"}))

	count, err = store.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// Cleanup removes items whose timestamp predates the cutoff and leaves
// newer ones untouched.
func TestStore_Cleanup(t *testing.T) {
	store := openTestStore(t)

	old := time.Now().Add(-time.Hour)
	require.NoError(t, store.Enqueue(outbox.Item{AggregateID: "old", Timestamp: old}))
	require.NoError(t, store.Enqueue(outbox.Item{AggregateID: "fresh", Timestamp: time.Now()}))

	require.NoError(t, store.Cleanup(time.Now().Add(-time.Minute)))

	remaining, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "fresh", remaining[0].AggregateID)
}

type stagedStubEvent struct {
	eventsourcing.EventMeta
	Label string `es:"string"`
}

func (stagedStubEvent) EventType() string                     { return "stub.staged" }
func (e *stagedStubEvent) Meta() *eventsourcing.EventMeta      { return &e.EventMeta }

// Stage serializes the event and records the handler error message as
// diagnostics on the staged item.
func TestStore_Stage(t *testing.T) {
	store := openTestStore(t)
	ev := &stagedStubEvent{Label: "x"}
	ev.AggregateID = "t-1"
	ev.SequenceNumber = 2
	ev.CreatedAt = time.Now()

	require.NoError(t, store.Stage(context.Background(), ev, errHandlerExploded{}))

	batch, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "t-1", batch[0].AggregateID)
	assert.Equal(t, "stub.staged", batch[0].EventType)
	assert.Equal(t, "handler exploded", batch[0].LastError)
}

type errHandlerExploded struct{}

func (errHandlerExploded) Error() string { return "handler exploded" }
