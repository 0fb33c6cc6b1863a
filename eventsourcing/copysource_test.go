package eventsourcing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordCopySource is unexported, so this file tests it directly rather
// than through ReplaySession.Commit's pool-bound bulk path.

func TestRecordCopySource_ValuesReturnsEveryColumnInOrder(t *testing.T) {
	recs := []*Record{
		newRecord("tasks", map[string]any{"title": "a", "priority": 1}),
		newRecord("tasks", map[string]any{"title": "b", "priority": 2}),
	}
	src := newRecordCopySource([]string{"priority", "title"}, recs)

	require.True(t, src.Next())
	values, err := src.Values()
	require.NoError(t, err)
	assert.Equal(t, []any{1, "a"}, values)

	require.True(t, src.Next())
	values, err = src.Values()
	require.NoError(t, err)
	assert.Equal(t, []any{2, "b"}, values)

	assert.False(t, src.Next())
	assert.NoError(t, src.Err())
}

// A record in the batch that never declared one of the batch's union
// columns (columnsFor) aborts the copy instead of silently writing NULL
// for a column this record never set (spec.md:144/185's CSV-source
// abort contract).
func TestRecordCopySource_MissingColumnAbortsCopy(t *testing.T) {
	recs := []*Record{
		newRecord("tasks", map[string]any{"title": "a", "priority": 1}),
		newRecord("tasks", map[string]any{"title": "b"}),
	}
	src := newRecordCopySource([]string{"priority", "title"}, recs)

	require.True(t, src.Next())
	_, err := src.Values()
	require.NoError(t, err)

	require.True(t, src.Next())
	_, err = src.Values()
	require.Error(t, err)
	assert.Same(t, err, src.Err())

	assert.False(t, src.Next(), "Next must stop iteration once err is set")
}
