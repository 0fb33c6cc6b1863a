package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/eventcore/domain"
	"github.com/fastygo/eventcore/eventsourcing"
)

func TestNewTask_RequiresIDOwnerTitle(t *testing.T) {
	_, err := domain.NewTask("", "owner-1", "title", "", 1)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	_, err = domain.NewTask("task-1", "", "title", "", 1)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	_, err = domain.NewTask("task-1", "owner-1", "", "", 1)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestNewTask_EstablishesInitialState(t *testing.T) {
	task, err := domain.NewTask("task-1", "owner-1", "write docs", "", 3)
	require.NoError(t, err)

	assert.Equal(t, "task-1", task.ID())
	assert.Equal(t, "owner-1", task.OwnerID)
	assert.Equal(t, "write docs", task.Title)
	assert.Equal(t, 3, task.Priority)
	assert.Equal(t, domain.StatusPending, task.Status)
	assert.Equal(t, 2, task.SequenceNumber())
	assert.Len(t, task.UncommittedEvents(), 1)
}

func TestTask_RenameRejectsBlankTitle(t *testing.T) {
	task, err := domain.NewTask("task-1", "owner-1", "write docs", "", 1)
	require.NoError(t, err)

	err = task.Rename("")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	assert.Equal(t, "write docs", task.Title)
}

func TestTask_RenameChangePriorityAssignComplete(t *testing.T) {
	task, err := domain.NewTask("task-1", "owner-1", "write docs", "draft", 1)
	require.NoError(t, err)

	require.NoError(t, task.Rename("write final docs"))
	require.NoError(t, task.ChangePriority(5))
	require.NoError(t, task.AssignTo(domain.Assignee{UserID: "u-2", DisplayName: "Grace"}))
	require.NoError(t, task.Complete())

	assert.Equal(t, "write final docs", task.Title)
	assert.Equal(t, 5, task.Priority)
	require.NotNil(t, task.Assignee)
	assert.Equal(t, "u-2", task.Assignee.UserID)
	assert.Equal(t, domain.StatusCompleted, task.Status)
	assert.Equal(t, 6, task.SequenceNumber())
}

// Completing a task twice is a no-op success, not a second event.
func TestTask_CompleteIsIdempotent(t *testing.T) {
	task, err := domain.NewTask("task-1", "owner-1", "write docs", "", 1)
	require.NoError(t, err)
	require.NoError(t, task.Complete())

	before := task.SequenceNumber()
	require.NoError(t, task.Complete())
	assert.Equal(t, before, task.SequenceNumber())
}

func TestTask_AssignToRejectsBlankUserID(t *testing.T) {
	task, err := domain.NewTask("task-1", "owner-1", "write docs", "", 1)
	require.NoError(t, err)

	err = task.AssignTo(domain.Assignee{DisplayName: "no id"})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	assert.Nil(t, task.Assignee)
}

// Rehydrating from the full event history reconstructs a Task equivalent
// to one built live, skipping the business constructor entirely.
func TestTask_LoadFromHistory(t *testing.T) {
	original, err := domain.NewTask("task-1", "owner-1", "write docs", "", 1)
	require.NoError(t, err)
	require.NoError(t, original.ChangePriority(9))
	require.NoError(t, original.AssignTo(domain.Assignee{UserID: "u-3", DisplayName: "Ivy"}))

	rehydrated, err := eventsourcing.LoadFromHistory(original.UncommittedEvents(), domain.NewEmptyTask)
	require.NoError(t, err)

	assert.Equal(t, original.ID(), rehydrated.ID())
	assert.Equal(t, original.Title, rehydrated.Title)
	assert.Equal(t, original.Priority, rehydrated.Priority)
	assert.Equal(t, original.Assignee, rehydrated.Assignee)
	assert.Equal(t, original.SequenceNumber(), rehydrated.SequenceNumber())
}

// HandlerFor is variant-exact: an unrecognized event type is reported as
// unhandled rather than silently ignored.
func TestTask_HandlerForUnknownVariant(t *testing.T) {
	task := domain.NewEmptyTask()
	task.Init("task-1")
	_, ok := task.HandlerFor("task.unknown")
	assert.False(t, ok)
}

// Every Task event round-trips through the declared registry used by
// EventStore.LoadEvents/ReplayEvents.
func TestRegisterTaskEvents_DecodesEveryVariant(t *testing.T) {
	reg := eventsourcing.NewRegistry()
	domain.RegisterTaskEvents(reg)

	for _, eventType := range []string{
		"task.created", "task.renamed", "task.priority_changed",
		"task.assigned", "task.completed",
	} {
		ev, err := reg.New(eventType)
		require.NoError(t, err)
		assert.Equal(t, eventType, ev.EventType())
	}

	_, err := reg.New("task.nonexistent")
	assert.ErrorIs(t, err, eventsourcing.ErrUnknownEventType)
}
