package task_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/eventcore/domain"
	"github.com/fastygo/eventcore/eventsourcing"
	"github.com/fastygo/eventcore/repository"
	"github.com/fastygo/eventcore/usecase"
	taskUC "github.com/fastygo/eventcore/usecase/task"
)

// fakeEventStore is a minimal in-memory eventsourcing.EventStore — enough
// to drive UseCase's load/commit flow without a database.
type fakeEventStore struct {
	byID map[string][]eventsourcing.Event
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{byID: make(map[string][]eventsourcing.Event)}
}

func (s *fakeEventStore) LoadEvents(_ context.Context, aggregateID string) ([]eventsourcing.Event, error) {
	events, ok := s.byID[aggregateID]
	if !ok {
		return nil, eventsourcing.ErrAggregateNotFound
	}
	return events, nil
}

func (s *fakeEventStore) CommitEvents(_ context.Context, _ eventsourcing.Command, events []eventsourcing.Event) error {
	for _, e := range events {
		id := e.Meta().AggregateID
		s.byID[id] = append(s.byID[id], e)
	}
	return nil
}

func (s *fakeEventStore) ReplayEvents(context.Context, eventsourcing.RawEventSupplier) error { return nil }
func (s *fakeEventStore) Configure(eventsourcing.StoreConfig)                                {}

var _ eventsourcing.EventStore = (*fakeEventStore)(nil)

// fakeReads projects the fake store's events into TaskView rows, mimicking
// what TaskProjection would maintain in Postgres.
type fakeReads struct {
	views map[string]repository.TaskView
}

func newFakeReads() *fakeReads { return &fakeReads{views: make(map[string]repository.TaskView)} }

func (r *fakeReads) GetByID(_ context.Context, id string) (*repository.TaskView, error) {
	v, ok := r.views[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return &v, nil
}

func (r *fakeReads) List(_ context.Context, filter repository.TaskFilter) ([]repository.TaskView, error) {
	var out []repository.TaskView
	for _, v := range r.views {
		if filter.OwnerID != "" && v.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

var _ repository.TaskReadRepository = (*fakeReads)(nil)

func TestUseCase_CreateTask(t *testing.T) {
	uc := taskUC.New(newFakeEventStore(), newFakeReads(), nil)

	created, err := uc.CreateTask(context.Background(), "owner-1", "write docs", "", 2)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", created.OwnerID)
	assert.Equal(t, domain.StatusPending, created.Status)
}

func TestUseCase_MutateRoundTrip(t *testing.T) {
	store := newFakeEventStore()
	uc := taskUC.New(store, newFakeReads(), nil)
	ctx := context.Background()

	created, err := uc.CreateTask(ctx, "owner-1", "write docs", "", 1)
	require.NoError(t, err)

	require.NoError(t, uc.RenameTask(ctx, created.ID(), "write final docs"))
	require.NoError(t, uc.ChangeTaskPriority(ctx, created.ID(), 7))
	require.NoError(t, uc.AssignTask(ctx, created.ID(), "u-2", "Grace"))
	require.NoError(t, uc.CompleteTask(ctx, created.ID()))

	events := store.byID[created.ID()]
	require.Len(t, events, 5)
	assert.Equal(t, "task.completed", events[len(events)-1].EventType())
}

// RegisterOn exposes every command/query through the generic dispatcher,
// translating a JSON-decoded payload map into the typed use-case call.
func TestUseCase_RegisterOn_CreateAndGetThroughDispatcher(t *testing.T) {
	reads := newFakeReads()
	uc := taskUC.New(newFakeEventStore(), reads, nil)
	dispatcher := usecase.NewDispatcher(nil)
	uc.RegisterOn(dispatcher)

	ctx := context.Background()
	result, err := dispatcher.ExecuteCommand(ctx, "create_task", map[string]interface{}{
		"owner_id":    "owner-1",
		"title":       "ship it",
		"description": "",
		"priority":    float64(3),
	})
	require.NoError(t, err)
	created := result.(*domain.Task)
	assert.Equal(t, "ship it", created.Title)

	reads.views[created.ID()] = repository.TaskView{ID: created.ID(), OwnerID: "owner-1", Title: "ship it"}

	queried, err := dispatcher.ExecuteQuery(ctx, "get_task", map[string]interface{}{"id": created.ID()})
	require.NoError(t, err)
	assert.Equal(t, "ship it", queried.(*repository.TaskView).Title)

	_, err = dispatcher.ExecuteCommand(ctx, "unknown_command", map[string]interface{}{})
	assert.Error(t, err)
}
