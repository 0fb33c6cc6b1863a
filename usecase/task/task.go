package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/eventcore/domain"
	"github.com/fastygo/eventcore/eventsourcing"
	"github.com/fastygo/eventcore/repository"
	"github.com/fastygo/eventcore/usecase"
)

// UseCase issues Task commands against the event-sourced core and serves
// queries from the read model.
type UseCase struct {
	store  eventsourcing.EventStore
	reads  repository.TaskReadRepository
	logger *zap.Logger
}

func New(store eventsourcing.EventStore, reads repository.TaskReadRepository, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{store: store, reads: reads, logger: logger}
}

func (uc *UseCase) newRepository() *eventsourcing.Repository {
	return eventsourcing.NewRepository(uc.store)
}

// CreateTask raises a fresh Task aggregate and commits it.
func (uc *UseCase) CreateTask(ctx context.Context, ownerID, title, description string, priority int) (*domain.Task, error) {
	id := uuid.NewString()
	t, err := domain.NewTask(id, ownerID, title, description, priority)
	if err != nil {
		return nil, err
	}

	repo := uc.newRepository()
	if err := repo.AddAggregate(t); err != nil {
		return nil, err
	}
	if err := repo.Commit(ctx, taskCommand{kind: "create_task", aggregateID: id}); err != nil {
		return nil, translateCommitError(err)
	}
	return t, nil
}

// translateCommitError maps the core's storage-level concurrency sentinel
// onto the domain's ErrorCode taxonomy, so handlers never need to know
// about eventsourcing.ErrConcurrencyConflict directly.
func translateCommitError(err error) error {
	if errors.Is(err, eventsourcing.ErrConcurrencyConflict) {
		return domain.WrapError(domain.ErrCodeConflict, "task was concurrently modified, reload and retry", err)
	}
	return err
}

// RenameTask loads id, applies Rename, and commits.
func (uc *UseCase) RenameTask(ctx context.Context, id, title string) error {
	return uc.mutate(ctx, id, "rename_task", func(t *domain.Task) error {
		return t.Rename(title)
	})
}

// ChangeTaskPriority loads id, applies ChangePriority, and commits.
func (uc *UseCase) ChangeTaskPriority(ctx context.Context, id string, priority int) error {
	return uc.mutate(ctx, id, "change_task_priority", func(t *domain.Task) error {
		return t.ChangePriority(priority)
	})
}

// AssignTask loads id, applies AssignTo, and commits.
func (uc *UseCase) AssignTask(ctx context.Context, id, assigneeUserID, assigneeName string) error {
	return uc.mutate(ctx, id, "assign_task", func(t *domain.Task) error {
		return t.AssignTo(domain.Assignee{UserID: assigneeUserID, DisplayName: assigneeName})
	})
}

// CompleteTask loads id, applies Complete, and commits.
func (uc *UseCase) CompleteTask(ctx context.Context, id string) error {
	return uc.mutate(ctx, id, "complete_task", func(t *domain.Task) error {
		return t.Complete()
	})
}

func (uc *UseCase) mutate(ctx context.Context, id, commandType string, fn func(*domain.Task) error) error {
	repo := uc.newRepository()
	t, err := eventsourcing.LoadAggregate[*domain.Task](ctx, repo, id, domain.NewEmptyTask)
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	return translateCommitError(repo.Commit(ctx, taskCommand{kind: commandType, aggregateID: id}))
}

// GetTask serves a single read-model row.
func (uc *UseCase) GetTask(ctx context.Context, id string) (*repository.TaskView, error) {
	return uc.reads.GetByID(ctx, id)
}

// ListTasks serves a filtered read-model query.
func (uc *UseCase) ListTasks(ctx context.Context, filter repository.TaskFilter) ([]repository.TaskView, error) {
	return uc.reads.List(ctx, filter)
}

// RegisterOn exposes every Task command and query on a generic
// usecase.Dispatcher, so the "POST /commands/{type}" front end can reach
// this use case without importing it by name.
func (uc *UseCase) RegisterOn(d *usecase.Dispatcher) {
	d.RegisterCommand("create_task", func(ctx context.Context, payload interface{}) (interface{}, error) {
		p, err := asMap(payload)
		if err != nil {
			return nil, err
		}
		return uc.CreateTask(ctx, stringField(p, "owner_id"), stringField(p, "title"), stringField(p, "description"), intField(p, "priority"))
	})
	d.RegisterCommand("rename_task", func(ctx context.Context, payload interface{}) (interface{}, error) {
		p, err := asMap(payload)
		if err != nil {
			return nil, err
		}
		return nil, uc.RenameTask(ctx, stringField(p, "id"), stringField(p, "title"))
	})
	d.RegisterCommand("change_task_priority", func(ctx context.Context, payload interface{}) (interface{}, error) {
		p, err := asMap(payload)
		if err != nil {
			return nil, err
		}
		return nil, uc.ChangeTaskPriority(ctx, stringField(p, "id"), intField(p, "priority"))
	})
	d.RegisterCommand("assign_task", func(ctx context.Context, payload interface{}) (interface{}, error) {
		p, err := asMap(payload)
		if err != nil {
			return nil, err
		}
		return nil, uc.AssignTask(ctx, stringField(p, "id"), stringField(p, "assignee_user_id"), stringField(p, "assignee_name"))
	})
	d.RegisterCommand("complete_task", func(ctx context.Context, payload interface{}) (interface{}, error) {
		p, err := asMap(payload)
		if err != nil {
			return nil, err
		}
		return nil, uc.CompleteTask(ctx, stringField(p, "id"))
	})
	d.RegisterQuery("get_task", func(ctx context.Context, params interface{}) (interface{}, error) {
		p, err := asMap(params)
		if err != nil {
			return nil, err
		}
		return uc.GetTask(ctx, stringField(p, "id"))
	})
	d.RegisterQuery("list_tasks", func(ctx context.Context, params interface{}) (interface{}, error) {
		p, err := asMap(params)
		if err != nil {
			return nil, err
		}
		return uc.ListTasks(ctx, repository.TaskFilter{
			OwnerID: stringField(p, "owner_id"),
			Status:  stringField(p, "status"),
			Limit:   intField(p, "limit"),
			Offset:  intField(p, "offset"),
		})
	})
}

func asMap(payload interface{}) (map[string]interface{}, error) {
	p, ok := payload.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("task command: expected object payload, got %T", payload)
	}
	return p, nil
}

func stringField(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// taskCommand is the minimal eventsourcing.Command carried alongside
// every commit; it records which use-case method triggered the commit
// for the `commands` audit table, without needing a dedicated type per
// command (§4.D schema).
type taskCommand struct {
	kind        string
	aggregateID string
}

func (c taskCommand) CommandType() string { return c.kind }
func (c taskCommand) CommandPayload() ([]byte, error) {
	return json.Marshal(map[string]string{"aggregate_id": c.aggregateID})
}
