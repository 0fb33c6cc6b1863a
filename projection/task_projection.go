// Package projection maintains the Postgres read model that query
// handlers serve from, by translating domain events into ReplaySession
// mutations.
package projection

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/eventcore/cache"
	"github.com/fastygo/eventcore/domain"
	"github.com/fastygo/eventcore/eventsourcing"
)

// TaskTable is the read-model table task events project into.
const TaskTable = "tasks"

// TaskProjection implements eventsourcing.Handler, keeping the `tasks`
// table in sync with every committed Task event. Each call opens a
// short-lived ReplaySession scoped to the single event it's handling:
// one CreateRecord/UpdateRecord followed by one Commit.
type TaskProjection struct {
	pool  *pgxpool.Pool
	cfg   eventsourcing.SessionConfig
	cache *cache.RecordCache
}

// NewTaskProjection builds a projection that flushes through pool. csvThreshold
// is InsertWithCSVSize — irrelevant for this handler's single-record commits,
// but shared with any batch ReplaySession built from the same config.
// recordCache may be nil, in which case no cache invalidation happens.
func NewTaskProjection(pool *pgxpool.Pool, csvThreshold int, recordCache *cache.RecordCache) *TaskProjection {
	return &TaskProjection{
		pool: pool,
		cfg: eventsourcing.SessionConfig{
			Indices: map[string][]eventsourcing.IndexSpec{
				TaskTable: {{"owner_id"}, {"status"}},
			},
			Timestamped:       map[string]bool{TaskTable: true},
			InsertWithCSVSize: csvThreshold,
		},
		cache: recordCache,
	}
}

func (p *TaskProjection) invalidate(ctx context.Context, aggregateID string) {
	if p.cache == nil {
		return
	}
	_ = p.cache.Invalidate(ctx, TaskTable, aggregateID)
}

// HandleMessage dispatches event to the matching projector step.
func (p *TaskProjection) HandleMessage(ctx context.Context, event eventsourcing.Event) error {
	switch e := event.(type) {
	case *domain.TaskCreated:
		return p.onCreated(ctx, e)
	case *domain.TaskRenamed:
		return p.onRenamed(ctx, e)
	case *domain.TaskPriorityChanged:
		return p.onPriorityChanged(ctx, e)
	case *domain.TaskAssigned:
		return p.onAssigned(ctx, e)
	case *domain.TaskCompleted:
		return p.onCompleted(ctx, e)
	default:
		return nil
	}
}

func (p *TaskProjection) onCreated(ctx context.Context, e *domain.TaskCreated) error {
	session := eventsourcing.NewReplaySession(p.pool, p.cfg)
	session.CreateRecord(TaskTable, map[string]any{
		"aggregate_id":    e.Meta().AggregateID,
		"sequence_number": e.Meta().SequenceNumber,
		"owner_id":        e.OwnerID,
		"title":           e.Title,
		"description":     e.Description,
		"priority":        e.Priority,
		"status":          string(domain.StatusPending),
		"created_at":      e.Meta().CreatedAt,
	}, nil)
	return session.Commit(ctx)
}

func (p *TaskProjection) onRenamed(ctx context.Context, e *domain.TaskRenamed) error {
	session := eventsourcing.NewReplaySession(p.pool, p.cfg)
	err := session.UpdateRecord(TaskTable, e, map[string]any{"aggregate_id": e.Meta().AggregateID}, eventsourcing.UpdateOptions{}, func(r *eventsourcing.Record) {
		r.Set("title", e.Title)
	})
	if err != nil {
		return fmt.Errorf("projection: rename task: %w", err)
	}
	if err := session.Commit(ctx); err != nil {
		return err
	}
	p.invalidate(ctx, e.Meta().AggregateID)
	return nil
}

func (p *TaskProjection) onPriorityChanged(ctx context.Context, e *domain.TaskPriorityChanged) error {
	session := eventsourcing.NewReplaySession(p.pool, p.cfg)
	err := session.UpdateRecord(TaskTable, e, map[string]any{"aggregate_id": e.Meta().AggregateID}, eventsourcing.UpdateOptions{}, func(r *eventsourcing.Record) {
		r.Set("priority", e.Priority)
	})
	if err != nil {
		return fmt.Errorf("projection: change task priority: %w", err)
	}
	if err := session.Commit(ctx); err != nil {
		return err
	}
	p.invalidate(ctx, e.Meta().AggregateID)
	return nil
}

func (p *TaskProjection) onAssigned(ctx context.Context, e *domain.TaskAssigned) error {
	session := eventsourcing.NewReplaySession(p.pool, p.cfg)
	err := session.UpdateRecord(TaskTable, e, map[string]any{"aggregate_id": e.Meta().AggregateID}, eventsourcing.UpdateOptions{}, func(r *eventsourcing.Record) {
		r.Set("assignee_user_id", e.Assignee.UserID)
		r.Set("assignee_display_name", e.Assignee.DisplayName)
	})
	if err != nil {
		return fmt.Errorf("projection: assign task: %w", err)
	}
	if err := session.Commit(ctx); err != nil {
		return err
	}
	p.invalidate(ctx, e.Meta().AggregateID)
	return nil
}

func (p *TaskProjection) onCompleted(ctx context.Context, e *domain.TaskCompleted) error {
	session := eventsourcing.NewReplaySession(p.pool, p.cfg)
	err := session.UpdateRecord(TaskTable, e, map[string]any{"aggregate_id": e.Meta().AggregateID}, eventsourcing.UpdateOptions{}, func(r *eventsourcing.Record) {
		r.Set("status", string(domain.StatusCompleted))
	})
	if err != nil {
		return fmt.Errorf("projection: complete task: %w", err)
	}
	if err := session.Commit(ctx); err != nil {
		return err
	}
	p.invalidate(ctx, e.Meta().AggregateID)
	return nil
}

var _ eventsourcing.Handler = (*TaskProjection)(nil)
