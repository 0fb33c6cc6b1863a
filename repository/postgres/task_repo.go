package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/eventcore/cache"
	"github.com/fastygo/eventcore/domain"
	"github.com/fastygo/eventcore/repository"
)

// taskCacheClass is the RecordCache class tasks are keyed under.
const taskCacheClass = "tasks"

type taskReadRepository struct {
	pool  *pgxpool.Pool
	cache *cache.RecordCache
}

// NewTaskReadRepository returns a Postgres-backed TaskReadRepository
// reading from the `tasks` projection table. recordCache may be nil, in
// which case every GetByID falls through to Postgres directly.
func NewTaskReadRepository(pool *pgxpool.Pool, recordCache *cache.RecordCache) repository.TaskReadRepository {
	return &taskReadRepository{pool: pool, cache: recordCache}
}

func (r *taskReadRepository) GetByID(ctx context.Context, id string) (*repository.TaskView, error) {
	if r.cache != nil {
		var cached repository.TaskView
		if hit, err := r.cache.Get(ctx, taskCacheClass, id, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	const query = `
	SELECT aggregate_id, owner_id, title, description, priority, status,
	       COALESCE(assignee_user_id, ''), COALESCE(assignee_display_name, ''), sequence_number
	FROM tasks
	WHERE aggregate_id = $1
	`
	row := r.pool.QueryRow(ctx, query, id)
	view, err := scanTaskView(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrCodeNotFound, "task not found", err)
		}
		return nil, err
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, taskCacheClass, id, view)
	}
	return view, nil
}

func (r *taskReadRepository) List(ctx context.Context, filter repository.TaskFilter) ([]repository.TaskView, error) {
	const query = `
	SELECT aggregate_id, owner_id, title, description, priority, status,
	       COALESCE(assignee_user_id, ''), COALESCE(assignee_display_name, ''), sequence_number
	FROM tasks
	WHERE ($1 = '' OR owner_id = $1)
	  AND ($2 = '' OR status = $2)
	ORDER BY created_at DESC
	LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, filter.OwnerID, filter.Status, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []repository.TaskView
	for rows.Next() {
		view, err := scanTaskView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, rows.Err()
}

func scanTaskView(row interface {
	Scan(dest ...interface{}) error
}) (*repository.TaskView, error) {
	var view repository.TaskView
	var status string
	if err := row.Scan(
		&view.ID,
		&view.OwnerID,
		&view.Title,
		&view.Description,
		&view.Priority,
		&status,
		&view.AssigneeID,
		&view.AssigneeName,
		&view.SequenceNum,
	); err != nil {
		return nil, err
	}
	view.Status = domain.Status(status)
	return &view, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 100
	}
	return limit
}
