package domain

import (
	"time"

	"github.com/fastygo/eventcore/eventsourcing"
)

// Assignee is a value object nested inside TaskAssigned: two assignments
// with the same UserID and DisplayName are equal regardless of which
// instance carries them (§3 ValueObject).
type Assignee struct {
	UserID      string `es:"string"`
	DisplayName string `es:"string"`
}

func (Assignee) ValueObjectType() string { return "assignee" }

// TaskCreated is raised once, by NewTask, and establishes the aggregate's
// initial state.
type TaskCreated struct {
	eventsourcing.EventMeta
	OwnerID     string `es:"string,tenant"`
	Title       string `es:"string"`
	Description string `es:"string"`
	Priority    int    `es:"integer"`
}

func (TaskCreated) EventType() string          { return "task.created" }
func (e *TaskCreated) Meta() *eventsourcing.EventMeta { return &e.EventMeta }

// TaskRenamed changes the task's title.
type TaskRenamed struct {
	eventsourcing.EventMeta
	Title string `es:"string"`
}

func (TaskRenamed) EventType() string          { return "task.renamed" }
func (e *TaskRenamed) Meta() *eventsourcing.EventMeta { return &e.EventMeta }

// TaskPriorityChanged changes the task's priority.
type TaskPriorityChanged struct {
	eventsourcing.EventMeta
	Priority int `es:"integer"`
}

func (TaskPriorityChanged) EventType() string          { return "task.priority_changed" }
func (e *TaskPriorityChanged) Meta() *eventsourcing.EventMeta { return &e.EventMeta }

// TaskAssigned records who the task was handed to.
type TaskAssigned struct {
	eventsourcing.EventMeta
	Assignee Assignee `es:"object"`
}

func (TaskAssigned) EventType() string          { return "task.assigned" }
func (e *TaskAssigned) Meta() *eventsourcing.EventMeta { return &e.EventMeta }

// TaskCompleted marks the task done.
type TaskCompleted struct {
	eventsourcing.EventMeta
}

func (TaskCompleted) EventType() string          { return "task.completed" }
func (e *TaskCompleted) Meta() *eventsourcing.EventMeta { return &e.EventMeta }

// Status enumerates the lifecycle states a Task can be in.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Task is the event-sourced aggregate root for a user-owned activity
// item. All mutation happens through eventsourcing.Apply; state here is
// a projection of the task's own event stream, not a source of truth.
type Task struct {
	eventsourcing.AggregateRoot

	OwnerID     string
	Title       string
	Description string
	Priority    int
	Status      Status
	Assignee    *Assignee
	CreatedAt   time.Time
}

// NewTask builds a fresh Task and raises TaskCreated. id must already be
// a unique identifier — the aggregate never generates its own.
func NewTask(id, ownerID, title, description string, priority int) (*Task, error) {
	if id == "" || ownerID == "" || title == "" {
		return nil, WrapError(ErrCodeInvalid, "task requires id, owner and title", nil)
	}
	t := &Task{}
	t.Init(id)
	if err := eventsourcing.Apply(t, &TaskCreated{
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Priority:    priority,
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// NewEmptyTask returns a bare, unpopulated Task for rehydration via
// eventsourcing.LoadFromHistory. It must never be used as a business
// constructor.
func NewEmptyTask() *Task { return &Task{} }

// Rename changes the task's title.
func (t *Task) Rename(title string) error {
	if title == "" {
		return WrapError(ErrCodeInvalid, "title must not be empty", nil)
	}
	return eventsourcing.Apply(t, &TaskRenamed{Title: title})
}

// ChangePriority changes the task's priority.
func (t *Task) ChangePriority(priority int) error {
	return eventsourcing.Apply(t, &TaskPriorityChanged{Priority: priority})
}

// AssignTo hands the task to assignee.
func (t *Task) AssignTo(assignee Assignee) error {
	if assignee.UserID == "" {
		return WrapError(ErrCodeInvalid, "assignee requires a user id", nil)
	}
	return eventsourcing.Apply(t, &TaskAssigned{Assignee: assignee})
}

// Complete marks the task done. Completing an already-completed task is
// a no-op success, matching the teacher's idempotent status transitions.
func (t *Task) Complete() error {
	if t.Status == StatusCompleted {
		return nil
	}
	return eventsourcing.Apply(t, &TaskCompleted{})
}

// HandlerFor dispatches by event variant, per §4.B's variant-exact rule.
func (t *Task) HandlerFor(eventType string) (func(eventsourcing.Event) error, bool) {
	switch eventType {
	case "task.created":
		return func(e eventsourcing.Event) error {
			ev := e.(*TaskCreated)
			t.OwnerID = ev.OwnerID
			t.Title = ev.Title
			t.Description = ev.Description
			t.Priority = ev.Priority
			t.Status = StatusPending
			t.CreatedAt = ev.Meta().CreatedAt
			return nil
		}, true
	case "task.renamed":
		return func(e eventsourcing.Event) error {
			t.Title = e.(*TaskRenamed).Title
			return nil
		}, true
	case "task.priority_changed":
		return func(e eventsourcing.Event) error {
			t.Priority = e.(*TaskPriorityChanged).Priority
			return nil
		}, true
	case "task.assigned":
		return func(e eventsourcing.Event) error {
			assignee := e.(*TaskAssigned).Assignee
			t.Assignee = &assignee
			return nil
		}, true
	case "task.completed":
		return func(e eventsourcing.Event) error {
			t.Status = StatusCompleted
			return nil
		}, true
	default:
		return nil, false
	}
}

// RegisterTaskEvents installs every Task event constructor into reg, so
// EventStore.LoadEvents/ReplayEvents can decode them.
func RegisterTaskEvents(reg *eventsourcing.Registry) {
	reg.Register("task.created", func() eventsourcing.Event { return &TaskCreated{} })
	reg.Register("task.renamed", func() eventsourcing.Event { return &TaskRenamed{} })
	reg.Register("task.priority_changed", func() eventsourcing.Event { return &TaskPriorityChanged{} })
	reg.Register("task.assigned", func() eventsourcing.Event { return &TaskAssigned{} })
	reg.Register("task.completed", func() eventsourcing.Event { return &TaskCompleted{} })
}

var _ eventsourcing.Aggregate = (*Task)(nil)
