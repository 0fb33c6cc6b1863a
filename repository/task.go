package repository

import (
	"context"

	"github.com/fastygo/eventcore/domain"
)

// TaskView is a read-model row projected from a Task's event stream —
// not the aggregate itself, and never mutated except by the projector.
type TaskView struct {
	ID            string
	OwnerID       string
	Title         string
	Description   string
	Priority      int
	Status        domain.Status
	AssigneeID    string
	AssigneeName  string
	SequenceNum   int
}

// TaskFilter narrows a TaskReadRepository.List call.
type TaskFilter struct {
	OwnerID string
	Status  string
	Limit   int
	Offset  int
}

// TaskReadRepository serves query handlers from the Postgres read model
// that TaskProjection maintains. It never writes — all mutation happens
// through the Task aggregate and its event stream.
type TaskReadRepository interface {
	GetByID(ctx context.Context, id string) (*TaskView, error)
	List(ctx context.Context, filter TaskFilter) ([]TaskView, error)
}
