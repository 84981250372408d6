package entries

import (
	"context"
	"time"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

// TaskRepository mirrors group tasks: open before done, then by due date,
// then newest first.
type TaskRepository struct {
	*Repository[core.Task, *core.Task]
}

func NewTaskRepository(gw gateway.Gateway, logger *log.Logger, opts ...Option) *TaskRepository {
	return &TaskRepository{newRepository[core.Task, *core.Task](gw, logger, spec[core.Task]{
		table: gateway.TableTasks,
		order: func(q gateway.Query) gateway.Query {
			return q.OrderBy("completed").OrderBy("due_date").OrderByDesc(gateway.ColCreatedAt)
		},
		less: func(a, b *core.Task) bool {
			return lessBy(cmpBool(a.Completed, b.Completed), cmpOptDate(a.DueDate, b.DueDate), -cmpTime(a.CreatedAt, b.CreatedAt))
		},
	}, buildOptions(opts))}
}

// Complete marks a task done now.
func (r *TaskRepository) Complete(ctx context.Context, actor, id string) (core.Task, error) {
	return r.Update(ctx, actor, id, gateway.Row{"completed": true, "completed_at": r.now().UTC()})
}

// Reopen clears the completion of a task.
func (r *TaskRepository) Reopen(ctx context.Context, actor, id string) (core.Task, error) {
	return r.Update(ctx, actor, id, gateway.Row{"completed": false, "completed_at": nil})
}

func (r *TaskRepository) Pending() []core.Task {
	return r.Filter(func(t core.Task) bool { return !t.Completed })
}

// AssignedTo returns the tasks assigned to user.
func (r *TaskRepository) AssignedTo(user string) []core.Task {
	return r.Filter(func(t core.Task) bool { return t.AssignedTo != nil && *t.AssignedTo == user })
}

// Overdue returns open tasks whose due date is before now's day.
func (r *TaskRepository) Overdue(now time.Time) []core.Task {
	today := core.DateOf(now)
	return r.Filter(func(t core.Task) bool {
		return !t.Completed && t.DueDate != nil && t.DueDate.Before(today.Time)
	})
}
