package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/taskhub/internal/domain/task"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TasksRepo keeps tasks in process. Ids have the same shape as the Mongo
// store so handlers behave identically against either.
type TasksRepo struct {
	mu    sync.RWMutex
	items map[string]task.Task
}

func NewTasksRepo() *TasksRepo {
	return &TasksRepo{
		items: make(map[string]task.Task),
	}
}

func checkID(id string) error {
	if !primitive.IsValidObjectID(id) {
		return task.ErrInvalidID
	}
	return nil
}

func (r *TasksRepo) FindByID(_ context.Context, id string) (task.Task, error) {
	if err := checkID(id); err != nil {
		return task.Task{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.items[id]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}
	return t, nil
}

func (r *TasksRepo) Insert(_ context.Context, t task.Task) (task.Task, error) {
	t.ID = primitive.NewObjectID().Hex()
	if t.SubTasks == nil {
		t.SubTasks = []task.SubTask{}
	}

	r.mu.Lock()
	r.items[t.ID] = t
	r.mu.Unlock()

	return t, nil
}

func (r *TasksRepo) UpdateFields(_ context.Context, id string, p task.Patch) (task.Task, error) {
	if err := checkID(id); err != nil {
		return task.Task{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.items[id]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}

	t = p.Apply(t)
	t.UpdatedAt = time.Now().UTC()
	r.items[id] = t

	return t, nil
}

func (r *TasksRepo) DeleteByID(_ context.Context, id string) (task.Task, error) {
	if err := checkID(id); err != nil {
		return task.Task{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.items[id]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}
	delete(r.items, id)

	return t, nil
}

func (r *TasksRepo) Query(_ context.Context, f task.Filter) ([]task.Task, error) {
	r.mu.RLock()
	out := make([]task.Task, 0)
	for _, t := range r.items {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	r.mu.RUnlock()

	task.SortForListing(out)
	return out, nil
}

func (r *TasksRepo) Ping(context.Context) error { return nil }
