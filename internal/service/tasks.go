package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/geocoder89/taskhub/internal/apperr"
	"github.com/geocoder89/taskhub/internal/auth"
	"github.com/geocoder89/taskhub/internal/domain/task"
)

type TaskStore interface {
	FindByID(ctx context.Context, id string) (task.Task, error)
	Insert(ctx context.Context, t task.Task) (task.Task, error)
	UpdateFields(ctx context.Context, id string, p task.Patch) (task.Task, error)
	DeleteByID(ctx context.Context, id string) (task.Task, error)
	Query(ctx context.Context, f task.Filter) ([]task.Task, error)
}

type TaskService struct {
	store TaskStore
	log   *slog.Logger
}

func NewTaskService(store TaskStore, log *slog.Logger) *TaskService {
	if log == nil {
		log = slog.Default()
	}
	return &TaskService{store: store, log: log}
}

func (s *TaskService) Create(ctx context.Context, p auth.Principal, req task.CreateTaskRequest) (task.Task, error) {
	t, err := s.store.Insert(ctx, task.NewFromCreateRequest(p.UserID, req))
	if err != nil {
		return task.Task{}, taskStoreErr(err)
	}

	s.log.DebugContext(ctx, "task created", "task_id", t.ID, "user_id", p.UserID)
	return t, nil
}

// List never returns another user's tasks: the filter is built from p.
func (s *TaskService) List(ctx context.Context, p auth.Principal, q task.ListTasksQuery) ([]task.Task, error) {
	f, err := q.ToFilter(p.UserID)
	if err != nil {
		return nil, apperr.Validation("invalid_date_range",
			"Use either date or from/to, with from not after to (YYYY-MM-DD)")
	}

	tasks, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, taskStoreErr(err)
	}

	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, p auth.Principal, id string) (task.Task, error) {
	return s.authorize(ctx, p, id)
}

func (s *TaskService) Update(ctx context.Context, p auth.Principal, id string, req task.UpdateTaskRequest) (task.Task, error) {
	patch := task.PatchFromUpdateRequest(req)
	if patch.IsEmpty() {
		return task.Task{}, apperr.Validation("empty_update", "At least one field must be provided")
	}

	if _, err := s.authorize(ctx, p, id); err != nil {
		return task.Task{}, err
	}

	t, err := s.store.UpdateFields(ctx, id, patch)
	if err != nil {
		return task.Task{}, taskStoreErr(err)
	}

	return t, nil
}

func (s *TaskService) Delete(ctx context.Context, p auth.Principal, id string) (task.Task, error) {
	if _, err := s.authorize(ctx, p, id); err != nil {
		return task.Task{}, err
	}

	t, err := s.store.DeleteByID(ctx, id)
	if err != nil {
		return task.Task{}, taskStoreErr(err)
	}

	s.log.InfoContext(ctx, "task deleted", "task_id", id, "user_id", p.UserID)
	return t, nil
}

// authorize loads the task and checks that p owns it. The decision is made
// on every call from the stored owner.
func (s *TaskService) authorize(ctx context.Context, p auth.Principal, id string) (task.Task, error) {
	t, err := s.store.FindByID(ctx, id)
	if err != nil {
		return task.Task{}, taskStoreErr(err)
	}

	if t.OwnerID != p.UserID {
		s.log.WarnContext(ctx, "task access denied", "task_id", id, "user_id", p.UserID)
		return task.Task{}, apperr.Forbidden("You do not have access to this task")
	}

	return t, nil
}

func taskStoreErr(err error) error {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return apperr.NotFound("Task not found")
	case errors.Is(err, task.ErrInvalidID):
		return apperr.Validation("invalid_id", "Task id is not valid",
			apperr.FieldError{Field: "id", Rule: "objectid"})
	default:
		return apperr.Unavailable("Task store unavailable", err)
	}
}
