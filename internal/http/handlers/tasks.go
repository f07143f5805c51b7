package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/taskhub/internal/auth"
	"github.com/geocoder89/taskhub/internal/domain/task"
	"github.com/geocoder89/taskhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type TaskServicer interface {
	Create(ctx context.Context, p auth.Principal, req task.CreateTaskRequest) (task.Task, error)
	List(ctx context.Context, p auth.Principal, q task.ListTasksQuery) ([]task.Task, error)
	Get(ctx context.Context, p auth.Principal, id string) (task.Task, error)
	Update(ctx context.Context, p auth.Principal, id string, req task.UpdateTaskRequest) (task.Task, error)
	Delete(ctx context.Context, p auth.Principal, id string) (task.Task, error)
}

type TasksHandler struct {
	svc     TaskServicer
	timeout time.Duration
}

func NewTasksHandler(svc TaskServicer, timeout time.Duration) *TasksHandler {
	return &TasksHandler{svc: svc, timeout: timeout}
}

// principal pulls the identity set by the auth guard. Routes are always
// mounted behind it; a missing principal is still answered with a 401.
func principal(ctx *gin.Context) (auth.Principal, bool) {
	p, ok := middlewares.PrincipalFromContext(ctx)
	if !ok {
		RespondErr(ctx, auth.MissingToken())
	}
	return p, ok
}

func (h *TasksHandler) CreateTask(ctx *gin.Context) {
	p, ok := principal(ctx)
	if !ok {
		return
	}

	var req task.CreateTaskRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	t, err := h.svc.Create(cctx, p, req)
	if err != nil {
		RespondErr(ctx, err)
		return
	}

	ctx.Header("Location", "/api/v1/tasks/"+t.ID)
	ctx.JSON(http.StatusCreated, t)
}

func (h *TasksHandler) ListTasks(ctx *gin.Context) {
	p, ok := principal(ctx)
	if !ok {
		return
	}

	var q task.ListTasksQuery
	if !BindQuery(ctx, &q) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	tasks, err := h.svc.List(cctx, p, q)
	if err != nil {
		RespondErr(ctx, err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, tasks)
}

func (h *TasksHandler) GetTask(ctx *gin.Context) {
	p, ok := principal(ctx)
	if !ok {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	t, err := h.svc.Get(cctx, p, ctx.Param("id"))
	if err != nil {
		RespondErr(ctx, err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, t)
}

func (h *TasksHandler) UpdateTask(ctx *gin.Context) {
	p, ok := principal(ctx)
	if !ok {
		return
	}

	var req task.UpdateTaskRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	t, err := h.svc.Update(cctx, p, ctx.Param("id"), req)
	if err != nil {
		RespondErr(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, t)
}

func (h *TasksHandler) DeleteTask(ctx *gin.Context) {
	p, ok := principal(ctx)
	if !ok {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	t, err := h.svc.Delete(cctx, p, ctx.Param("id"))
	if err != nil {
		RespondErr(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, t)
}
