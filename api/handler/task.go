package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/eventcore/api/transport"
	"github.com/fastygo/eventcore/domain"
	"github.com/fastygo/eventcore/pkg/httpcontext"
	"github.com/fastygo/eventcore/repository"
	taskUC "github.com/fastygo/eventcore/usecase/task"
)

// TaskHandler exposes the Task aggregate's commands and read-model
// queries over HTTP — the "command bus / CLI front end" spec.md places
// out of scope for the hard core, wired here only so the core has a
// real, testable caller.
type TaskHandler struct {
	baseHandler
	uc *taskUC.UseCase
}

func NewTaskHandler(uc *taskUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary List tasks
// @Tags tasks
// @Router /api/v1/tasks [get]
func (h *TaskHandler) GetTasks(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	userID, ok := h.ownerID(ctx, stdCtx)
	if !ok {
		return
	}

	filter := repository.TaskFilter{
		OwnerID: userID,
		Status:  string(ctx.QueryArgs().Peek("status")),
		Limit:   parseInt(string(ctx.QueryArgs().Peek("limit")), 50),
		Offset:  parseInt(string(ctx.QueryArgs().Peek("offset")), 0),
	}

	views, err := h.uc.ListTasks(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, views)
}

// @Summary Get task
// @Tags tasks
// @Router /api/v1/tasks/{id} [get]
func (h *TaskHandler) GetTask(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	if id == "" {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "missing task id", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	view, err := h.uc.GetTask(stdCtx, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, view)
}

// @Summary Create task
// @Tags tasks
// @Router /api/v1/tasks [post]
func (h *TaskHandler) CreateTask(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	userID, ok := h.ownerID(ctx, stdCtx)
	if !ok {
		return
	}

	var req transport.CreateTaskRequest
	if !h.decodeBody(ctx, &req) {
		return
	}

	created, err := h.uc.CreateTask(stdCtx, userID, req.Title, req.Description, req.Priority)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, created)
}

// @Summary Rename task
// @Tags tasks
// @Router /api/v1/tasks/{id}/rename [post]
func (h *TaskHandler) RenameTask(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	var req transport.RenameTaskRequest
	if !h.decodeBody(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.RenameTask(stdCtx, id, req.Title); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

// @Summary Change task priority
// @Tags tasks
// @Router /api/v1/tasks/{id}/priority [post]
func (h *TaskHandler) ChangeTaskPriority(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	var req transport.ChangeTaskPriorityRequest
	if !h.decodeBody(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.ChangeTaskPriority(stdCtx, id, req.Priority); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

// @Summary Assign task
// @Tags tasks
// @Router /api/v1/tasks/{id}/assign [post]
func (h *TaskHandler) AssignTask(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	var req transport.AssignTaskRequest
	if !h.decodeBody(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.AssignTask(stdCtx, id, req.AssigneeUserID, req.AssigneeName); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

// @Summary Complete task
// @Tags tasks
// @Router /api/v1/tasks/{id}/complete [post]
func (h *TaskHandler) CompleteTask(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.CompleteTask(stdCtx, id); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

func (h *TaskHandler) decodeBody(ctx *fasthttp.RequestCtx, dest interface{}) bool {
	if err := json.Unmarshal(ctx.PostBody(), dest); err != nil {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
		return false
	}
	return true
}

func parseInt(value string, fallback int) int {
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}
