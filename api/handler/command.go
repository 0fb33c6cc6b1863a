package handler

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/eventcore/api/transport"
	"github.com/fastygo/eventcore/domain"
	"github.com/fastygo/eventcore/pkg/httpcontext"
	applogger "github.com/fastygo/eventcore/pkg/logger"
	"github.com/fastygo/eventcore/usecase"
)

// CommandHandler is the generic "POST /commands/{type}" front end spec.md
// places out of scope for the hard core: it decodes a JSON payload, looks
// the command type up in a usecase.Dispatcher, and reports back whatever
// the registered CommandHandler returns. Individual use cases (task,
// future aggregates) register themselves with the dispatcher at startup;
// this handler never knows what a "task" is.
type CommandHandler struct {
	baseHandler
	dispatcher *usecase.Dispatcher
}

func NewCommandHandler(dispatcher *usecase.Dispatcher, adapter *httpcontext.Adapter, logger *zap.Logger) *CommandHandler {
	return &CommandHandler{
		baseHandler: newBaseHandler(adapter, logger),
		dispatcher:  dispatcher,
	}
}

// @Summary Execute a command
// @Tags commands
// @Router /commands/{type} [post]
func (h *CommandHandler) Execute(ctx *fasthttp.RequestCtx) {
	commandType, _ := ctx.UserValue("type").(string)
	if commandType == "" {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "missing command type", nil))
		return
	}

	var payload map[string]interface{}
	if len(ctx.PostBody()) > 0 {
		if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
			h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
			return
		}
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	stdCtx = applogger.ContextWithCommandType(stdCtx, commandType)

	if ownerID := httpcontext.OwnerID(stdCtx); ownerID != "" {
		if payload == nil {
			payload = make(map[string]interface{})
		}
		payload["owner_id"] = ownerID
	}

	result, err := h.dispatcher.ExecuteCommand(stdCtx, commandType, payload)
	if err != nil {
		applogger.WithFields(stdCtx, h.logger).Error("command dispatch failed", zap.Error(err))
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, result)
}
