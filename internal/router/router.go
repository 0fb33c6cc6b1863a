package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/eventcore/api/handler"
)

type Handlers struct {
	Task    *apiHandler.TaskHandler
	Health  *apiHandler.HealthHandler
	Command *apiHandler.CommandHandler
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	r.POST("/commands/{type}", authMiddleware(handlers.Command.Execute))

	r.GET("/api/v1/tasks", authMiddleware(handlers.Task.GetTasks))
	r.GET("/api/v1/tasks/{id}", authMiddleware(handlers.Task.GetTask))
	r.POST("/api/v1/tasks", authMiddleware(handlers.Task.CreateTask))
	r.POST("/api/v1/tasks/{id}/rename", authMiddleware(handlers.Task.RenameTask))
	r.POST("/api/v1/tasks/{id}/priority", authMiddleware(handlers.Task.ChangeTaskPriority))
	r.POST("/api/v1/tasks/{id}/assign", authMiddleware(handlers.Task.AssignTask))
	r.POST("/api/v1/tasks/{id}/complete", authMiddleware(handlers.Task.CompleteTask))

	return r
}
