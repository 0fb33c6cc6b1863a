package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	applogger "github.com/fastygo/eventcore/pkg/logger"
)

// CommandHandler decodes a command payload, runs it against a use case,
// and returns whatever that use case returns — typically the aggregate's
// new state or nothing, never the raw events it produced (those stay
// inside EventStore.CommitEvents).
type CommandHandler func(ctx context.Context, payload interface{}) (interface{}, error)

// QueryHandler serves a read-model lookup; it never touches the event
// store directly, only the read side a projection maintains.
type QueryHandler func(ctx context.Context, params interface{}) (interface{}, error)

// Dispatcher is the command-bus front end spec.md places out of scope
// for the hard core (§1): it maps a command or query type name — the
// same string an EventStore command row would carry as command_type —
// to the use case that knows how to turn it into aggregate mutations.
// Individual use cases register themselves at startup via their own
// RegisterOn method; Dispatcher never imports a use case package by
// name.
type Dispatcher struct {
	cmdHandlers map[string]CommandHandler
	qryHandlers map[string]QueryHandler
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewDispatcher builds an empty Dispatcher. logger enriches every
// dispatch attempt with the command/query type, the same way Scheduler
// tags its own log lines (pkg/logger.WithFields).
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cmdHandlers: make(map[string]CommandHandler),
		qryHandlers: make(map[string]QueryHandler),
		logger:      logger,
	}
}

// RegisterCommand binds a command type name to the handler that
// executes it. Registering the same name twice replaces the handler
// rather than erroring, so a use case can be re-registered during tests
// without restarting the dispatcher.
func (d *Dispatcher) RegisterCommand(name string, handler CommandHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmdHandlers[name] = handler
}

// RegisterQuery binds a query type name to the handler that serves it.
func (d *Dispatcher) RegisterQuery(name string, handler QueryHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.qryHandlers[name] = handler
}

// ExecuteCommand looks up name and runs it with payload, logging the
// command type on both the lookup miss and any handler error so a
// command entrypoint failure is traceable back to the command that
// caused it without the HTTP layer having to re-log it.
func (d *Dispatcher) ExecuteCommand(ctx context.Context, name string, payload interface{}) (interface{}, error) {
	log := applogger.WithFields(applogger.ContextWithCommandType(ctx, name), d.logger)

	d.mu.RLock()
	handler, ok := d.cmdHandlers[name]
	d.mu.RUnlock()
	if !ok {
		log.Warn("command handler not registered")
		return nil, fmt.Errorf("command handler %s not registered", name)
	}

	result, err := handler(ctx, payload)
	if err != nil {
		log.Error("command handler failed", zap.Error(err))
	}
	return result, err
}

// ExecuteQuery looks up name and runs it with params, mirroring
// ExecuteCommand's logging for the read side.
func (d *Dispatcher) ExecuteQuery(ctx context.Context, name string, params interface{}) (interface{}, error) {
	log := applogger.WithFields(applogger.ContextWithCommandType(ctx, name), d.logger)

	d.mu.RLock()
	handler, ok := d.qryHandlers[name]
	d.mu.RUnlock()
	if !ok {
		log.Warn("query handler not registered")
		return nil, fmt.Errorf("query handler %s not registered", name)
	}

	result, err := handler(ctx, params)
	if err != nil {
		log.Error("query handler failed", zap.Error(err))
	}
	return result, err
}
