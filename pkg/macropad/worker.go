package macropad

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Executor carries out one resolved action against the outside world.
type Executor interface {
	Execute(ctx context.Context, action QueuedAction) error
}

// worker consumes one action queue and executes its actions strictly one at
// a time, in arrival order. A failed action is logged and skipped; the worker
// never stops on failure. It exits once the queue is closed and drained.
type worker struct {
	logger   *zap.SugaredLogger
	queue    *actionQueue
	executor Executor
}

func newWorker(logger *zap.SugaredLogger, name string, queue *actionQueue, executor Executor) *worker {
	return &worker{
		logger:   logger.Named(name + "_worker"),
		queue:    queue,
		executor: executor,
	}
}

func (w *worker) run(ctx context.Context) {
	w.logger.Debug("Worker starting")

	for action := range w.queue.ch {
		w.execute(ctx, action)
	}

	w.logger.Debug("Queue closed and drained, worker stopping")
}

func (w *worker) execute(ctx context.Context, action QueuedAction) {
	timeout := actionTimeout
	if action.Kind == ActionGroupAll || action.Kind == ActionUngroupAll {
		timeout = groupActionTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	if err := w.executor.Execute(execCtx, action); err != nil {
		w.logger.Warnw("Action failed, continuing with next",
			"action", action.Kind, "delta", action.Delta, "error", err)
		return
	}

	w.logger.Infow("Action completed",
		"action", action.Kind, "delta", action.Delta,
		"duration", time.Since(started),
		"queued", started.Sub(action.EnqueueTime))
}
