package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sogos/pixelpipe/internal/domain/repository"
	"github.com/sogos/pixelpipe/internal/domain/service"
	"github.com/sogos/pixelpipe/internal/domain/valueobject"
	"github.com/sogos/pixelpipe/internal/infrastructure/config"
)

// DefaultWorkerClasses partitions the processing kinds into the two
// reference classes. Input is in neither: input leaves carry artifacts and
// are never dispatched.
func DefaultWorkerClasses() []valueobject.WorkerClass {
	return []valueobject.WorkerClass{
		valueobject.NewWorkerClass("class-a",
			valueobject.JobKindResize, valueobject.JobKindCrop, valueobject.JobKindOverlay),
		valueobject.NewWorkerClass("class-b",
			valueobject.JobKindBlur, valueobject.JobKindBrightness),
	}
}

// Options are the scheduler tunables.
type Options struct {
	// TaskTimeout is how long a running task may sit before the sweep
	// fails it.
	TaskTimeout time.Duration

	// IdleInterval is the sleep between iterations that neither claimed
	// nor swept anything.
	IdleInterval time.Duration
}

// Engine is the long-running control loop coupling the repository, the
// per-class worker threads, and the timeout sweep. It never exits on its
// own; cancel the context to stop it.
type Engine struct {
	repo     repository.TaskRepository
	factory  RepositoryFactory
	workers  []*WorkerThread
	settings *config.Settings
	logger   service.Logger
	opts     Options
}

// New builds the engine and opens its own repository through the factory.
func New(
	factory RepositoryFactory,
	workers []*WorkerThread,
	settings *config.Settings,
	logger service.Logger,
	opts Options,
) (*Engine, error) {
	repo, err := factory()
	if err != nil {
		return nil, err
	}
	return &Engine{
		repo:     repo,
		factory:  factory,
		workers:  workers,
		settings: settings,
		logger:   logger,
		opts:     opts,
	}, nil
}

// Run executes the scheduler loop until the context is cancelled. Errors
// never stop the loop; connection faults trigger a reconnect and a worker
// restart, a dead worker triggers a restart, anything else is logged and
// the next iteration proceeds.
func (e *Engine) Run(ctx context.Context) {
	e.restoreWorkers()

	for ctx.Err() == nil {
		err := e.iteration(ctx)
		if err == nil || ctx.Err() != nil {
			continue
		}

		e.logger.Error("scheduler iteration failed", "error", err)
		switch {
		case errors.Is(err, repository.ErrConnection):
			e.logger.Warn("resetting connection with database")
			e.reconnect(ctx)
			e.logger.Warn("resetting worker threads")
			e.restoreWorkers()
		case errors.Is(err, ErrWorkerUnavailable):
			e.logger.Warn("resetting worker threads")
			e.restoreWorkers()
		}
	}
}

// iteration claims runnable tasks for every worker class, dispatches them,
// sweeps timeouts, and checks worker liveness.
func (e *Engine) iteration(ctx context.Context) error {
	claimed := 0
	for _, worker := range e.workers {
		tasks, err := e.repo.ClaimRunnableFor(ctx, worker.Class(), 0)
		if err != nil {
			return err
		}
		if len(tasks) > 0 {
			e.logger.Info("claimed tasks", "worker", worker.Class().Name, "count", len(tasks))
		}

		for _, task := range tasks {
			if err := worker.Send(task); err != nil {
				if errors.Is(err, ErrWorkerBusy) {
					// The remaining claims stay running durably; the timeout
					// sweep returns them to the pool.
					e.logger.Warn("worker stream full, deferring claimed tasks",
						"worker", worker.Class().Name)
					break
				}
				return err
			}
			claimed++
		}
	}

	swept, err := e.repo.MarkFailedTimeouted(ctx, e.opts.TaskTimeout)
	if err != nil {
		return err
	}
	if swept > 0 {
		e.logger.Warn("swept timeouted tasks", "count", swept)
	}

	e.restoreWorkers()

	if claimed == 0 && swept == 0 {
		sleepCtx(ctx, e.opts.IdleInterval)
	} else {
		sleepCtx(ctx, e.settings.Throttle())
	}
	return nil
}

// reconnect replaces the engine's repository handle. The factory carries
// its own backoff; the loop here only guards against a factory that gives
// up while the database is still down.
func (e *Engine) reconnect(ctx context.Context) {
	for ctx.Err() == nil {
		repo, err := e.factory()
		if err == nil {
			e.repo = repo
			return
		}
		e.logger.Error("failed to reconnect to database", "error", err)
		sleepCtx(ctx, time.Second)
	}
}

// restoreWorkers spawns missing or dead worker threads, each with a fresh
// repository handle.
func (e *Engine) restoreWorkers() {
	for _, worker := range e.workers {
		if err := worker.Restore(e.factory); err != nil {
			e.logger.Error("failed to restore worker thread",
				"worker", worker.Class().Name, "error", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
