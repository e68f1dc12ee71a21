package engine

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/sogos/pixelpipe/internal/domain/entity"
	"github.com/sogos/pixelpipe/internal/domain/repository"
	"github.com/sogos/pixelpipe/internal/domain/service"
	"github.com/sogos/pixelpipe/internal/domain/valueobject"
	"github.com/sogos/pixelpipe/internal/infrastructure/config"
	"github.com/sogos/pixelpipe/internal/infrastructure/storage"
	"github.com/sogos/pixelpipe/internal/processing"
)

var (
	// ErrWorkerUnavailable means the worker thread is absent or has died.
	// The scheduler responds by respawning worker threads.
	ErrWorkerUnavailable = errors.New("worker thread unavailable")

	// ErrWorkerBusy means the bounded task stream is full. The claimed task
	// stays running; the timeout sweep returns it to the pool.
	ErrWorkerBusy = errors.New("worker task stream is full")
)

const (
	// taskStreamBuffer bounds the stream between scheduler and worker.
	taskStreamBuffer = 16

	// pausePoll is how often a worker rechecks the paused flag.
	pausePoll = 100 * time.Millisecond
)

// RepositoryFactory opens a fresh repository handle. The scheduler calls it
// on reconnect and each worker incarnation gets its own. Whether handles
// share database connections is up to the factory; the server's factory
// wraps one shared *sql.DB pool, which re-dials broken connections.
type RepositoryFactory func() (repository.TaskRepository, error)

// WorkerThread owns the single long-lived goroutine processing tasks for
// one worker class. The goroutine consumes a bounded stream of claimed
// tasks; when it dies (panic, injected fault, database fault) the scheduler
// notices and spawns a replacement with a fresh repository. Tasks that were
// in flight to a dead thread stay running durably and are recovered by the
// timeout sweep.
type WorkerThread struct {
	class     valueobject.WorkerClass
	processor service.ImageProcessor
	store     storage.ArtifactStore
	settings  *config.Settings
	logger    service.Logger

	mu   sync.Mutex
	inst *workerInstance
}

// workerInstance is one incarnation of the thread. The channel is not
// preserved across restarts.
type workerInstance struct {
	tasks chan entity.ClaimedTask
	done  chan struct{}
}

func NewWorkerThread(
	class valueobject.WorkerClass,
	processor service.ImageProcessor,
	store storage.ArtifactStore,
	settings *config.Settings,
	logger service.Logger,
) *WorkerThread {
	return &WorkerThread{
		class:     class,
		processor: processor,
		store:     store,
		settings:  settings,
		logger:    logger.With("worker", class.Name),
	}
}

func (w *WorkerThread) Class() valueobject.WorkerClass {
	return w.class
}

// Alive reports whether the current incarnation is still running.
func (w *WorkerThread) Alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inst != nil && !w.inst.dead()
}

// Send offers one claimed task to the thread without blocking.
func (w *WorkerThread) Send(task entity.ClaimedTask) error {
	w.mu.Lock()
	inst := w.inst
	w.mu.Unlock()

	if inst == nil || inst.dead() {
		return ErrWorkerUnavailable
	}
	select {
	case inst.tasks <- task:
		return nil
	case <-inst.done:
		return ErrWorkerUnavailable
	default:
		return ErrWorkerBusy
	}
}

// Restore spawns a new incarnation when the current one is absent or dead.
// A live thread is left alone.
func (w *WorkerThread) Restore(factory RepositoryFactory) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.inst != nil && !w.inst.dead() {
		return nil
	}

	repo, err := factory()
	if err != nil {
		return err
	}

	if w.inst == nil {
		w.logger.Info("starting worker thread")
	} else {
		w.logger.Warn("worker thread died, restarting")
	}

	inst := &workerInstance{
		tasks: make(chan entity.ClaimedTask, taskStreamBuffer),
		done:  make(chan struct{}),
	}
	w.inst = inst
	go w.run(inst, repo)
	return nil
}

func (i *workerInstance) dead() bool {
	select {
	case <-i.done:
		return true
	default:
		return false
	}
}

func (w *WorkerThread) run(inst *workerInstance, repo repository.TaskRepository) {
	defer close(inst.done)
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker thread panicked", "panic", r)
		}
	}()

	ctx := context.Background()
	for {
		if w.settings.Paused() {
			time.Sleep(pausePoll)
			continue
		}

		var task entity.ClaimedTask
		select {
		case task = <-inst.tasks:
		case <-time.After(pausePoll):
			continue
		}

		if exit := w.handle(ctx, repo, task); exit {
			return
		}

		time.Sleep(w.settings.Throttle())
	}
}

// handle processes one claimed task to a terminal status. A true return
// aborts the thread; the scheduler's liveness check respawns it.
func (w *WorkerThread) handle(ctx context.Context, repo repository.TaskRepository, task entity.ClaimedTask) bool {
	log := w.logger.With("task_id", task.Task.TaskID, "job", task.Task.Params.Kind)
	log.Info("received task")

	inputs, failedParents := w.hydrate(ctx, task)
	if len(failedParents) > 0 {
		// A completed parent without a readable artifact is corruption; the
		// parent is failed too so a retry regenerates it.
		log.Warn("parents completed but artifacts unreadable", "parent_ids", failedParents)
		for _, parentID := range failedParents {
			if exit := w.writeTerminal(log, repo.MarkTaskFailed(ctx, parentID)); exit {
				return true
			}
		}
		return w.writeTerminal(log, repo.MarkTaskFailed(ctx, task.Task.TaskID))
	}

	if w.settings.ShouldCrash() {
		// Simulated crash: abort the thread mid-task. The durable state
		// stays running and the timeout sweep returns it to the pool.
		log.Warn("injected fault, aborting worker thread")
		return true
	}

	outputPath := processing.NewArtifactPath()
	img, err := w.processor.Process(task.Task.Params, inputs)
	if err != nil {
		log.Warn("processing failed", "error", err)
		return w.writeTerminal(log, repo.MarkTaskFailed(ctx, task.Task.TaskID))
	}

	if w.settings.ShouldSkipSave() {
		log.Warn("artifact persistence suppressed", "path", outputPath)
	} else if err := processing.SaveImage(ctx, w.store, outputPath, img); err != nil {
		log.Error("failed to save artifact", "error", err)
		return w.writeTerminal(log, repo.MarkTaskFailed(ctx, task.Task.TaskID))
	}

	if exit := w.writeTerminal(log, repo.MarkTaskCompleted(ctx, task.Task.TaskID, outputPath)); exit {
		return true
	}
	log.Info("task processed", "output", outputPath)
	return false
}

// hydrate loads every parent artifact. Parents whose data is missing or
// unreadable are collected; any failure fails the whole hydration because
// at least one input is missing.
func (w *WorkerThread) hydrate(ctx context.Context, task entity.ClaimedTask) ([]image.Image, []int64) {
	inputs := make([]image.Image, 0, len(task.Parents))
	var failed []int64

	for _, parent := range task.Parents {
		if !parent.HasData() {
			failed = append(failed, parent.TaskID)
			continue
		}
		img, err := processing.LoadImage(ctx, w.store, *parent.Data)
		if err != nil {
			w.logger.Warn("failed to load parent artifact", "parent_id", parent.TaskID, "error", err)
			failed = append(failed, parent.TaskID)
			continue
		}
		inputs = append(inputs, img)
	}

	if len(failed) > 0 {
		return nil, failed
	}
	return inputs, nil
}

// writeTerminal interprets the outcome of a terminal status write. A failed
// precondition means the task was swept while we were processing: the
// result is dropped and the thread carries on. Any other error kills the
// thread; workers never recover from database faults individually.
func (w *WorkerThread) writeTerminal(log service.Logger, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, repository.ErrInvalidTransition) || errors.Is(err, repository.ErrNotFound) {
		log.Warn("dropping late terminal write", "error", err)
		return false
	}
	log.Error("terminal status write failed, aborting worker thread", "error", err)
	return true
}
