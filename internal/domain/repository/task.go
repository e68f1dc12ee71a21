package repository

import (
	"context"
	"time"

	"github.com/sogos/pixelpipe/internal/domain/entity"
	"github.com/sogos/pixelpipe/internal/domain/valueobject"
)

// TaskRepository is the sole gateway to persisted task state. Every
// mutation maps to a single transaction; either all of its writes are
// visible or none are.
type TaskRepository interface {
	// InsertTaskTree inserts a full submission tree atomically. Each node
	// draws a fresh task identity; edges are written after the parents.
	InsertTaskTree(ctx context.Context, tree *entity.TaskTree) error

	// InsertInputLeaf inserts a single completed input leaf pointing at an
	// existing artifact and returns its task identity.
	InsertInputLeaf(ctx context.Context, path string) (int64, error)

	// GetRunnableTasks returns the latest record of every task whose latest
	// status is pending or failed and whose every parent is completed.
	GetRunnableTasks(ctx context.Context) ([]entity.Task, error)

	// GetAllTasks returns the latest record of every task identity.
	GetAllTasks(ctx context.Context) ([]entity.Task, error)

	// GetLastTaskState returns the most recent record for the identity.
	GetLastTaskState(ctx context.Context, taskID int64) (*entity.Task, error)

	// GetParentTasks returns the latest record of each parent of the task,
	// in edge insertion order.
	GetParentTasks(ctx context.Context, taskID int64) ([]entity.Task, error)

	// ClaimRunnableFor atomically transitions runnable tasks accepted by the
	// worker class to running and returns them with their parents'
	// snapshots. limit <= 0 means unlimited. Tasks raced to completion by a
	// concurrent claimer are silently dropped from the batch.
	ClaimRunnableFor(ctx context.Context, class valueobject.WorkerClass, limit int) ([]entity.ClaimedTask, error)

	// MarkTaskCompleted appends a completed record whose data is the output
	// path. The latest status must be running; otherwise
	// ErrInvalidTransition is returned and nothing is written.
	MarkTaskCompleted(ctx context.Context, taskID int64, outputPath string) error

	// MarkTaskFailed unconditionally appends a failed record derived from
	// the latest state.
	MarkTaskFailed(ctx context.Context, taskID int64) error

	// MarkFailedTimeouted appends a failed record for every task whose
	// latest status is running with a timestamp older than now - timeout,
	// and returns how many transitions were written.
	MarkFailedTimeouted(ctx context.Context, timeout time.Duration) (int, error)
}
