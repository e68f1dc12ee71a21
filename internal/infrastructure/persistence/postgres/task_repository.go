package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sogos/pixelpipe/internal/domain/entity"
	"github.com/sogos/pixelpipe/internal/domain/repository"
	"github.com/sogos/pixelpipe/internal/domain/service"
	"github.com/sogos/pixelpipe/internal/domain/valueobject"
	"github.com/sogos/pixelpipe/internal/infrastructure/pubsub"
)

// latestCTE computes the latest status record per task identity. row_id is
// the monotonic surrogate, so "max row_id" is the current state regardless
// of clock resolution. Every read and the claim protocol build on it.
const latestCTE = `
	latest AS (
		SELECT DISTINCT ON (task_id) row_id, task_id, status, timestamp, data, params
		FROM tasks
		ORDER BY task_id, row_id DESC
	)`

// runnableQuery joins the latest records against the parent edges. The
// grouped HAVING enforces "zero parents, or every parent's latest record is
// completed". A failed parent therefore blocks everything downstream until
// a retry succeeds.
const runnableQuery = `
	WITH` + latestCTE + `
	SELECT l.row_id, l.task_id, l.status, l.timestamp, l.data, l.params
	FROM latest l
	LEFT JOIN parents p ON p.task_id = l.task_id
	LEFT JOIN latest pl ON pl.task_id = p.parent_id
	WHERE l.status IN ('pending', 'failed')
	GROUP BY l.row_id, l.task_id, l.status, l.timestamp, l.data, l.params
	HAVING COUNT(p.parent_id) = COUNT(pl.task_id) FILTER (WHERE pl.status = 'completed')
	ORDER BY l.row_id ASC`

const lastStateQuery = `
	SELECT row_id, task_id, status, timestamp, data, params
	FROM tasks
	WHERE task_id = $1
	ORDER BY row_id DESC
	LIMIT 1`

const parentsQuery = `
	WITH` + latestCTE + `
	SELECT pl.row_id, pl.task_id, pl.status, pl.timestamp, pl.data, pl.params
	FROM parents p
	JOIN latest pl ON pl.task_id = p.parent_id
	WHERE p.task_id = $1
	ORDER BY p.parent_id ASC`

const insertRecordQuery = `
	INSERT INTO tasks (task_id, status, timestamp, data, params)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING row_id`

// TaskRepository implements repository.TaskRepository over PostgreSQL.
// Status transitions are optionally published as task events.
type TaskRepository struct {
	db     *sql.DB
	events pubsub.Publisher
	logger service.Logger
	now    func() int64
}

// NewTaskRepository creates a new PostgreSQL task repository. events may be
// nil to disable publishing.
func NewTaskRepository(db *sql.DB, events pubsub.Publisher, logger service.Logger) *TaskRepository {
	return &TaskRepository{
		db:     db,
		events: events,
		logger: logger,
		now:    func() int64 { return time.Now().Unix() },
	}
}

// InsertTaskTree inserts a full submission tree in one transaction. Parents
// are inserted before their child's edges, bottom-up; each node draws a
// fresh identity from task_id_seq.
func (r *TaskRepository) InsertTaskTree(ctx context.Context, tree *entity.TaskTree) error {
	if err := tree.Validate(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrInvalidTransition, err)
	}

	timestamp := r.now()
	var inserted []pubsub.TaskEvent

	err := r.withTx(ctx, nil, func(tx *sql.Tx) error {
		var insertNode func(node *entity.TaskTree) (int64, error)
		insertNode = func(node *entity.TaskTree) (int64, error) {
			parentIDs := make([]int64, 0, len(node.Parents))
			for _, parent := range node.Parents {
				id, err := insertNode(parent)
				if err != nil {
					return 0, err
				}
				parentIDs = append(parentIDs, id)
			}

			var taskID int64
			if err := tx.QueryRowContext(ctx, "SELECT nextval('task_id_seq')").Scan(&taskID); err != nil {
				return 0, mapError(err)
			}

			params, err := node.Params.Encode()
			if err != nil {
				return 0, fmt.Errorf("%w: %v", repository.ErrSerialization, err)
			}

			var rowID int64
			err = tx.QueryRowContext(ctx, insertRecordQuery,
				taskID, node.Status.String(), timestamp, nullable(node.Data), params,
			).Scan(&rowID)
			if err != nil {
				return 0, mapError(err)
			}

			for _, parentID := range parentIDs {
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO parents (task_id, parent_id) VALUES ($1, $2)", taskID, parentID,
				); err != nil {
					return 0, mapError(err)
				}
			}

			inserted = append(inserted, pubsub.TaskEvent{
				TaskID:    taskID,
				Status:    node.Status.String(),
				Data:      node.Data,
				Timestamp: timestamp,
			})
			return taskID, nil
		}

		_, err := insertNode(tree)
		return err
	})
	if err != nil {
		return err
	}

	r.publish(ctx, inserted...)
	return nil
}

// InsertInputLeaf inserts a single completed leaf whose data is the
// artifact path, making its consumers immediately runnable.
func (r *TaskRepository) InsertInputLeaf(ctx context.Context, path string) (int64, error) {
	params, err := valueobject.NewInput().Encode()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", repository.ErrSerialization, err)
	}

	timestamp := r.now()
	var taskID int64
	err = r.withTx(ctx, nil, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "SELECT nextval('task_id_seq')").Scan(&taskID); err != nil {
			return mapError(err)
		}
		var rowID int64
		err := tx.QueryRowContext(ctx, insertRecordQuery,
			taskID, valueobject.StatusCompleted.String(), timestamp, path, params,
		).Scan(&rowID)
		return mapError(err)
	})
	if err != nil {
		return 0, err
	}

	r.publish(ctx, pubsub.TaskEvent{
		TaskID:    taskID,
		Status:    valueobject.StatusCompleted.String(),
		Data:      &path,
		Timestamp: timestamp,
	})
	return taskID, nil
}

// GetRunnableTasks returns the latest record of every task whose latest
// status is pending or failed and whose every parent is completed.
func (r *TaskRepository) GetRunnableTasks(ctx context.Context) ([]entity.Task, error) {
	return r.queryTasks(ctx, runnableQuery)
}

// GetAllTasks returns the latest record of every task identity.
func (r *TaskRepository) GetAllTasks(ctx context.Context) ([]entity.Task, error) {
	query := "WITH" + latestCTE + `
		SELECT row_id, task_id, status, timestamp, data, params
		FROM latest
		ORDER BY task_id ASC`
	return r.queryTasks(ctx, query)
}

// GetLastTaskState returns the most recent record for the identity.
func (r *TaskRepository) GetLastTaskState(ctx context.Context, taskID int64) (*entity.Task, error) {
	row := r.db.QueryRowContext(ctx, lastStateQuery, taskID)
	task, err := scanTask(row)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetParentTasks returns the latest record of each parent, in edge
// insertion order. Identities are assigned depth-first during submission,
// so parent_id order is declaration order; overlay inputs depend on it.
func (r *TaskRepository) GetParentTasks(ctx context.Context, taskID int64) ([]entity.Task, error) {
	return r.queryTasks(ctx, parentsQuery, taskID)
}

// ClaimRunnableFor atomically claims runnable tasks accepted by the worker
// class. The whole protocol runs in one serializable transaction: compute
// the runnable set, filter by class, guard against racing claimers, append
// a running record per surviving task, and load parent snapshots. Any
// error before commit discards the entire batch.
func (r *TaskRepository) ClaimRunnableFor(ctx context.Context, class valueobject.WorkerClass, limit int) ([]entity.ClaimedTask, error) {
	timestamp := r.now()
	var claimed []entity.ClaimedTask
	var events []pubsub.TaskEvent

	err := r.withTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(tx *sql.Tx) error {
		claimed = claimed[:0]
		events = events[:0]

		rows, err := tx.QueryContext(ctx, runnableQuery)
		if err != nil {
			return mapError(err)
		}
		candidates, corrupted, err := collectTasks(rows)
		if err != nil {
			return err
		}

		// Corrupted params are unrecoverable; fail them on discovery so the
		// audit trail records why they never ran.
		for _, bad := range corrupted {
			if bad.Status == valueobject.StatusFailed {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO tasks (task_id, status, timestamp, data, params) VALUES ($1, $2, $3, $4, $5)",
				bad.TaskID, valueobject.StatusFailed.String(), timestamp, nullable(bad.Data), bad.RawParams,
			); err != nil {
				return mapError(err)
			}
		}

		for _, candidate := range candidates {
			if !class.Accepts(candidate.Params.Kind) {
				continue
			}
			if limit > 0 && len(claimed) >= limit {
				break
			}

			// Claim guard: re-read the latest record under lock. A
			// concurrent claimer may have completed the task since the
			// runnable snapshot; such tasks are silently dropped.
			var status string
			err := tx.QueryRowContext(ctx,
				"SELECT status FROM tasks WHERE task_id = $1 ORDER BY row_id DESC LIMIT 1 FOR UPDATE",
				candidate.TaskID,
			).Scan(&status)
			if err != nil {
				return mapError(err)
			}
			current, err := valueobject.ParseStatus(status)
			if err != nil {
				return fmt.Errorf("%w: %v", repository.ErrDatabase, err)
			}
			if !current.IsRunnable() {
				continue
			}

			running, err := appendTransition(ctx, tx, candidate.TaskID, valueobject.StatusRunning, timestamp)
			if err != nil {
				return err
			}

			parentRows, err := tx.QueryContext(ctx, parentsQuery, candidate.TaskID)
			if err != nil {
				return mapError(err)
			}
			parents, _, err := collectTasks(parentRows)
			if err != nil {
				return err
			}

			claimed = append(claimed, entity.ClaimedTask{Task: running, Parents: parents})
			events = append(events, pubsub.TaskEvent{
				TaskID:    running.TaskID,
				Status:    running.Status.String(),
				Data:      running.Data,
				Timestamp: running.Timestamp,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.publish(ctx, events...)
	return claimed, nil
}

// MarkTaskCompleted appends a completed record whose data is the output
// path. The latest status must be running; a late completion after a
// timeout sweep fails this precondition and the result is dropped.
func (r *TaskRepository) MarkTaskCompleted(ctx context.Context, taskID int64, outputPath string) error {
	timestamp := r.now()
	err := r.withTx(ctx, nil, func(tx *sql.Tx) error {
		last, err := lockLastState(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if last.status != valueobject.StatusRunning {
			return fmt.Errorf("%w: task %d latest status is %s, want %s",
				repository.ErrInvalidTransition, taskID, last.status, valueobject.StatusRunning)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO tasks (task_id, status, timestamp, data, params) VALUES ($1, $2, $3, $4, $5)",
			taskID, valueobject.StatusCompleted.String(), timestamp, outputPath, last.params,
		)
		return mapError(err)
	})
	if err != nil {
		return err
	}

	r.publish(ctx, pubsub.TaskEvent{
		TaskID:    taskID,
		Status:    valueobject.StatusCompleted.String(),
		Data:      &outputPath,
		Timestamp: timestamp,
	})
	return nil
}

// MarkTaskFailed unconditionally appends a failed record derived from the
// latest state, preserving data and params.
func (r *TaskRepository) MarkTaskFailed(ctx context.Context, taskID int64) error {
	timestamp := r.now()
	var data *string
	err := r.withTx(ctx, nil, func(tx *sql.Tx) error {
		last, err := lockLastState(ctx, tx, taskID)
		if err != nil {
			return err
		}
		data = last.data
		_, err = tx.ExecContext(ctx,
			"INSERT INTO tasks (task_id, status, timestamp, data, params) VALUES ($1, $2, $3, $4, $5)",
			taskID, valueobject.StatusFailed.String(), timestamp, nullable(last.data), last.params,
		)
		return mapError(err)
	})
	if err != nil {
		return err
	}

	r.publish(ctx, pubsub.TaskEvent{
		TaskID:    taskID,
		Status:    valueobject.StatusFailed.String(),
		Data:      data,
		Timestamp: timestamp,
	})
	return nil
}

// MarkFailedTimeouted sweeps every task whose latest status is running with
// a timestamp older than now - timeout, appending a failed record for each
// in one transaction. Returns the number of transitions written.
func (r *TaskRepository) MarkFailedTimeouted(ctx context.Context, timeout time.Duration) (int, error) {
	now := r.now()
	cutoff := now - int64(timeout.Seconds())

	query := "WITH" + latestCTE + `,
		stale AS (
			SELECT task_id, data, params
			FROM latest
			WHERE status = 'running' AND timestamp < $1
		)
		INSERT INTO tasks (task_id, status, timestamp, data, params)
		SELECT task_id, 'failed', $2, data, params FROM stale
		RETURNING task_id, data`

	var events []pubsub.TaskEvent
	err := r.withTx(ctx, nil, func(tx *sql.Tx) error {
		events = events[:0]
		rows, err := tx.QueryContext(ctx, query, cutoff, now)
		if err != nil {
			return mapError(err)
		}
		defer rows.Close()

		for rows.Next() {
			var taskID int64
			var data sql.NullString
			if err := rows.Scan(&taskID, &data); err != nil {
				return mapError(err)
			}
			event := pubsub.TaskEvent{
				TaskID:    taskID,
				Status:    valueobject.StatusFailed.String(),
				Timestamp: now,
			}
			if data.Valid {
				event.Data = &data.String
			}
			events = append(events, event)
		}
		return mapError(rows.Err())
	})
	if err != nil {
		return 0, err
	}

	r.publish(ctx, events...)
	return len(events), nil
}

// appendTransition copies data and params forward from the latest record
// and writes the new status with a fresh timestamp, returning the new
// snapshot.
func appendTransition(ctx context.Context, tx *sql.Tx, taskID int64, status valueobject.Status, timestamp int64) (entity.Task, error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO tasks (task_id, status, timestamp, data, params)
		SELECT task_id, $2, $3, data, params
		FROM tasks
		WHERE task_id = $1
		ORDER BY row_id DESC
		LIMIT 1
		RETURNING row_id, task_id, status, timestamp, data, params`,
		taskID, status.String(), timestamp,
	)
	task, err := scanTask(row)
	if err != nil {
		return entity.Task{}, err
	}
	return task, nil
}

type lastState struct {
	status valueobject.Status
	data   *string
	params string
}

// lockLastState reads the latest record for the identity under FOR UPDATE
// so concurrent terminal writes serialize.
func lockLastState(ctx context.Context, tx *sql.Tx, taskID int64) (*lastState, error) {
	var status, params string
	var data sql.NullString
	err := tx.QueryRowContext(ctx,
		"SELECT status, data, params FROM tasks WHERE task_id = $1 ORDER BY row_id DESC LIMIT 1 FOR UPDATE",
		taskID,
	).Scan(&status, &data, &params)
	if err != nil {
		return nil, mapError(err)
	}

	parsed, err := valueobject.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrDatabase, err)
	}

	state := &lastState{status: parsed, params: params}
	if data.Valid {
		state.data = &data.String
	}
	return state, nil
}

func (r *TaskRepository) withTx(ctx context.Context, opts *sql.TxOptions, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return mapError(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

func (r *TaskRepository) queryTasks(ctx context.Context, query string, args ...any) ([]entity.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	tasks, corrupted, err := collectTasks(rows)
	if err != nil {
		return nil, err
	}
	for _, bad := range corrupted {
		r.logger.Warn("skipping task with corrupted params", "task_id", bad.TaskID)
	}
	return tasks, nil
}

// corruptedTask is a row whose params column failed to decode.
type corruptedTask struct {
	TaskID    int64
	Status    valueobject.Status
	Data      *string
	RawParams string
}

// collectTasks drains rows into task snapshots. Rows whose params cannot be
// decoded are returned separately instead of failing the whole read.
func collectTasks(rows *sql.Rows) ([]entity.Task, []corruptedTask, error) {
	defer rows.Close()

	var tasks []entity.Task
	var corrupted []corruptedTask
	for rows.Next() {
		task, raw, err := scanTaskRaw(rows)
		if err != nil {
			if errors.Is(err, repository.ErrSerialization) {
				corrupted = append(corrupted, corruptedTask{
					TaskID:    task.TaskID,
					Status:    task.Status,
					Data:      task.Data,
					RawParams: raw,
				})
				continue
			}
			return nil, nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, mapError(err)
	}
	return tasks, corrupted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(scanner rowScanner) (entity.Task, error) {
	task, _, err := scanTaskRaw(scanner)
	return task, err
}

func scanTaskRaw(scanner rowScanner) (entity.Task, string, error) {
	var task entity.Task
	var status, params string
	var data sql.NullString

	if err := scanner.Scan(&task.RowID, &task.TaskID, &status, &task.Timestamp, &data, &params); err != nil {
		return entity.Task{}, "", mapError(err)
	}
	if data.Valid {
		task.Data = &data.String
	}

	parsed, err := valueobject.ParseStatus(status)
	if err != nil {
		return entity.Task{}, "", fmt.Errorf("%w: %v", repository.ErrDatabase, err)
	}
	task.Status = parsed

	jobType, err := valueobject.ParseJobType(params)
	if err != nil {
		return task, params, fmt.Errorf("%w: task %d: %v", repository.ErrSerialization, task.TaskID, err)
	}
	task.Params = jobType

	return task, params, nil
}

func (r *TaskRepository) publish(ctx context.Context, events ...pubsub.TaskEvent) {
	if r.events == nil {
		return
	}
	for i := range events {
		if err := r.events.PublishTaskEvent(ctx, &events[i]); err != nil {
			r.logger.Warn("failed to publish task event", "task_id", events[i].TaskID, "error", err)
		}
	}
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
