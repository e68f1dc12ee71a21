package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sogos/pixelpipe/internal/domain/entity"
	"github.com/sogos/pixelpipe/internal/domain/repository"
	"github.com/sogos/pixelpipe/internal/domain/valueobject"
)

// memRepo is an in-memory TaskRepository with the same observable
// semantics as the SQL implementation: append-only history, latest record
// wins, runnable = pending/failed with all parents completed. It lets the
// scheduler and worker threads be tested without a database.
type memRepo struct {
	mu         sync.Mutex
	records    []memRecord
	parents    map[int64][]int64
	nextTaskID int64
	nextRowID  int64

	// now is the fake clock; tests move it forward to trigger sweeps.
	now func() int64

	// claimErr is returned (once) by the next ClaimRunnableFor call.
	claimErr error
}

type memRecord struct {
	rowID, taskID int64
	status        valueobject.Status
	timestamp     int64
	data          *string
	params        valueobject.JobType
}

func newMemRepo() *memRepo {
	return &memRepo{
		parents: make(map[int64][]int64),
		now:     func() int64 { return time.Now().Unix() },
	}
}

func (m *memRepo) latestLocked(taskID int64) *memRecord {
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].taskID == taskID {
			return &m.records[i]
		}
	}
	return nil
}

func (m *memRepo) appendLocked(taskID int64, status valueobject.Status, data *string, params valueobject.JobType) memRecord {
	m.nextRowID++
	rec := memRecord{
		rowID:     m.nextRowID,
		taskID:    taskID,
		status:    status,
		timestamp: m.now(),
		data:      data,
		params:    params,
	}
	m.records = append(m.records, rec)
	return rec
}

func (m *memRepo) taskIDsLocked() []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, rec := range m.records {
		if !seen[rec.taskID] {
			seen[rec.taskID] = true
			ids = append(ids, rec.taskID)
		}
	}
	return ids
}

func (m *memRepo) runnableLocked() []memRecord {
	var out []memRecord
	for _, taskID := range m.taskIDsLocked() {
		latest := m.latestLocked(taskID)
		if !latest.status.IsRunnable() {
			continue
		}
		ready := true
		for _, parentID := range m.parents[taskID] {
			if parent := m.latestLocked(parentID); parent == nil || parent.status != valueobject.StatusCompleted {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, *latest)
		}
	}
	return out
}

func toTask(rec memRecord) entity.Task {
	return entity.Task{
		RowID:     rec.rowID,
		TaskID:    rec.taskID,
		Status:    rec.status,
		Timestamp: rec.timestamp,
		Data:      rec.data,
		Params:    rec.params,
	}
}

func (m *memRepo) InsertTaskTree(ctx context.Context, tree *entity.TaskTree) error {
	if err := tree.Validate(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrInvalidTransition, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var insert func(node *entity.TaskTree) int64
	insert = func(node *entity.TaskTree) int64 {
		var parentIDs []int64
		for _, parent := range node.Parents {
			parentIDs = append(parentIDs, insert(parent))
		}
		m.nextTaskID++
		taskID := m.nextTaskID
		m.appendLocked(taskID, node.Status, node.Data, node.Params)
		m.parents[taskID] = parentIDs
		return taskID
	}
	insert(tree)
	return nil
}

func (m *memRepo) InsertInputLeaf(ctx context.Context, path string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTaskID++
	m.appendLocked(m.nextTaskID, valueobject.StatusCompleted, &path, valueobject.NewInput())
	return m.nextTaskID, nil
}

func (m *memRepo) GetRunnableTasks(ctx context.Context) ([]entity.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Task
	for _, rec := range m.runnableLocked() {
		out = append(out, toTask(rec))
	}
	return out, nil
}

func (m *memRepo) GetAllTasks(ctx context.Context) ([]entity.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Task
	for _, taskID := range m.taskIDsLocked() {
		out = append(out, toTask(*m.latestLocked(taskID)))
	}
	return out, nil
}

func (m *memRepo) GetLastTaskState(ctx context.Context, taskID int64) (*entity.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.latestLocked(taskID)
	if rec == nil {
		return nil, repository.ErrNotFound
	}
	task := toTask(*rec)
	return &task, nil
}

func (m *memRepo) GetParentTasks(ctx context.Context, taskID int64) ([]entity.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parentSnapshotsLocked(taskID), nil
}

func (m *memRepo) parentSnapshotsLocked(taskID int64) []entity.Task {
	var out []entity.Task
	for _, parentID := range m.parents[taskID] {
		if rec := m.latestLocked(parentID); rec != nil {
			out = append(out, toTask(*rec))
		}
	}
	return out
}

func (m *memRepo) ClaimRunnableFor(ctx context.Context, class valueobject.WorkerClass, limit int) ([]entity.ClaimedTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.claimErr != nil {
		err := m.claimErr
		m.claimErr = nil
		return nil, err
	}

	var claimed []entity.ClaimedTask
	for _, rec := range m.runnableLocked() {
		if !class.Accepts(rec.params.Kind) {
			continue
		}
		if limit > 0 && len(claimed) >= limit {
			break
		}
		running := m.appendLocked(rec.taskID, valueobject.StatusRunning, rec.data, rec.params)
		claimed = append(claimed, entity.ClaimedTask{
			Task:    toTask(running),
			Parents: m.parentSnapshotsLocked(rec.taskID),
		})
	}
	return claimed, nil
}

func (m *memRepo) MarkTaskCompleted(ctx context.Context, taskID int64, outputPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.latestLocked(taskID)
	if rec == nil {
		return repository.ErrNotFound
	}
	if rec.status != valueobject.StatusRunning {
		return fmt.Errorf("%w: task %d latest status is %s", repository.ErrInvalidTransition, taskID, rec.status)
	}
	m.appendLocked(taskID, valueobject.StatusCompleted, &outputPath, rec.params)
	return nil
}

func (m *memRepo) MarkTaskFailed(ctx context.Context, taskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.latestLocked(taskID)
	if rec == nil {
		return repository.ErrNotFound
	}
	m.appendLocked(taskID, valueobject.StatusFailed, rec.data, rec.params)
	return nil
}

func (m *memRepo) MarkFailedTimeouted(ctx context.Context, timeout time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now() - int64(timeout.Seconds())
	count := 0
	for _, taskID := range m.taskIDsLocked() {
		rec := m.latestLocked(taskID)
		if rec.status == valueobject.StatusRunning && rec.timestamp < cutoff {
			m.appendLocked(taskID, valueobject.StatusFailed, rec.data, rec.params)
			count++
		}
	}
	return count, nil
}

// status returns the latest status for assertions.
func (m *memRepo) status(taskID int64) valueobject.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.latestLocked(taskID)
	if rec == nil {
		return ""
	}
	return rec.status
}

// lastData returns the latest data for assertions.
func (m *memRepo) lastData(taskID int64) *string {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.latestLocked(taskID)
	if rec == nil {
		return nil
	}
	return rec.data
}

// setClock moves the fake clock.
func (m *memRepo) setClock(at int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = func() int64 { return at }
}

// failNextClaim injects an error into the next ClaimRunnableFor call.
func (m *memRepo) failNextClaim(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimErr = err
}
