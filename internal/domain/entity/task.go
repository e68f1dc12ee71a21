package entity

import (
	"fmt"

	"github.com/sogos/pixelpipe/internal/domain/valueobject"
)

// Task is the latest status record of a task identity: one row of the
// append-only history. RowID is the strictly increasing surrogate; the row
// with the highest RowID for a TaskID is the task's current state.
type Task struct {
	RowID     int64
	TaskID    int64
	Status    valueobject.Status
	Timestamp int64
	Data      *string
	Params    valueobject.JobType
}

// HasData returns true when the record carries an artifact path: the input
// path for leaves, the output path for completed interior tasks.
func (t *Task) HasData() bool {
	return t.Data != nil && *t.Data != ""
}

// ClaimedTask is what the claim protocol hands to a worker: the task in its
// now-running state plus the parents' snapshots, so the worker can load
// input artifacts without another round-trip.
type ClaimedTask struct {
	Task    Task
	Parents []Task
}

// TaskTree is an insertable submission node. Parents are inserted first
// (bottom-up), then the edges; the whole tree goes in one transaction.
type TaskTree struct {
	Status  valueobject.Status
	Data    *string
	Params  valueobject.JobType
	Parents []*TaskTree
}

// NewTaskTree builds an interior node in the pending state.
func NewTaskTree(params valueobject.JobType, parents ...*TaskTree) *TaskTree {
	return &TaskTree{
		Status:  valueobject.StatusPending,
		Params:  params,
		Parents: parents,
	}
}

// NewInputLeaf builds a leaf carrying a pre-existing artifact. Input leaves
// are persisted completed so their consumers are immediately runnable.
func NewInputLeaf(path string) *TaskTree {
	return &TaskTree{
		Status: valueobject.StatusCompleted,
		Data:   &path,
		Params: valueobject.NewInput(),
	}
}

// Validate checks every node's parent count against the declared input
// arity of its operation. Submissions that fail validation are rejected
// before anything is written.
func (t *TaskTree) Validate() error {
	if !t.Params.IsValid() {
		return fmt.Errorf("invalid params for job kind %q", t.Params.Kind)
	}
	if want, got := t.Params.InputCount(), len(t.Parents); want != got {
		return fmt.Errorf("job %s requires %d inputs, tree node has %d parents", t.Params.Kind, want, got)
	}
	for _, parent := range t.Parents {
		if err := parent.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the number of nodes in the tree.
func (t *TaskTree) Size() int {
	n := 1
	for _, parent := range t.Parents {
		n += parent.Size()
	}
	return n
}
