package runner

import (
	"errors"
	"fmt"

	"furlat/internal/job"
)

var (
	// ErrSaturated means the queue stayed full for the whole submit timeout.
	// The caller keeps the job and retries later.
	ErrSaturated = errors.New("runner saturated")
	// ErrClosed means Stop was called before the job could be queued.
	ErrClosed = errors.New("runner closed")
	ErrNilTask = errors.New("job has no task")
)

// TaskFailure is the error carried by a Completion whose task returned an
// error or panicked.
type TaskFailure struct {
	JobID    job.ID
	Category job.Category
	Err      error
	// Panic holds the recovered value when the task panicked.
	Panic any
}

func (e *TaskFailure) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("job %s (%s) panicked: %v", e.JobID, e.Category, e.Panic)
	}
	return fmt.Sprintf("job %s (%s) failed: %v", e.JobID, e.Category, e.Err)
}

func (e *TaskFailure) Unwrap() error { return e.Err }

// IsTaskFailure reports whether err came from a task body.
func IsTaskFailure(err error) bool {
	var tf *TaskFailure
	return errors.As(err, &tf)
}
