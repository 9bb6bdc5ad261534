// Package job holds the unit of work moved between the project loop and the
// runner: its identity, category and task body.
package job

import (
	"context"
	"time"
)

// Category names a task family, normally one search source. At most one job
// per category is in flight at a time.
type Category string

func (c Category) String() string { return string(c) }

// Params are the task inputs. For search sources Query is the keyword
// expression built from sampled words.
type Params struct {
	Query string
}

// Results is the list of URLs a task found. A nil or empty list is a valid
// success.
type Results []string

// Task is the body of a job.
type Task interface {
	Execute(ctx context.Context) (Results, error)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) (Results, error)

func (f TaskFunc) Execute(ctx context.Context) (Results, error) { return f(ctx) }

type Job struct {
	ID        ID
	Category  Category
	Params    Params
	Task      Task
	CreatedAt time.Time
}

// New wraps t in a Job with a fresh id.
func New(c Category, p Params, t Task) Job {
	return Job{ID: NewID(), Category: c, Params: p, Task: t, CreatedAt: time.Now()}
}
