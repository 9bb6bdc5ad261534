package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage. An empty Driver or "none" disables it.
type Config struct {
	Driver string
	// Path is the base directory for the file driver and the database file
	// for sqlite.
	Path string
	// Domain is the shortener domain; the file driver stores under a
	// directory derived from it.
	Domain      string
	BusyTimeout time.Duration // sqlite only
}

// Batch is the result set of one job.
type Batch struct {
	RunID    string
	JobID    string
	Category string
	Query    string
	URLs     []string
	FoundAt  time.Time
}

// Run describes one find session.
type Run struct {
	ID        string
	Domain    string
	StartedAt time.Time
}
