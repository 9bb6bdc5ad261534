package storage

import (
	"context"
	"time"

	"furlat/internal/job"
	logx "furlat/pkg/logx"
)

// Sink stores job results under a fixed run id. With a nil store it only
// logs what it would have saved.
type Sink struct {
	store Store
	runID string
	log   logx.Logger
	now   func() time.Time
}

func NewSink(store Store, runID string, log logx.Logger) *Sink {
	return &Sink{store: store, runID: runID, log: log.With(logx.String("comp", "sink")), now: time.Now}
}

func (s *Sink) RunID() string { return s.runID }

func (s *Sink) OnResult(ctx context.Context, j job.Job, results job.Results) error {
	if s.store == nil {
		s.log.Info("results (not stored)", logx.Stringer("job", j.ID), logx.Any("urls", []string(results)))
		return nil
	}
	return s.store.SaveBatch(ctx, Batch{
		RunID:    s.runID,
		JobID:    j.ID.String(),
		Category: j.Category.String(),
		Query:    j.Params.Query,
		URLs:     results,
		FoundAt:  s.now(),
	})
}
