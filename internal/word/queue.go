package word

import (
	"context"
	"strings"
	"sync"

	"furlat/internal/job"
)

const DefaultQueueSize = 100

// Queue hands out words one at a time, refilling from its list in batches.
type Queue struct {
	list List
	size int

	mu  sync.Mutex
	buf []string
}

func NewQueue(list List, size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{list: list, size: size}
}

func (q *Queue) Next() (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		words, err := q.list.Sample(q.size)
		if err != nil {
			return "", err
		}
		for _, w := range words {
			if strings.TrimSpace(w) != "" {
				q.buf = append(q.buf, w)
			}
		}
		if len(q.buf) == 0 {
			return "", ErrEmpty
		}
	}
	w := q.buf[0]
	q.buf = q.buf[1:]
	return w, nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// QueryBuilder joins several queued words into one search expression.
type QueryBuilder struct {
	Queue *Queue
	// Words per query; default 2.
	Words int
	// Sep joins the words; default " OR ".
	Sep string
}

// Next builds the params of the next job.
func (b QueryBuilder) Next(ctx context.Context) (job.Params, error) {
	n := b.Words
	if n <= 0 {
		n = 2
	}
	sep := b.Sep
	if sep == "" {
		sep = " OR "
	}
	words := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return job.Params{}, err
		}
		w, err := b.Queue.Next()
		if err != nil {
			return job.Params{}, err
		}
		words = append(words, w)
	}
	return job.Params{Query: strings.Join(words, sep)}, nil
}
