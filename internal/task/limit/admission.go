package limit

import (
	"sort"
	"sync"

	"furlat/internal/job"
)

// MaxInFlightPerCategory is the admission limit for every category.
const MaxInFlightPerCategory = 1

// Admission gates how many jobs of a category may be outstanding. A slot is
// taken when a job is staged and returned when its completion is consumed.
type Admission struct {
	mu       sync.Mutex
	inflight map[job.Category]int
}

func NewAdmission() *Admission {
	return &Admission{inflight: make(map[job.Category]int)}
}

// TryAcquire takes a slot for c without blocking.
func (a *Admission) TryAcquire(c job.Category) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inflight == nil {
		a.inflight = make(map[job.Category]int)
	}
	if a.inflight[c] >= MaxInFlightPerCategory {
		return false
	}
	a.inflight[c]++
	return true
}

// Release returns a slot. Releasing an idle category is a no-op.
func (a *Admission) Release(c job.Category) {
	a.mu.Lock()
	if a.inflight[c] > 0 {
		a.inflight[c]--
	}
	if a.inflight[c] == 0 {
		delete(a.inflight, c)
	}
	a.mu.Unlock()
}

func (a *Admission) InFlight(c job.Category) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inflight[c]
}

// Snapshot lists categories with a held slot, sorted by name.
func (a *Admission) Snapshot() []CategoryCount {
	a.mu.Lock()
	out := make([]CategoryCount, 0, len(a.inflight))
	for c, n := range a.inflight {
		out = append(out, CategoryCount{Category: c, InFlight: n})
	}
	a.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

type CategoryCount struct {
	Category job.Category
	InFlight int
}
