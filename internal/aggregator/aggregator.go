package aggregator

import (
	"sort"
	"sync"
	"time"

	"subforge-go/internal/types"
)

// Summary is the per-run outcome reported to callers.
type Summary struct {
	Mode        string         `json:"mode"`
	Units       int            `json:"units"`
	Completed   int            `json:"completed"`
	Failed      []string       `json:"failed,omitempty"`
	StageCounts map[string]int `json:"stage_counts"`
	Items       int            `json:"items"`
	Elapsed     time.Duration  `json:"elapsed_ns"`
}

// Tracker counts progress updates. It is safe for concurrent use and can be passed
// anywhere a types.ProgressFunc is expected via Observe.
type Tracker struct {
	mu      sync.Mutex
	mode    string
	started time.Time
	total   int
	last    map[string]types.ProgressUpdate
	stages  map[string]int
	next    types.ProgressFunc
}

// NewTracker forwards every update to next after recording it.
func NewTracker(mode string, next types.ProgressFunc) *Tracker {
	return &Tracker{
		mode:    mode,
		started: time.Now(),
		last:    map[string]types.ProgressUpdate{},
		stages:  map[string]int{},
		next:    next,
	}
}

func (t *Tracker) Observe(u types.ProgressUpdate) {
	t.mu.Lock()
	if u.Total > t.total {
		t.total = u.Total
	}
	t.last[u.ID] = u
	if u.Status == types.StatusProcessing && u.Stage != "" {
		t.stages[u.Stage]++
	}
	t.mu.Unlock()
	t.next.Emit(u)
}

// Summary aggregates the latest status of every unit seen so far.
func (t *Tracker) Summary(items int) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{
		Mode:        t.mode,
		Units:       t.total,
		StageCounts: make(map[string]int, len(t.stages)),
		Items:       items,
		Elapsed:     time.Since(t.started),
	}
	for k, v := range t.stages {
		s.StageCounts[k] = v
	}
	for id, u := range t.last {
		switch u.Status {
		case types.StatusCompleted:
			s.Completed++
		case types.StatusError:
			s.Failed = append(s.Failed, id)
		}
	}
	sort.Strings(s.Failed)
	return s
}
