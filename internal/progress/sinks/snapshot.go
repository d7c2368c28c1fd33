package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-crawler/internal/progress"
)

// Run states reported by RunStatus.
const (
	RunStateIdle    = "idle"
	RunStateRunning = "running"
	RunStateDone    = "done"
)

// CategoryStatus is the latest known state of one category.
type CategoryStatus struct {
	Label    string        `json:"label"`
	URL      string        `json:"url"`
	State    string        `json:"state"`
	Outcome  string        `json:"outcome,omitempty"`
	Pages    int           `json:"pages"`
	Found    int           `json:"found"`
	Written  int           `json:"written"`
	Duration time.Duration `json:"duration_ns"`
	Note     string        `json:"note,omitempty"`
}

// RunStatus is a point-in-time view of the current run.
type RunStatus struct {
	RunID      string           `json:"run_id,omitempty"`
	State      string           `json:"state"`
	StartedAt  time.Time        `json:"started_at,omitempty"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
	Total      int              `json:"categories_total"`
	Active     int              `json:"categories_active"`
	Done       int              `json:"categories_done"`
	Found      int              `json:"found"`
	Written    int              `json:"written"`
	Categories []CategoryStatus `json:"categories"`
}

// SnapshotSink folds progress events into a RunStatus that can be read
// concurrently, e.g. by an HTTP handler.
type SnapshotSink struct {
	mu     sync.RWMutex
	status RunStatus
	index  map[string]int
}

// NewSnapshotSink returns an idle snapshot.
func NewSnapshotSink() *SnapshotSink {
	return &SnapshotSink{
		status: RunStatus{State: RunStateIdle},
		index:  make(map[string]int),
	}
}

// Consume applies the batch in order.
func (s *SnapshotSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.apply(evt)
	}
	return nil
}

func (s *SnapshotSink) apply(evt progress.Event) {
	if evt.Stage != progress.StageRunStart && s.status.RunID != "" && evt.RunID != s.status.RunID {
		return
	}
	switch evt.Stage {
	case progress.StageRunStart:
		s.status = RunStatus{
			RunID:     evt.RunID,
			State:     RunStateRunning,
			StartedAt: evt.TS,
			Total:     evt.Categories,
		}
		s.index = make(map[string]int)
	case progress.StageCategoryStart:
		c := s.category(evt)
		c.State = RunStateRunning
		s.status.Active++
	case progress.StageCategoryDone:
		c := s.category(evt)
		// categories refused admission never emit a start
		if c.State == RunStateRunning {
			s.status.Active--
		}
		c.State = RunStateDone
		c.Outcome = evt.Outcome
		c.Pages = evt.Pages
		c.Found = evt.Found
		c.Written = evt.Written
		c.Duration = evt.Dur
		c.Note = evt.Note
		s.status.Done++
		s.status.Found += evt.Found
		s.status.Written += evt.Written
	case progress.StageRunDone:
		s.status.State = RunStateDone
		s.status.FinishedAt = evt.TS
		s.status.Active = 0
	}
}

func (s *SnapshotSink) category(evt progress.Event) *CategoryStatus {
	key := evt.URL + "\x00" + evt.Category
	if i, ok := s.index[key]; ok {
		return &s.status.Categories[i]
	}
	s.index[key] = len(s.status.Categories)
	s.status.Categories = append(s.status.Categories, CategoryStatus{Label: evt.Category, URL: evt.URL})
	return &s.status.Categories[len(s.status.Categories)-1]
}

// Status returns a copy of the current snapshot with categories sorted by label.
func (s *SnapshotSink) Status() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.status
	out.Categories = append([]CategoryStatus(nil), s.status.Categories...)
	sort.SliceStable(out.Categories, func(i, j int) bool {
		return out.Categories[i].Label < out.Categories[j].Label
	})
	return out
}

// Close implements the Sink interface; the last snapshot stays readable.
func (s *SnapshotSink) Close(context.Context) error {
	return nil
}
