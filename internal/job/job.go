package job

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doconv/convertd/internal/convert"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a job in this status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	ErrNotFound = errors.New("job not found")
	ErrTerminal = errors.New("job already in a terminal state")
)

type Job struct {
	ID           string          `json:"id"`
	Filename     string          `json:"filename"`
	OutputFormat convert.Format  `json:"output_format"`
	Options      convert.Options `json:"options"`
	Status       Status          `json:"status"`
	Progress     int             `json:"progress"`
	Result       *convert.Result `json:"result,omitempty"`
	SubmittedAt  time.Time       `json:"submitted_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Event describes one status transition, delivered to the store's notify hook.
// Seq is stamped under the store lock in transition order; consumers that may
// observe events out of order must drop any event whose Seq is not newer than
// the last one they saw for that job.
type Event struct {
	JobID    string `json:"job_id"`
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Seq      uint64 `json:"-"`
}

// Store is the authoritative registry of all jobs. Reads return copies so a
// poller never observes a record mid-update; counters are cumulative so stats
// stay truthful after terminal jobs are evicted.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	order     []string // submission order
	created   int
	completed int
	failed    int
	seq       uint64
	notify    func(Event)
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// SetNotify installs a hook called after every status transition. Must be set
// before the store is shared; the hook runs outside the store lock.
func (s *Store) SetNotify(fn func(Event)) {
	s.notify = fn
}

func (s *Store) Create(filename string, format convert.Format, opts convert.Options) Job {
	j := &Job{
		ID:           uuid.NewString(),
		Filename:     filename,
		OutputFormat: format,
		Options:      opts,
		Status:       StatusQueued,
		SubmittedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.order = append(s.order, j.ID)
	s.created++
	ev := s.stamp(Event{JobID: j.ID, Status: StatusQueued, Progress: 0})
	s.mu.Unlock()

	s.emit(ev)
	return *j
}

func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return copyOf(j), nil
}

// MarkProcessing claims a queued job for execution and sets the initial
// processing progress.
func (s *Store) MarkProcessing(id string) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if j.Status.Terminal() {
		s.mu.Unlock()
		return ErrTerminal
	}
	j.Status = StatusProcessing
	if j.Progress < 10 {
		j.Progress = 10
	}
	ev := s.stamp(Event{JobID: id, Status: j.Status, Progress: j.Progress})
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

// SetProgress raises a job's progress. Lower values and updates to terminal
// jobs are ignored; progress never decreases.
func (s *Store) SetProgress(id string, progress int) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if j.Status.Terminal() || progress <= j.Progress {
		s.mu.Unlock()
		return nil
	}
	j.Progress = progress
	ev := s.stamp(Event{JobID: id, Status: j.Status, Progress: j.Progress})
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

func (s *Store) Complete(id string, res *convert.Result) error {
	return s.finish(id, StatusCompleted, res)
}

func (s *Store) Fail(id string, res *convert.Result) error {
	return s.finish(id, StatusFailed, res)
}

func (s *Store) finish(id string, status Status, res *convert.Result) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if j.Status.Terminal() {
		s.mu.Unlock()
		return ErrTerminal
	}
	j.Status = status
	j.Progress = 100
	j.Result = res
	now := time.Now().UTC()
	j.CompletedAt = &now
	if status == StatusCompleted {
		s.completed++
	} else {
		s.failed++
	}
	ev := s.stamp(Event{JobID: id, Status: status, Progress: 100})
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

// Snapshot returns copies of every live job at a single point in time, in
// submission order.
func (s *Store) Snapshot() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		if j, ok := s.jobs[id]; ok {
			out = append(out, copyOf(j))
		}
	}
	return out
}

// List pages through live jobs in submission order, optionally filtered by status.
func (s *Store) List(limit, offset int, status string) ([]Job, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []Job
	for _, id := range s.order {
		j, ok := s.jobs[id]
		if !ok {
			continue
		}
		if status == "" || string(j.Status) == status {
			filtered = append(filtered, copyOf(j))
		}
	}

	total := len(filtered)
	if offset >= total {
		return []Job{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total
}

type Stats struct {
	Active    int `json:"active_jobs"`
	Completed int `json:"completed_jobs"`
	Failed    int `json:"failed_jobs"`
	Total     int `json:"total_jobs"`
	Queued    int `json:"queue_size"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Completed: s.completed,
		Failed:    s.failed,
		Total:     s.created,
	}
	for _, j := range s.jobs {
		switch j.Status {
		case StatusQueued:
			st.Queued++
		case StatusProcessing:
			st.Active++
		}
	}
	return st
}

// Sweep evicts terminal jobs whose completion is older than ttl. Queued and
// processing jobs are never evicted. Returns the number of jobs removed.
func (s *Store) Sweep(ttl time.Duration) int {
	cutoff := time.Now().UTC().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, j := range s.jobs {
		if j.Status.Terminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		kept := s.order[:0]
		for _, id := range s.order {
			if _, ok := s.jobs[id]; ok {
				kept = append(kept, id)
			}
		}
		s.order = kept
	}
	return removed
}

// stamp assigns the next sequence number. Caller must hold s.mu, so events
// carry sequence numbers in the order their transitions were applied even
// though emit itself runs after the lock is released.
func (s *Store) stamp(ev Event) Event {
	s.seq++
	ev.Seq = s.seq
	return ev
}

func (s *Store) emit(ev Event) {
	if s.notify != nil {
		s.notify(ev)
	}
}

func copyOf(j *Job) Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}
