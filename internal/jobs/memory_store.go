package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jo-hoe/cisclient/internal/cis"
)

// ErrNotFound is returned for an unknown job index.
var ErrNotFound = errors.New("job not found")

// MemoryStore keeps job records for the lifetime of one run.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[int]*Job
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[int]*Job)}
}

func (s *MemoryStore) CreateJob(job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Index]; ok {
		return fmt.Errorf("job %d already exists", job.Index)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	cpy := *job
	cpy.Files = append([]string(nil), job.Files...)
	s.jobs[job.Index] = &cpy
	return nil
}

// UpdateState moves the job to state to, rejecting edges CanTransition forbids.
func (s *MemoryStore) UpdateState(index int, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[index]
	if !ok {
		return fmt.Errorf("update state of job %d: %w", index, ErrNotFound)
	}
	if !CanTransition(j.State, to) {
		return fmt.Errorf("invalid transition: %s -> %s", stateName(j.State), to)
	}
	if j.State == "" {
		now := time.Now().UTC()
		j.StartedAt = &now
	}
	j.State = to
	return nil
}

func (s *MemoryStore) SetJobID(index int, id uuid.UUID) error {
	return s.update(index, func(j *Job) { j.JobID = id })
}

func (s *MemoryStore) SaveStatus(index int, st cis.JobStatus) error {
	return s.update(index, func(j *Job) {
		j.Status = st.Status
		j.Details = st.Details
		j.QueueTime = seconds(st.TotalQueueTimeInSec)
		j.ProcessingTime = seconds(st.TotalProcessingTimeInSec)
	})
}

func (s *MemoryStore) SaveResult(index int, outputPath string, completedAt time.Time) error {
	return s.update(index, func(j *Job) {
		j.OutputPath = outputPath
		done := completedAt.UTC()
		j.CompletedAt = &done
	})
}

// SaveError marks the job failed. It bypasses CanTransition so a job can be
// failed from any state, including before it was started.
func (s *MemoryStore) SaveError(index int, err error, completedAt time.Time) error {
	return s.update(index, func(j *Job) {
		j.State = StateFailed
		j.Err = err
		done := completedAt.UTC()
		j.CompletedAt = &done
	})
}

func (s *MemoryStore) GetJob(index int) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[index]
	if !ok {
		return nil, fmt.Errorf("get job %d: %w", index, ErrNotFound)
	}
	cpy := *j
	return &cpy, nil
}

// List returns snapshots of every job ordered by index.
func (s *MemoryStore) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out
}

func (s *MemoryStore) update(index int, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[index]
	if !ok {
		return fmt.Errorf("update job %d: %w", index, ErrNotFound)
	}
	fn(j)
	return nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func stateName(s State) string {
	if s == "" {
		return "new"
	}
	return string(s)
}
