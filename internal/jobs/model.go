package jobs

import (
	"time"

	"github.com/google/uuid"

	"github.com/jo-hoe/cisclient/internal/cis"
)

// State is a step of the per-job lifecycle.
type State string

const (
	StateSubmitting  State = "submitting"
	StatePolling     State = "polling"
	StateSucceeded   State = "succeeded"
	StateDownloading State = "downloading"
	StateReleasing   State = "releasing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition enforces the allowed lifecycle edges.
func CanTransition(from, to State) bool {
	switch from {
	case "":
		return to == StateSubmitting
	case StateSubmitting:
		return to == StatePolling || to == StateFailed
	case StatePolling:
		return to == StateSucceeded || to == StateFailed
	case StateSucceeded:
		return to == StateDownloading
	case StateDownloading:
		return to == StateReleasing || to == StateFailed
	case StateReleasing:
		return to == StateDone || to == StateFailed
	default:
		return false
	}
}

// SubmissionBatch is the ordered, non-empty set of files submitted as one job.
type SubmissionBatch struct {
	// Index is the split-mode job number, or common.UnseparatedJob.
	Index        int
	Files        []string
	RepositoryID uuid.UUID
	Metadata     cis.FileMetadata
}

// Job is the local record of one lifecycle.
type Job struct {
	Index          int
	Files          []string
	JobID          uuid.UUID // zero until submitted
	State          State
	Status         string // last remote status
	Details        string
	OutputPath     string
	QueueTime      time.Duration
	ProcessingTime time.Duration
	Err            error
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// Duration is the wall time from start to completion, or zero while running.
func (j Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// Store tracks lifecycle records. Implementations must be safe for concurrent use.
type Store interface {
	CreateJob(job *Job) error
	UpdateState(index int, to State) error
	SetJobID(index int, id uuid.UUID) error
	SaveStatus(index int, st cis.JobStatus) error
	SaveResult(index int, outputPath string, completedAt time.Time) error
	SaveError(index int, err error, completedAt time.Time) error
	GetJob(index int) (*Job, error)
	List() []Job
}
