package coordinator

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/jo-hoe/cisclient/internal/cis"
	"github.com/jo-hoe/cisclient/internal/jobs"
	"github.com/jo-hoe/cisclient/internal/logger"
)

// Entry summarizes one lifecycle.
type Entry struct {
	Index          int
	Files          []string
	JobID          uuid.UUID
	State          jobs.State
	Status         string
	OutputPath     string
	QueueTime      time.Duration
	ProcessingTime time.Duration
	Duration       time.Duration
	Err            error
}

// Tag is the job label used in logs.
func (e Entry) Tag() string { return logger.Tag(e.Index) }

// Report is the outcome of a run, one entry per lifecycle in job order.
type Report struct {
	Repository cis.RepositoryRef
	Split      bool
	Entries    []Entry
}

// Failed counts lifecycles that did not reach Done.
func (r *Report) Failed() int {
	n := 0
	for _, e := range r.Entries {
		if e.Err != nil || e.State != jobs.StateDone {
			n++
		}
	}
	return n
}

// Succeeded counts lifecycles that reached Done.
func (r *Report) Succeeded() int { return len(r.Entries) - r.Failed() }

// Err combines every lifecycle error, or returns nil when all succeeded.
func (r *Report) Err() error {
	var merr *multierror.Error
	for _, e := range r.Entries {
		if e.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("job %s: %w", e.Tag(), e.Err))
		}
	}
	return merr.ErrorOrNil()
}
