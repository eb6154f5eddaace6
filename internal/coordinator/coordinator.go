// Package coordinator turns the input directory into one or more job
// lifecycles: it picks the target repository, partitions the input files and
// waits for every lifecycle to finish.
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jo-hoe/cisclient/internal/cis"
	"github.com/jo-hoe/cisclient/internal/common"
	perr "github.com/jo-hoe/cisclient/internal/errors"
	"github.com/jo-hoe/cisclient/internal/jobs"
	"github.com/jo-hoe/cisclient/internal/logger"
	"github.com/jo-hoe/cisclient/internal/workspace"
)

// ErrNoRepositories is returned when the environment lists no repository.
var ErrNoRepositories = errors.New("no repositories available")

// Environment queries the remote environment.
type Environment interface {
	GetEnvironment(ctx context.Context) (*cis.Environment, error)
}

// Runner executes batches and joins them.
type Runner interface {
	Run(ctx context.Context, p jobs.Processor, batches []jobs.SubmissionBatch) []jobs.Outcome
}

// Coordinator drives a whole run.
type Coordinator struct {
	Log          logger.Logger
	Env          Environment
	Processor    jobs.Processor
	Runner       Runner
	Store        jobs.Store
	SeparateJobs bool
	// Metadata overrides the demo metadata for individual input paths.
	Metadata cis.FileMetadata
}

func New(log logger.Logger, env Environment, p jobs.Processor, r Runner, store jobs.Store, separateJobs bool) *Coordinator {
	return &Coordinator{
		Log:          log,
		Env:          env,
		Processor:    p,
		Runner:       r,
		Store:        store,
		SeparateJobs: separateJobs,
	}
}

// SelectRepository returns the first repository of the environment.
func (c *Coordinator) SelectRepository(ctx context.Context) (cis.RepositoryRef, *cis.Environment, error) {
	env, err := c.Env.GetEnvironment(ctx)
	if err != nil {
		return cis.RepositoryRef{}, nil, err
	}
	if len(env.Repositories) == 0 {
		return cis.RepositoryRef{}, env, perr.Wrap(ErrNoRepositories, perr.KindConfig, cis.OpEnvironment, "select repository")
	}
	return env.Repositories[0], env, nil
}

// Partition builds one batch per file in split mode with more than one file,
// otherwise a single unseparated batch holding every file.
func Partition(files []string, separate bool, repositoryID uuid.UUID, meta cis.FileMetadata) []jobs.SubmissionBatch {
	if len(files) == 0 {
		return nil
	}
	if separate && len(files) > 1 {
		out := make([]jobs.SubmissionBatch, len(files))
		for i, f := range files {
			out[i] = jobs.SubmissionBatch{
				Index:        i,
				Files:        []string{f},
				RepositoryID: repositoryID,
				Metadata:     meta,
			}
		}
		return out
	}
	return []jobs.SubmissionBatch{{
		Index:        common.UnseparatedJob,
		Files:        append([]string(nil), files...),
		RepositoryID: repositoryID,
		Metadata:     meta,
	}}
}

// Run submits files and blocks until every lifecycle is terminal. In split mode
// per-job failures are only recorded in the report; with a single job its
// failure is also returned.
func (c *Coordinator) Run(ctx context.Context, files []string) (*Report, error) {
	if len(files) == 0 {
		return nil, perr.Wrap(workspace.ErrNoInputFiles, perr.KindIO, "input", "enumerate input")
	}
	repo, env, err := c.SelectRepository(ctx)
	if err != nil {
		return nil, err
	}
	c.logEnvironment(repo, env)

	batches := Partition(files, c.SeparateJobs, repo.ID, c.Metadata)
	split := batches[0].Index != common.UnseparatedJob
	c.Log.Info().Int("jobs", len(batches)).Bool("split", split).Msgf("Starting %d job(s) for %d file(s)", len(batches), len(files))

	outcomes := c.Runner.Run(ctx, c.Processor, batches)
	report := c.buildReport(repo, split, outcomes)

	if split {
		if n := report.Failed(); n > 0 {
			c.Log.Warn().Int("failed", n).Msgf("%d of %d jobs failed", n, len(report.Entries))
		}
		return report, nil
	}
	return report, report.Entries[0].Err
}

func (c *Coordinator) logEnvironment(repo cis.RepositoryRef, env *cis.Environment) {
	c.Log.Info().
		Str("repository_id", repo.ID.String()).
		Msgf("Using repository: %s (%s) in workspace %s", repo.Name, repo.Type, repo.WorkspaceName)
	if env == nil {
		return
	}
	if env.LastChanged != nil && !env.LastChanged.IsZero() {
		c.Log.Debug().Time("last_changed", env.LastChanged.Time).Msg("environment last changed")
	}
	for _, gv := range env.GlobalVariables {
		c.Log.Info().Msgf("Global variable: %s = %s", gv.Key, gv.Value)
	}
}

func (c *Coordinator) buildReport(repo cis.RepositoryRef, split bool, outcomes []jobs.Outcome) *Report {
	r := &Report{Repository: repo, Split: split}
	for _, o := range outcomes {
		e := Entry{
			Index:    o.Batch.Index,
			Files:    o.Batch.Files,
			Duration: o.Duration,
			Err:      o.Err,
		}
		if j, err := c.Store.GetJob(o.Batch.Index); err == nil {
			e.JobID = j.JobID
			e.State = j.State
			e.Status = j.Status
			e.OutputPath = j.OutputPath
			e.QueueTime = j.QueueTime
			e.ProcessingTime = j.ProcessingTime
		} else if o.Err != nil {
			e.State = jobs.StateFailed
		} else {
			e.Err = fmt.Errorf("job %s has no record: %w", logger.Tag(o.Batch.Index), err)
			e.State = jobs.StateFailed
		}
		r.Entries = append(r.Entries, e)
	}
	return r
}
