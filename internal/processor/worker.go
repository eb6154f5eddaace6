// Package processor drives the lifecycle of one CIS job: submit, poll until a
// terminal status, download the result and release the job.
package processor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jo-hoe/cisclient/internal/cis"
	perr "github.com/jo-hoe/cisclient/internal/errors"
	"github.com/jo-hoe/cisclient/internal/jobs"
	"github.com/jo-hoe/cisclient/internal/logger"
)

// Transport is the part of cis.Client a lifecycle calls.
type Transport interface {
	Submit(ctx context.Context, repositoryID uuid.UUID, files []string, meta cis.FileMetadata) (cis.JobID, error)
	GetStatus(ctx context.Context, jobID cis.JobID) (*cis.JobStatus, error)
	Download(ctx context.Context, jobID cis.JobID, destDir string) (string, error)
	Release(ctx context.Context, jobID cis.JobID) error
}

// JobLogs opens the log destination for a job index.
type JobLogs interface {
	Open(index int) (logger.Logger, io.Closer, error)
}

// OutputDirs creates the per-job download directory.
type OutputDirs interface {
	JobOutputDir(jobID string) (string, error)
}

// Options tunes polling.
type Options struct {
	PollInterval time.Duration
	// MaxPoll bounds the polling phase; zero polls until a terminal status.
	MaxPoll time.Duration
}

// Worker implements jobs.Processor against the CIS API.
type Worker struct {
	Log       logger.Logger
	Transport Transport
	Store     jobs.Store
	JobLogs   JobLogs
	Outputs   OutputDirs
	Opts      Options
}

var _ jobs.Processor = (*Worker)(nil)

func New(log logger.Logger, t Transport, store jobs.Store, logs JobLogs, outputs OutputDirs, opts Options) *Worker {
	return &Worker{
		Log:       log,
		Transport: t,
		Store:     store,
		JobLogs:   logs,
		Outputs:   outputs,
		Opts:      opts,
	}
}

// lifecycle carries the per-job state threaded through the steps.
type lifecycle struct {
	w     *Worker
	batch jobs.SubmissionBatch
	log   logger.Logger
	id    cis.JobID
}

// Process runs one batch to Done or Failed. The returned error is the failure
// that ended the lifecycle; it is also recorded in the Store.
func (w *Worker) Process(ctx context.Context, batch jobs.SubmissionBatch) error {
	if len(batch.Files) == 0 {
		return perr.New(perr.KindIO, "submit", "submission batch is empty")
	}
	if err := w.Store.CreateJob(&jobs.Job{Index: batch.Index, Files: batch.Files}); err != nil {
		return fmt.Errorf("create job record: %w", err)
	}

	jl, closer, err := w.JobLogs.Open(batch.Index)
	if err != nil {
		_ = w.Store.SaveError(batch.Index, err, time.Now())
		return err
	}
	defer func() {
		if cerr := closer.Close(); cerr != nil {
			w.Log.Warn().Err(cerr).Str(logger.JobField, logger.Tag(batch.Index)).Msg("close job log")
		}
	}()

	lc := &lifecycle{w: w, batch: batch, log: jl}
	return lc.run(ctx)
}

func (lc *lifecycle) run(ctx context.Context) error {
	if err := lc.submit(ctx); err != nil {
		return lc.fail(err, "Submission failed: %v")
	}
	st, err := lc.poll(ctx)
	if err != nil {
		return lc.fail(err, "Polling failed: %v")
	}
	if !st.IsSuccessful() {
		err := perr.JobFailure(cis.OpStatus, fmt.Sprintf("job %s completed with status %s: %s", lc.id, st.Status, st.Details))
		return lc.fail(err, "Job failed: %v")
	}
	if err := lc.transition(jobs.StateSucceeded); err != nil {
		return lc.fail(err, "%v")
	}
	lc.info(jobs.StateSucceeded, fmt.Sprintf("Job %s completed successfully.", lc.id))

	path, err := lc.download(ctx)
	if err != nil {
		return lc.fail(err, "Download failed: %v")
	}
	if err := lc.release(ctx); err != nil {
		return lc.fail(err, "Release failed: %v")
	}
	if err := lc.transition(jobs.StateDone); err != nil {
		return lc.fail(err, "%v")
	}
	if err := lc.w.Store.SaveResult(lc.batch.Index, path, time.Now()); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (lc *lifecycle) submit(ctx context.Context) error {
	if err := lc.transition(jobs.StateSubmitting); err != nil {
		return err
	}
	lc.info(jobs.StateSubmitting, submitMessage(lc.batch.Files))

	id, err := lc.w.Transport.Submit(ctx, lc.batch.RepositoryID, lc.batch.Files, lc.batch.Metadata)
	if err != nil {
		return err
	}
	lc.id = id
	if err := lc.w.Store.SetJobID(lc.batch.Index, id); err != nil {
		return err
	}
	lc.info(jobs.StateSubmitting, fmt.Sprintf("Submitted. Job ID: %s", id))
	return nil
}

// poll sleeps for the poll interval before each status query and returns the
// first terminal status.
func (lc *lifecycle) poll(ctx context.Context) (*cis.JobStatus, error) {
	if err := lc.transition(jobs.StatePolling); err != nil {
		return nil, err
	}
	start := time.Now()
	for {
		if err := sleep(ctx, lc.w.Opts.PollInterval); err != nil {
			return nil, err
		}
		st, err := lc.w.Transport.GetStatus(ctx, lc.id)
		if err != nil {
			return nil, err
		}
		_ = lc.w.Store.SaveStatus(lc.batch.Index, *st)
		lc.log.Info().
			Str(logger.JobIDField, lc.id.String()).
			Str(logger.StateField, string(jobs.StatePolling)).
			Str(logger.StatusField, st.Status).
			Msgf("Status: %s. ID: %s", st.Status, lc.id)
		if st.IsTerminal() {
			return st, nil
		}
		if limit := lc.w.Opts.MaxPoll; limit > 0 && time.Since(start) >= limit {
			return nil, perr.JobFailure(cis.OpStatus,
				fmt.Sprintf("polling timed out after %s with status %s", limit, st.Status))
		}
	}
}

func (lc *lifecycle) download(ctx context.Context) (string, error) {
	if err := lc.transition(jobs.StateDownloading); err != nil {
		return "", err
	}
	dir, err := lc.w.Outputs.JobOutputDir(lc.id.String())
	if err != nil {
		return "", err
	}
	lc.info(jobs.StateDownloading, fmt.Sprintf("Downloading files from Job: %s", lc.id))
	path, err := lc.w.Transport.Download(ctx, lc.id, dir)
	if err != nil {
		return "", err
	}
	lc.info(jobs.StateDownloading, fmt.Sprintf("Download complete. Location: %s", path))
	return path, nil
}

func (lc *lifecycle) release(ctx context.Context) error {
	if err := lc.transition(jobs.StateReleasing); err != nil {
		return err
	}
	lc.info(jobs.StateReleasing, fmt.Sprintf("Releasing Job: %s", lc.id))
	if err := lc.w.Transport.Release(ctx, lc.id); err != nil {
		return err
	}
	lc.info(jobs.StateDone, "Job Released.")
	return nil
}

func (lc *lifecycle) transition(to jobs.State) error {
	return lc.w.Store.UpdateState(lc.batch.Index, to)
}

func (lc *lifecycle) info(state jobs.State, msg string) {
	ev := lc.log.Info().Str(logger.StateField, string(state))
	if lc.id != uuid.Nil {
		ev = ev.Str(logger.JobIDField, lc.id.String())
	}
	ev.Msg(msg)
}

// fail records err, logs it with format and returns it.
func (lc *lifecycle) fail(err error, format string) error {
	_ = lc.w.Store.SaveError(lc.batch.Index, err, time.Now())
	ev := lc.log.Error().
		Str(logger.StateField, string(jobs.StateFailed)).
		Str(logger.KindField, perr.KindOf(err).String())
	if lc.id != uuid.Nil {
		ev = ev.Str(logger.JobIDField, lc.id.String())
	}
	ev.Msgf(format, err)
	return err
}

func submitMessage(files []string) string {
	if len(files) == 1 {
		return fmt.Sprintf("Submitting file: %s...", filepath.Base(files[0]))
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}
	return fmt.Sprintf("Submitting %d files (%s)...", len(files), strings.Join(names, ", "))
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
