package processor

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/cisclient/internal/cis"
	"github.com/jo-hoe/cisclient/internal/cis/cistest"
	"github.com/jo-hoe/cisclient/internal/common"
	perr "github.com/jo-hoe/cisclient/internal/errors"
	"github.com/jo-hoe/cisclient/internal/jobs"
	"github.com/jo-hoe/cisclient/internal/logger"
	"github.com/jo-hoe/cisclient/internal/workspace"
)

var repoID = uuid.MustParse("3fa85f64-5717-4562-b3fc-2c963f66afa6")

type harness struct {
	fs      afero.Fs
	srv     *cistest.Server
	store   *jobs.MemoryStore
	console *bytes.Buffer
	worker  *Worker
}

func newHarness(t *testing.T, opts cistest.Options, popts Options) *harness {
	t.Helper()
	srv := cistest.New(opts)
	t.Cleanup(srv.Close)

	fsys := afero.NewMemMapFs()
	client, err := cis.New(cis.Options{
		BaseURL:      srv.URL,
		APIKey:       cistest.DefaultAPIKey,
		APIKeyHeader: cistest.DefaultAPIKeyHeader,
		Fs:           fsys,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	ws := workspace.New(fsys, workspace.DefaultLayout(), logger.Nop())
	console := &bytes.Buffer{}
	sink := logger.NewJobSink(fsys, common.JobLogsDirName, console, zerolog.InfoLevel)
	store := jobs.NewMemoryStore()
	return &harness{
		fs:      fsys,
		srv:     srv,
		store:   store,
		console: console,
		worker:  New(logger.Nop(), client, store, sink, ws, popts),
	}
}

func (h *harness) inputs(t *testing.T, names ...string) []string {
	t.Helper()
	out := make([]string, 0, len(names))
	for _, n := range names {
		p := filepath.Join(common.InputDirName, n)
		require.NoError(t, afero.WriteFile(h.fs, p, []byte(n), 0o644))
		out = append(out, p)
	}
	return out
}

func (h *harness) jobLog(t *testing.T, index int) string {
	t.Helper()
	data, err := afero.ReadFile(h.fs, filepath.Join(common.JobLogsDirName, logger.FileName(index)))
	require.NoError(t, err)
	return string(data)
}

func TestProcess_Success(t *testing.T) {
	h := newHarness(t, cistest.Options{}, Options{PollInterval: time.Millisecond})
	files := h.inputs(t, "a.pdf", "b.pdf")

	err := h.worker.Process(context.Background(), jobs.SubmissionBatch{
		Index:        common.UnseparatedJob,
		Files:        files,
		RepositoryID: repoID,
	})
	require.NoError(t, err)

	j, err := h.store.GetJob(common.UnseparatedJob)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateDone, j.State)
	assert.Equal(t, cistest.StatusSuccessful, j.Status)
	assert.NoError(t, j.Err)

	id := j.JobID.String()
	assert.Equal(t, 3, h.srv.Polls(id), "polls until the first terminal status")
	assert.True(t, h.srv.Downloaded(id))
	assert.True(t, h.srv.Released(id))
	assert.Equal(t, filepath.Join(common.OutputDirName, id, "result_"+id+".zip"), j.OutputPath)
	data, err := afero.ReadFile(h.fs, j.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, cistest.ResultBody(id), string(data))

	log := h.jobLog(t, common.UnseparatedJob)
	for _, want := range []string{
		"Submitting 2 files (a.pdf, b.pdf)...",
		"Submitted. Job ID: " + id,
		"Status: Queued. ID: " + id,
		"Status: CompletedSuccessful. ID: " + id,
		"Job " + id + " completed successfully.",
		"Downloading files from Job: " + id,
		"Download complete. Location: ",
		"Releasing Job: " + id,
		"Job Released.",
	} {
		assert.Contains(t, log, want)
	}
	assert.NotContains(t, h.console.String(), "Thread:")
}

func TestProcess_JobCompletedWithFailureStatus(t *testing.T) {
	h := newHarness(t, cistest.Options{
		Statuses: func([]string) []string { return []string{cistest.StatusProcessing, cistest.StatusFailed} },
	}, Options{PollInterval: time.Millisecond})

	err := h.worker.Process(context.Background(), jobs.SubmissionBatch{
		Index: 0, Files: h.inputs(t, "a.pdf"), RepositoryID: repoID,
	})
	require.Error(t, err)
	assert.True(t, perr.IsKind(err, perr.KindJobFailure))

	j, _ := h.store.GetJob(0)
	assert.Equal(t, jobs.StateFailed, j.State)
	assert.Equal(t, cistest.StatusFailed, j.Status)
	id := j.JobID.String()
	assert.False(t, h.srv.Downloaded(id), "no download after a failed status")
	assert.False(t, h.srv.Released(id), "no release after a failed status")
	assert.Contains(t, h.jobLog(t, 0), "Job failed: job "+id+" completed with status CompletedWithErrors")
	assert.Contains(t, h.console.String(), "Thread: 0, Submitting file: a.pdf...")
}

func TestProcess_SubmitFailure(t *testing.T) {
	h := newHarness(t, cistest.Options{
		SubmitStatus: func(cistest.Submission) int { return 500 },
	}, Options{PollInterval: time.Millisecond})

	err := h.worker.Process(context.Background(), jobs.SubmissionBatch{
		Index: 1, Files: h.inputs(t, "a.pdf"), RepositoryID: repoID,
	})
	require.Error(t, err)
	assert.True(t, perr.IsKind(err, perr.KindTransport))

	j, _ := h.store.GetJob(1)
	assert.Equal(t, jobs.StateFailed, j.State)
	assert.Equal(t, uuid.Nil, j.JobID)
	assert.Contains(t, h.jobLog(t, 1), "Submission failed: ")
}

func TestProcess_DownloadAndReleaseFailures(t *testing.T) {
	h := newHarness(t, cistest.Options{DownloadStatus: 404}, Options{})
	err := h.worker.Process(context.Background(), jobs.SubmissionBatch{
		Index: 0, Files: h.inputs(t, "a.pdf"), RepositoryID: repoID,
	})
	require.Error(t, err)
	assert.Equal(t, 404, perr.StatusCode(err))
	assert.Contains(t, h.jobLog(t, 0), "Download failed: ")

	h = newHarness(t, cistest.Options{ReleaseStatus: 205}, Options{})
	err = h.worker.Process(context.Background(), jobs.SubmissionBatch{
		Index: 0, Files: h.inputs(t, "a.pdf"), RepositoryID: repoID,
	})
	require.Error(t, err)
	assert.Equal(t, 205, perr.StatusCode(err))
	j, _ := h.store.GetJob(0)
	assert.Equal(t, jobs.StateFailed, j.State)
	assert.Contains(t, h.jobLog(t, 0), "Release failed: ")
}

func TestProcess_MaxPoll(t *testing.T) {
	h := newHarness(t, cistest.Options{
		Statuses: func([]string) []string { return []string{cistest.StatusProcessing} },
	}, Options{PollInterval: time.Millisecond, MaxPoll: 20 * time.Millisecond})

	err := h.worker.Process(context.Background(), jobs.SubmissionBatch{
		Index: 0, Files: h.inputs(t, "a.pdf"), RepositoryID: repoID,
	})
	require.Error(t, err)
	assert.True(t, perr.IsKind(err, perr.KindJobFailure))
	assert.Contains(t, err.Error(), "polling timed out")
}

func TestProcess_ContextCancelledWhilePolling(t *testing.T) {
	h := newHarness(t, cistest.Options{
		Statuses: func([]string) []string { return []string{cistest.StatusProcessing} },
	}, Options{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := h.worker.Process(ctx, jobs.SubmissionBatch{
		Index: 0, Files: h.inputs(t, "a.pdf"), RepositoryID: repoID,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	j, _ := h.store.GetJob(0)
	assert.Equal(t, jobs.StateFailed, j.State)
	assert.Contains(t, h.jobLog(t, 0), "Polling failed: context deadline exceeded")
}

func TestProcess_EmptyBatch(t *testing.T) {
	h := newHarness(t, cistest.Options{}, Options{})
	err := h.worker.Process(context.Background(), jobs.SubmissionBatch{Index: 0})
	require.Error(t, err)
	assert.Empty(t, h.store.List())
}

func TestSubmitMessage(t *testing.T) {
	assert.Equal(t, "Submitting file: a.pdf...", submitMessage([]string{"Input/a.pdf"}))
	got := submitMessage([]string{"Input/a.pdf", "Input/b.tif", "Input/c.txt"})
	assert.Equal(t, "Submitting 3 files (a.pdf, b.tif, c.txt)...", got)
	assert.True(t, strings.HasPrefix(got, "Submitting 3"))
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleep(context.Background(), time.Millisecond))
	assert.NoError(t, sleep(context.Background(), 0))
}
