package workspace

import (
	"errors"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/jo-hoe/cisclient/internal/common"
	perr "github.com/jo-hoe/cisclient/internal/errors"
	"github.com/jo-hoe/cisclient/internal/logger"
)

// ErrNoInputFiles is returned when the input directory holds no regular files.
var ErrNoInputFiles = errors.New("no files in input folder to submit")

// Layout names the directories and files a run touches.
type Layout struct {
	InputDir   string
	OutputDir  string
	JobLogsDir string
	RunLogPath string
}

// DefaultLayout returns the layout relative to the working directory.
func DefaultLayout() Layout {
	return Layout{
		InputDir:   common.InputDirName,
		OutputDir:  common.OutputDirName,
		JobLogsDir: common.JobLogsDirName,
		RunLogPath: common.RunLogFileName,
	}
}

// Workspace handles the local directories around a run.
type Workspace struct {
	fs     afero.Fs
	layout Layout
	log    logger.Logger
}

// New creates a workspace on fsys.
func New(fsys afero.Fs, layout Layout, log logger.Logger) *Workspace {
	return &Workspace{fs: fsys, layout: layout, log: log}
}

// Fs returns the filesystem the workspace operates on.
func (w *Workspace) Fs() afero.Fs { return w.fs }

// Layout returns the configured layout.
func (w *Workspace) Layout() Layout { return w.layout }

// Prepare ensures the input and job log directories exist, clears stale job logs
// and fails when there is nothing to submit. Clearing is best effort.
func (w *Workspace) Prepare() error {
	if err := w.fs.MkdirAll(w.layout.InputDir, 0o755); err != nil {
		return perr.IO(err, "ensure input dir")
	}
	if err := w.fs.MkdirAll(w.layout.JobLogsDir, 0o755); err != nil {
		return perr.IO(err, "ensure job log dir")
	}
	if err := w.clearJobLogs(); err != nil {
		w.log.Warn().Err(err).Str("dir", w.layout.JobLogsDir).Msg("Error clearing job log directory")
	}

	files, err := w.InputFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return perr.Wrap(ErrNoInputFiles, perr.KindIO, "input", "prepare workspace")
	}
	return nil
}

func (w *Workspace) clearJobLogs() error {
	entries, err := afero.ReadDir(w.fs, w.layout.JobLogsDir)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := w.fs.Remove(filepath.Join(w.layout.JobLogsDir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InputFiles lists the regular files in the input directory, sorted by name.
func (w *Workspace) InputFiles() ([]string, error) {
	entries, err := afero.ReadDir(w.fs, w.layout.InputDir)
	if err != nil {
		return nil, perr.IO(err, "read input dir")
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Mode().IsRegular() {
			continue
		}
		out = append(out, filepath.Join(w.layout.InputDir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// JobOutputDir ensures Output/<jobID> exists and returns it.
func (w *Workspace) JobOutputDir(jobID string) (string, error) {
	dir := filepath.Join(w.layout.OutputDir, jobID)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return "", perr.IO(err, "ensure output dir")
	}
	return dir, nil
}
