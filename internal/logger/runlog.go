package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	perr "github.com/jo-hoe/cisclient/internal/errors"
)

// RunLog is the single per-run log file that records fatal errors.
type RunLog struct {
	fs   afero.Fs
	path string
}

// NewRunLog binds the run log to path.
func NewRunLog(fsys afero.Fs, path string) *RunLog {
	return &RunLog{fs: fsys, path: path}
}

// Path returns the log file location.
func (r *RunLog) Path() string { return r.path }

// Reset truncates the run log, creating it when missing.
func (r *RunLog) Reset() error {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := r.fs.MkdirAll(dir, 0o755); err != nil {
			return perr.IO(err, "ensure run log dir")
		}
	}
	if err := afero.WriteFile(r.fs, r.path, nil, 0o644); err != nil {
		return perr.IO(err, "reset run log")
	}
	return nil
}

// Append writes one "<timestamp>: <message>" line.
func (r *RunLog) Append(msg string) error {
	f, err := r.fs.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return perr.IO(err, "open run log")
	}
	defer func() { _ = f.Close() }()

	l := zerolog.New(lineWriter(f, "")).With().Timestamp().Logger()
	l.Log().Msg(msg)
	return nil
}

// Writer exposes the run log as an io.Writer for tee-ing console output.
func (r *RunLog) Writer() (io.WriteCloser, error) {
	f, err := r.fs.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, perr.IO(err, "open run log")
	}
	return f, nil
}
