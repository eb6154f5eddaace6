package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/jo-hoe/cisclient/internal/common"
	perr "github.com/jo-hoe/cisclient/internal/errors"
)

// JobSink hands out one log destination per job index under a directory.
type JobSink struct {
	fs      afero.Fs
	dir     string
	console io.Writer
	level   zerolog.Level
}

// NewJobSink creates a sink writing job logs into dir and echoing to console.
func NewJobSink(fsys afero.Fs, dir string, console io.Writer, level zerolog.Level) *JobSink {
	if console == nil {
		console = io.Discard
	}
	return &JobSink{fs: fsys, dir: dir, console: console, level: level}
}

// FileName returns the log file for a job index; UnseparatedJob maps to the shared log.
func FileName(index int) string {
	if index == common.UnseparatedJob {
		return common.SharedJobLogName
	}
	return fmt.Sprintf(common.JobLogNameFormat, index)
}

// Tag is the job label carried in log events.
func Tag(index int) string {
	if index == common.UnseparatedJob {
		return "unseparated"
	}
	return strconv.Itoa(index)
}

// Open returns a logger for the given job index and a closer for its file.
// Split jobs are echoed to the console as "Thread: <i>, <message>".
func (s *JobSink) Open(index int) (Logger, io.Closer, error) {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return Nop(), nil, perr.IO(err, "ensure job log dir")
	}
	path := filepath.Join(s.dir, FileName(index))
	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Nop(), nil, perr.IO(err, "open job log")
	}

	prefix := ""
	if index != common.UnseparatedJob {
		prefix = fmt.Sprintf("Thread: %d, ", index)
	}
	console := consoleWriter(s.console, prefix)
	w := zerolog.MultiLevelWriter(console, lineWriter(f, ""))
	l := zerolog.New(w).Level(s.level).With().Timestamp().Str(JobField, Tag(index)).Logger()
	return l, f, nil
}

// consoleWriter prints the bare message, serialized across concurrent jobs.
func consoleWriter(out io.Writer, prefix string) zerolog.ConsoleWriter {
	cw := lineWriter(&lockedWriter{w: out}, prefix)
	cw.PartsOrder = []string{zerolog.MessageFieldName}
	return cw
}

type lockedWriter struct {
	w io.Writer
}

// consoleMu serializes console output across all sinks.
var consoleMu sync.Mutex

func (l *lockedWriter) Write(p []byte) (int, error) {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	return l.w.Write(p)
}
