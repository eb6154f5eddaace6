package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jo-hoe/cisclient/internal/logger"
)

// Processor runs the lifecycle of one batch.
type Processor interface {
	Process(ctx context.Context, batch SubmissionBatch) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, batch SubmissionBatch) error

func (f ProcessorFunc) Process(ctx context.Context, batch SubmissionBatch) error { return f(ctx, batch) }

// Outcome is the result of one batch run.
type Outcome struct {
	Batch    SubmissionBatch
	Err      error
	Duration time.Duration
}

// Group runs batches concurrently and joins them. A failing or panicking batch
// never cancels its siblings.
type Group struct {
	log   logger.Logger
	limit int
}

// NewGroup creates a Group; limit <= 0 runs every batch at once.
func NewGroup(log logger.Logger, limit int) *Group {
	return &Group{log: log, limit: limit}
}

// Run processes every batch and returns outcomes in batch order once all of
// them have finished.
func (g *Group) Run(ctx context.Context, p Processor, batches []SubmissionBatch) []Outcome {
	outcomes := make([]Outcome, len(batches))
	var eg errgroup.Group
	if g.limit > 0 {
		eg.SetLimit(g.limit)
	}
	for i, b := range batches {
		i, b := i, b
		eg.Go(func() error {
			outcomes[i] = g.runOne(ctx, p, b)
			return nil
		})
	}
	_ = eg.Wait()
	return outcomes
}

func (g *Group) runOne(ctx context.Context, p Processor, b SubmissionBatch) (out Outcome) {
	out.Batch = b
	start := time.Now()
	log := g.log.With().Str(logger.JobField, logger.Tag(b.Index)).Logger()
	defer func() {
		out.Duration = time.Since(start)
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("job %s panicked: %v", logger.Tag(b.Index), r)
			log.Error().Str("stack", string(debug.Stack())).Msg("job panicked")
		}
		if out.Err != nil {
			log.Debug().Err(out.Err).Dur("duration", out.Duration).Msg("job ended with error")
			return
		}
		log.Debug().Dur("duration", out.Duration).Msg("job processed")
	}()
	log.Debug().Int("files", len(b.Files)).Msg("processing job")
	out.Err = p.Process(ctx, b)
	return out
}
