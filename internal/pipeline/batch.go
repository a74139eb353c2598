package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/politecrawl/internal/config"
	"github.com/nao1215/politecrawl/internal/model"
)

// Job is one crawl of a batch.
type Job struct {
	// Name labels the job in logs and in its summary.
	Name string

	// Seeds are the start URLs of the crawl.
	Seeds []string

	// Config is the job's own configuration, already merged over the base.
	Config *config.Config
}

// Runner executes one job. It returns the job's summary, which may be nil
// when the job failed before crawling started.
type Runner func(ctx context.Context, job Job) (*model.RunSummary, error)

// BatchProcessor runs a list of jobs with a concurrency limit.
type BatchProcessor struct {
	runner Runner

	// concurrency is the maximum number of jobs running at once.
	concurrency int

	// continueOnError keeps the batch going after a failed job.
	continueOnError bool

	logger *slog.Logger

	// results holds one summary per job, in job order.
	results []*model.RunSummary
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent jobs.
// Default is 1, which runs jobs strictly in order.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithContinueOnError controls whether a failed job stops the batch.
// The default is to continue.
func WithContinueOnError(continueOnError bool) BatchOption {
	return func(b *BatchProcessor) {
		b.continueOnError = continueOnError
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(runner Runner, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		runner:          runner,
		concurrency:     1,
		continueOnError: true,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch runs every job and returns their summaries in job order.
// Jobs that never started (cancellation, stop on error) have no summary.
//
// The error is ctx.Err() when the batch was cancelled, or the first job
// error when continue-on-error is off.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, jobs []Job) ([]*model.RunSummary, error) {
	bp.mu.Lock()
	bp.results = make([]*model.RunSummary, len(jobs))
	bp.mu.Unlock()

	err := bp.process(ctx, jobs, func(s *model.RunSummary, i int) {
		bp.mu.Lock()
		bp.results[i] = s
		bp.mu.Unlock()
	})

	bp.mu.Lock()
	defer bp.mu.Unlock()
	out := make([]*model.RunSummary, 0, len(bp.results))
	for _, s := range bp.results {
		if s != nil {
			out = append(out, s)
		}
	}
	return out, err
}

// ProcessBatchWithCallback runs every job and calls callback with each
// job's summary as soon as the job ends. It is useful for streaming reports.
//
// The callback receives the summary and the index of the job in jobs. With
// a concurrency above one it is called from several goroutines.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	jobs []Job,
	callback func(summary *model.RunSummary, index int),
) error {
	return bp.process(ctx, jobs, callback)
}

func (bp *BatchProcessor) process(ctx context.Context, jobs []Job, done func(*model.RunSummary, int)) error {
	bp.logger.Info("starting batch processing",
		"total_jobs", len(jobs),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			// Check for cancellation before starting
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("running job",
				"job", job.Name,
				"index", i+1,
				"total", len(jobs),
			)

			summary, err := bp.runner(ctx, job)
			if summary == nil {
				summary = model.NewRunSummary("", job.Seeds)
				summary.Finish(false, err)
			}
			if summary.Name == "" {
				summary.Name = job.Name
			}
			if err != nil && summary.Error == "" {
				summary.Error = err.Error()
			}
			done(summary, i)

			if err != nil {
				bp.logger.Warn("job failed",
					"job", job.Name,
					"error", err,
				)
				if !bp.continueOnError {
					return err
				}
				return nil
			}

			bp.logger.Info("job completed",
				"job", job.Name,
				"records", summary.Total(),
			)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_jobs", len(jobs),
		"elapsed", time.Since(startTime),
	)
	return err
}
