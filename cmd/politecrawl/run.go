package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/politecrawl/internal/config"
	"github.com/nao1215/politecrawl/internal/crawler"
	"github.com/nao1215/politecrawl/internal/log"
	"github.com/nao1215/politecrawl/internal/metrics"
	"github.com/nao1215/politecrawl/internal/model"
	"github.com/nao1215/politecrawl/internal/output"
	"github.com/nao1215/politecrawl/internal/pipeline"
	"github.com/nao1215/politecrawl/internal/report"
)

// errSeedsAndBatch is returned when seeds and --batch are combined.
var errSeedsAndBatch = fmt.Errorf("%w: seed URLs and --batch are mutually exclusive", model.ErrConfig)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [seed-url...]",
		Short: "Crawl from seed URLs",
		Long: `Run crawls from one or more seed URLs until no task is left.

Every seed defines its own domain scope. Discovered links are filtered,
scored and crawled breadth-first within max_depth, most promising first.
Each crawled URL becomes one record in the configured output.

Press Ctrl+C to stop: in-flight fetches get shutdown_timeout to finish,
and the summary of the partial run is still written.

Examples:
  # Crawl a site with the default configuration
  politecrawl run https://example.com/

  # Use a configuration file and write JSON Lines
  politecrawl run -c politecrawl.yaml -f jsonl https://example.com/docs/

  # Run every job of a batch file, one after another
  politecrawl run --batch jobs.yaml

  # Expose Prometheus metrics while crawling
  politecrawl run --metrics-addr :9090 https://example.com/

  # Write a Markdown run summary to a file
  politecrawl run -r markdown -o report.md https://example.com/

Batch file example:
  batch_urls:
    - url: https://example.com/
      priority: 1
      description: example docs
      custom_config:
        scraper:
          max_depth: 1`,
		Args: cobra.ArbitraryArgs,
		RunE: runRunCmd,
	}

	addConfigFlags(cmd)

	// Crawl behavior flags
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of fetch workers (overrides scraper.concurrency)")
	cmd.Flags().IntP("max-depth", "d", config.DefaultMaxDepth,
		"Maximum link depth from a seed (overrides scraper.max_depth)")
	cmd.Flags().StringP("format", "f", config.DefaultOutputFormat,
		"Output format: csv, jsonl, json or sqlite (overrides output_format)")
	cmd.Flags().String("output-dir", config.DefaultOutputDir,
		"Directory for result files (overrides output_dir)")

	// Batch flags
	cmd.Flags().StringP("batch", "b", "",
		"Batch file listing crawl jobs (batch_urls)")

	// Observability flags
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics at this address (e.g. :9090)")

	// Report flags
	cmd.Flags().StringP("report", "r", report.FormatText,
		"Run summary format: text, markdown or json")
	cmd.Flags().StringP("report-file", "o", "",
		"Write the run summary to this file instead of stdout")

	return cmd
}

// runOptions are the non-config flags of the run command.
type runOptions struct {
	seeds        []string
	batchFile    string
	metricsAddr  string
	reportFormat string
	reportFile   string
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, args []string) error {
	cfg, opts, err := buildRunConfig(cmd, args)
	if err != nil {
		return err
	}

	logger, closer, err := log.NewLogger(cmd.ErrOrStderr(), loggerOptions(cmd, cfg))
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cmd.OutOrStdout(), cfg, opts, logger)
}

// buildRunConfig loads the configuration, applies flag overrides and
// validates the result. Every error it returns is a configuration error.
func buildRunConfig(cmd *cobra.Command, args []string) (*config.Config, runOptions, error) {
	var opts runOptions

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, opts, err
	}

	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		if cfg.Scraper.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, opts, err
		}
	}
	if flags.Changed("max-depth") {
		if cfg.Scraper.MaxDepth, err = flags.GetInt("max-depth"); err != nil {
			return nil, opts, err
		}
	}
	if flags.Changed("format") {
		if cfg.OutputFormat, err = flags.GetString("format"); err != nil {
			return nil, opts, err
		}
	}
	if flags.Changed("output-dir") {
		if cfg.OutputDir, err = flags.GetString("output-dir"); err != nil {
			return nil, opts, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, opts, err
	}

	opts.seeds = args
	if opts.batchFile, err = flags.GetString("batch"); err != nil {
		return nil, opts, err
	}
	if opts.metricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return nil, opts, err
	}
	if opts.reportFormat, err = flags.GetString("report"); err != nil {
		return nil, opts, err
	}
	if opts.reportFile, err = flags.GetString("report-file"); err != nil {
		return nil, opts, err
	}

	switch {
	case opts.batchFile != "" && len(opts.seeds) > 0:
		return nil, opts, errSeedsAndBatch
	case opts.batchFile == "" && len(opts.seeds) == 0:
		return nil, opts, crawler.ErrNoSeeds
	}
	if _, err := report.NewWriter(opts.reportFormat, io.Discard); err != nil {
		return nil, opts, fmt.Errorf("%w: %w", model.ErrConfig, err)
	}
	return cfg, opts, nil
}

// runCrawl runs a single crawl or a batch and writes the run summaries.
// A cancelled run is not an error.
func runCrawl(ctx context.Context, stdout io.Writer, cfg *config.Config, opts runOptions, logger *slog.Logger) error {
	var m *metrics.Metrics
	if opts.metricsAddr != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, opts.metricsAddr, logger); err != nil {
				logger.Error("metrics server failed", "addr", opts.metricsAddr, "error", err)
			}
		}()
	}

	writer, closeReport, err := openReport(stdout, opts)
	if err != nil {
		return err
	}
	defer closeReport()

	if opts.batchFile != "" {
		return runBatch(ctx, cfg, opts.batchFile, writer, m, logger)
	}

	summary, err := crawlOnce(ctx, cfg, "", opts.seeds, m, logger)
	if summary != nil {
		if _, werr := writer.WriteSummary(summary); werr != nil {
			logger.Error("failed to write run summary", "error", werr)
		}
	}
	return err
}

// crawlOnce opens the output sink, crawls seeds and closes the sink.
func crawlOnce(ctx context.Context, cfg *config.Config, name string, seeds []string, m *metrics.Metrics, logger *slog.Logger) (*model.RunSummary, error) {
	sink, err := output.New(cfg, time.Now(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open output: %w", err)
	}

	c, err := crawler.New(cfg, sink,
		crawler.WithLogger(logger),
		crawler.WithMetrics(m),
		crawler.WithName(name),
	)
	if err != nil {
		_ = sink.Close() //nolint:errcheck // Nothing was written
		return nil, err
	}

	summary, runErr := c.Run(ctx, seeds)
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close output: %w", err)
	}
	logger.Info("results written",
		"path", sink.Path(),
		"records", sink.Written(),
	)
	return summary, runErr
}

// runBatch runs every job of a batch file sequentially. A failed job is
// reported and the next job starts; cancellation stops the batch cleanly.
func runBatch(ctx context.Context, base *config.Config, path string, writer report.Writer, m *metrics.Metrics, logger *slog.Logger) error {
	entries, err := config.LoadBatchFile(path)
	if err != nil {
		return err
	}

	// Resolve every job before crawling so a bad entry fails fast.
	jobs := make([]pipeline.Job, 0, len(entries))
	for _, e := range entries {
		cfg, err := e.Resolve(base)
		if err != nil {
			return err
		}
		jobs = append(jobs, pipeline.Job{Name: e.Name(), Seeds: []string{e.URL}, Config: cfg})
	}

	bp := pipeline.NewBatchProcessor(
		func(ctx context.Context, job pipeline.Job) (*model.RunSummary, error) {
			return crawlOnce(ctx, job.Config, job.Name, job.Seeds, m, logger)
		},
		pipeline.WithBatchLogger(logger),
	)

	var mu sync.Mutex
	failed := 0
	err = bp.ProcessBatchWithCallback(ctx, jobs, func(summary *model.RunSummary, index int) {
		mu.Lock()
		defer mu.Unlock()

		if summary.Error != "" {
			failed++
		}
		logger.Info("batch job finished",
			"job", jobs[index].Name,
			"index", index+1,
			"total", len(jobs),
		)
		if _, err := writer.WriteSummary(summary); err != nil {
			logger.Error("failed to write run summary", "job", jobs[index].Name, "error", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		logger.Warn("batch cancelled")
		return nil
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		logger.Warn("batch finished with failed jobs", "failed", failed, "total", len(jobs))
	}
	return nil
}

// openReport returns the run summary writer. With a report file, the
// summary is written to the file in the requested format and a text
// summary still goes to stdout.
func openReport(stdout io.Writer, opts runOptions) (report.Writer, func(), error) {
	if opts.reportFile == "" {
		w, err := report.NewWriter(opts.reportFormat, stdout)
		return w, func() {}, err
	}

	if dir := filepath.Dir(opts.reportFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.OpenFile(opts.reportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create report file: %w", err)
	}
	fileWriter, err := report.NewWriter(opts.reportFormat, f)
	if err != nil {
		_ = f.Close() //nolint:errcheck // Format was validated earlier
		return nil, nil, err
	}
	w := report.NewMultiWriter(report.NewSimpleWriter(stdout), fileWriter)
	return w, func() { _ = f.Close() }, nil
}
