package config

import (
	"errors"
	"fmt"

	"github.com/nao1215/politecrawl/internal/model"
)

// Configuration validation errors.
// Every error returned by Validate, LoadFile and LoadBatchFile wraps
// model.ErrConfig, so the CLI can treat them uniformly as startup failures
// while tests still match the specific cause with errors.Is.
var (
	// ErrConfigNotFound is returned when an explicitly named file does not exist.
	ErrConfigNotFound = newConfigError("configuration file not found")

	// ErrMalformedConfig is returned when the YAML cannot be decoded.
	ErrMalformedConfig = newConfigError("malformed configuration file")

	// ErrInvalidConcurrency is returned when scraper.concurrency is not positive.
	ErrInvalidConcurrency = newConfigError("invalid scraper.concurrency: must be positive")

	// ErrInvalidMaxDepth is returned when scraper.max_depth is negative.
	ErrInvalidMaxDepth = newConfigError("invalid scraper.max_depth: must be non-negative")

	// ErrInvalidTimeout is returned when scraper.timeout is not positive.
	ErrInvalidTimeout = newConfigError("invalid scraper.timeout: must be positive")

	// ErrInvalidMaxBodySize is returned when scraper.max_body_size is not positive.
	ErrInvalidMaxBodySize = newConfigError("invalid scraper.max_body_size: must be positive")

	// ErrInvalidMaxScroll is returned when performance.max_scroll is negative.
	ErrInvalidMaxScroll = newConfigError("invalid performance.max_scroll: must be non-negative")

	// ErrInvalidRequestDelay is returned when crawl.request_delay is negative.
	ErrInvalidRequestDelay = newConfigError("invalid crawl.request_delay: must be non-negative")

	// ErrInvalidMaxRetries is returned when crawl.max_retries is negative.
	ErrInvalidMaxRetries = newConfigError("invalid crawl.max_retries: must be non-negative")

	// ErrInvalidRobotsTTL is returned when crawl.robots_ttl is not positive.
	ErrInvalidRobotsTTL = newConfigError("invalid crawl.robots_ttl: must be positive")

	// ErrInvalidShutdownTimeout is returned when shutdown_timeout is negative.
	ErrInvalidShutdownTimeout = newConfigError("invalid shutdown_timeout: must be non-negative")

	// ErrInvalidBackoff is returned when the backoff window is inconsistent.
	ErrInvalidBackoff = newConfigError("invalid crawl.backoff_base/backoff_max: base must be positive and not exceed max")

	// ErrInvalidPattern is returned when a filter regex does not compile.
	ErrInvalidPattern = newConfigError("invalid crawl pattern")

	// ErrInvalidCaptchaMode is returned for an unknown captcha.mode.
	ErrInvalidCaptchaMode = newConfigError("invalid captcha.mode: must be none, fallback or solver")

	// ErrMissingSolverEndpoint is returned when solver mode has no endpoint.
	ErrMissingSolverEndpoint = newConfigError("captcha.mode solver requires captcha.solver_endpoint")

	// ErrInvalidOutputFormat is returned for an unknown output_format.
	ErrInvalidOutputFormat = newConfigError("invalid output_format: must be csv, jsonl, json or sqlite")

	// ErrMissingOCRCommand is returned when OCR is enabled without a command.
	ErrMissingOCRCommand = newConfigError("pdf.ocr_enabled requires pdf.ocr_command")

	// ErrInvalidProxy is returned when a proxy entry cannot be parsed.
	ErrInvalidProxy = newConfigError("invalid proxy: must be an http, https or socks5 URL")

	// ErrInvalidOutputQueue is returned when the sink queue settings are not positive.
	ErrInvalidOutputQueue = newConfigError("invalid output.queue_size/write_timeout: must be positive")

	// ErrEmptyBatch is returned when a batch file lists no jobs.
	ErrEmptyBatch = newConfigError("batch file contains no batch_urls")
)

// configError is a sentinel that also matches model.ErrConfig.
type configError struct {
	msg string
}

func newConfigError(msg string) error {
	return &configError{msg: msg}
}

func (e *configError) Error() string {
	return e.msg
}

// Unwrap makes errors.Is(err, model.ErrConfig) hold for every sentinel.
func (e *configError) Unwrap() error {
	return model.ErrConfig
}

// withDetail attaches a dynamic detail to a sentinel while keeping it matchable.
func withDetail(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// IsConfigError reports whether err stems from configuration loading or validation.
func IsConfigError(err error) bool {
	return errors.Is(err, model.ErrConfig)
}
