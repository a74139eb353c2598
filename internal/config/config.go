package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// AppName is the application name used for XDG directory paths.
const AppName = "politecrawl"

// Default configuration values.
// They mirror the template written by "politecrawl init".
const (
	// DefaultConcurrency is the number of fetch workers.
	DefaultConcurrency = 5

	// DefaultMaxDepth is the deepest link hop followed from a seed.
	DefaultMaxDepth = 3

	// DefaultMaxScroll is the scroll budget for rendered pages.
	DefaultMaxScroll = 8

	// DefaultTimeout bounds a single fetch, including the body read.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies the crawler in HTTP requests and robots.txt groups.
	DefaultUserAgent = "politecrawl/1.0 (+https://github.com/nao1215/politecrawl)"

	// DefaultMaxBodySize caps how much of a response body is read.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultRequestDelay is the minimum interval between two fetches to one domain.
	DefaultRequestDelay = 1 * time.Second

	// DefaultMaxRetries is the retry budget per task.
	DefaultMaxRetries = 3

	// DefaultBackoffBase is the first backoff step after a retryable failure.
	DefaultBackoffBase = 1 * time.Second

	// DefaultBackoffMax caps the exponential backoff.
	DefaultBackoffMax = 60 * time.Second

	// DefaultRobotsTTL is how long a robots.txt stays cached.
	DefaultRobotsTTL = time.Hour

	// DefaultInFlightWait is how long a task waits when its domain is at the in-flight cap.
	DefaultInFlightWait = 250 * time.Millisecond

	// DefaultPriorityBase is the score of a seed with no keyword matches.
	DefaultPriorityBase = 100

	// DefaultDepthWeight is subtracted from the score for every hop.
	DefaultDepthWeight = 10

	// DefaultKeywordBoost is added per matching boost keyword.
	DefaultKeywordBoost = 20

	// DefaultKeywordPenalty is subtracted per matching penalty keyword.
	DefaultKeywordPenalty = 20

	// DefaultLongURLThreshold is the URL length above which LongURLPenalty applies.
	DefaultLongURLThreshold = 120

	// DefaultLongURLPenalty is subtracted from overly long URLs.
	DefaultLongURLPenalty = 5

	// DefaultCaptchaMode is the CAPTCHA handling strategy.
	DefaultCaptchaMode = CaptchaModeFallback

	// DefaultSnapshotDir stores CAPTCHA page snapshots.
	DefaultSnapshotDir = "data/captcha_logs"

	// DefaultSolverTimeout bounds one solver call.
	DefaultSolverTimeout = 60 * time.Second

	// DefaultOutputDir holds result files.
	DefaultOutputDir = "data"

	// DefaultOutputFormat is the output sink backend.
	DefaultOutputFormat = FormatJSON

	// DefaultDBPath is the SQLite database used by the sqlite sink and "stats".
	DefaultDBPath = "data/crawler.db"

	// DefaultPDFStoreDir holds raw PDF bytes when they are stored.
	DefaultPDFStoreDir = "data/pdfs"

	// DefaultOutputQueueSize is the number of records buffered ahead of the sink.
	DefaultOutputQueueSize = 256

	// DefaultWriteTimeout is the longest a worker waits for room in the sink queue.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultShutdownTimeout is the drain window for in-flight fetches on cancellation.
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultTempConfigPath is the overlay merged over the base configuration.
	DefaultTempConfigPath = "data/temp_config.yaml"
)

// CAPTCHA handling modes.
const (
	CaptchaModeNone     = "none"
	CaptchaModeFallback = "fallback"
	CaptchaModeSolver   = "solver"
)

// Output formats.
const (
	FormatCSV    = "csv"
	FormatJSONL  = "jsonl"
	FormatJSON   = "json"
	FormatSQLite = "sqlite"
)

// Config holds the whole parameter set of a crawl run.
// It is loaded once at startup and only read afterwards; components
// receive it (or one of its sections) by pointer.
type Config struct {
	Scraper     ScraperConfig     `yaml:"scraper"`
	Performance PerformanceConfig `yaml:"performance"`
	PDF         PDFConfig         `yaml:"pdf"`
	Crawl       CrawlConfig       `yaml:"crawl"`
	Priority    PriorityConfig    `yaml:"priority"`
	Captcha     CaptchaConfig     `yaml:"captcha"`
	Output      OutputConfig      `yaml:"output"`
	Log         LogConfig         `yaml:"log"`

	// OutputDir holds csv/json/jsonl result files and the data sub-directories
	// removed by "politecrawl clean".
	OutputDir string `yaml:"output_dir"`

	// OutputFormat selects the sink: csv, jsonl, json or sqlite.
	OutputFormat string `yaml:"output_format"`

	// DBPath is the SQLite file written by the sqlite sink.
	DBPath string `yaml:"db_path"`

	// Proxies are rotated round-robin per request.
	// Supported schemes: http, https, socks5. An empty list means direct.
	Proxies []string `yaml:"proxies"`

	// ShutdownTimeout bounds how long in-flight fetches may run after cancellation.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// ScraperConfig controls the worker pool and the HTTP transport.
type ScraperConfig struct {
	// Concurrency is the fixed number of fetch workers.
	// It is also the upper bound of concurrent in-flight fetches.
	Concurrency int `yaml:"concurrency"`

	// MaxDepth is the deepest hop enqueued; a seed has depth 0.
	MaxDepth int `yaml:"max_depth"`

	// Timeout is the per-fetch deadline. Exceeding it is a retryable failure.
	Timeout Duration `yaml:"timeout"`

	// UserAgent is sent with every request and used for robots.txt group lookup.
	UserAgent string `yaml:"user_agent"`

	// MaxBodySize caps the bytes read per response.
	MaxBodySize int64 `yaml:"max_body_size"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers"`

	// Cookie is a raw Cookie header value ("a=1; b=2") sent with every request.
	Cookie string `yaml:"cookie"`
}

// PerformanceConfig holds rendering knobs.
// JavaScript rendering is not performed; MaxScroll is carried so that
// configurations shared with rendering setups load unchanged.
type PerformanceConfig struct {
	MaxScroll int `yaml:"max_scroll"`
}

// PDFConfig controls PDF handling.
type PDFConfig struct {
	// OCREnabled sends PDF payloads to the text extractor.
	OCREnabled bool `yaml:"ocr_enabled"`

	// OCRCommand is the extractor command line; the PDF is written to its stdin
	// and the text is read from its stdout.
	OCRCommand []string `yaml:"ocr_command"`

	// StoreRaw writes raw PDF bytes to StoreDir even when OCR is enabled.
	// With OCR disabled the bytes are always stored.
	StoreRaw bool `yaml:"store_raw"`

	// StoreDir is where raw PDFs are written.
	StoreDir string `yaml:"store_dir"`
}

// CrawlConfig holds URL filtering and politeness rules.
type CrawlConfig struct {
	SameDomainOnly    bool `yaml:"same_domain_only"`
	IncludeSubdomains bool `yaml:"include_subdomains"`

	// ExcludeQuery enables removal of query keys listed in ExcludeQueryKeys.
	ExcludeQuery bool `yaml:"exclude_query"`

	// ExcludeQueryKeys are matched case-insensitively as substrings of the key.
	ExcludeQueryKeys []string `yaml:"exclude_query_keys"`

	// WhitelistPaths and BlacklistPaths are path prefixes.
	WhitelistPaths []string `yaml:"whitelist_paths"`
	BlacklistPaths []string `yaml:"blacklist_paths"`

	// ExcludePatterns, WhitelistPatterns and BlacklistPatterns are regular
	// expressions matched against the canonical URL.
	ExcludePatterns   []string `yaml:"exclude_patterns"`
	WhitelistPatterns []string `yaml:"whitelist_patterns"`
	BlacklistPatterns []string `yaml:"blacklist_patterns"`

	UseRobots       bool     `yaml:"use_robots"`
	RobotsTTL       Duration `yaml:"robots_ttl"`
	HonorCrawlDelay bool     `yaml:"honor_crawl_delay"`

	// RequestDelay is the minimum interval between two fetches to one domain.
	RequestDelay Duration `yaml:"request_delay"`

	MaxRetries  int      `yaml:"max_retries"`
	BackoffBase Duration `yaml:"backoff_base"`
	BackoffMax  Duration `yaml:"backoff_max"`

	// MaxInFlightPerDomain caps concurrent fetches per domain. 0 disables the cap.
	MaxInFlightPerDomain int      `yaml:"max_in_flight_per_domain"`
	InFlightWait         Duration `yaml:"in_flight_wait"`

	// MaxRequestsPerMinute adds a token-bucket cap per domain. 0 disables it.
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute"`
}

// PriorityConfig holds the scoring parameters.
type PriorityConfig struct {
	Base             int      `yaml:"base"`
	DepthWeight      int      `yaml:"depth_weight"`
	Boost            int      `yaml:"boost"`
	Penalty          int      `yaml:"penalty"`
	BoostKeywords    []string `yaml:"boost_keywords"`
	PenaltyKeywords  []string `yaml:"penalty_keywords"`
	LongURLThreshold int      `yaml:"long_url_threshold"`
	LongURLPenalty   int      `yaml:"long_url_penalty"`
}

// CaptchaConfig controls CAPTCHA handling.
type CaptchaConfig struct {
	// Mode is one of none, fallback or solver.
	Mode string `yaml:"mode"`

	// FallbackEnabled turns on page snapshots.
	FallbackEnabled bool `yaml:"fallback_enabled"`

	SnapshotDir string `yaml:"snapshot_dir"`

	// SolverEndpoint is the HTTP endpoint of the external solver (solver mode).
	SolverEndpoint string   `yaml:"solver_endpoint"`
	SolverTimeout  Duration `yaml:"solver_timeout"`
}

// OutputConfig tunes the asynchronous sink wrapper.
type OutputConfig struct {
	QueueSize    int      `yaml:"queue_size"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// LogConfig controls log output.
type LogConfig struct {
	// JSON switches the handler from text to JSON.
	JSON bool `yaml:"json"`

	// File enables a rotating log file in addition to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// NewConfig creates a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Scraper: ScraperConfig{
			Concurrency: DefaultConcurrency,
			MaxDepth:    DefaultMaxDepth,
			Timeout:     Duration{DefaultTimeout},
			UserAgent:   DefaultUserAgent,
			MaxBodySize: DefaultMaxBodySize,
			Headers:     map[string]string{},
		},
		Performance: PerformanceConfig{
			MaxScroll: DefaultMaxScroll,
		},
		PDF: PDFConfig{
			OCREnabled: true,
			OCRCommand: []string{"pdftotext", "-", "-"},
			StoreDir:   DefaultPDFStoreDir,
		},
		Crawl: CrawlConfig{
			SameDomainOnly:   true,
			ExcludeQuery:     true,
			ExcludeQueryKeys: []string{"utm_", "ref", "session"},
			UseRobots:        true,
			RobotsTTL:        Duration{DefaultRobotsTTL},
			HonorCrawlDelay:  true,
			RequestDelay:     Duration{DefaultRequestDelay},
			MaxRetries:       DefaultMaxRetries,
			BackoffBase:      Duration{DefaultBackoffBase},
			BackoffMax:       Duration{DefaultBackoffMax},
			InFlightWait:     Duration{DefaultInFlightWait},
		},
		Priority: PriorityConfig{
			Base:             DefaultPriorityBase,
			DepthWeight:      DefaultDepthWeight,
			Boost:            DefaultKeywordBoost,
			Penalty:          DefaultKeywordPenalty,
			LongURLThreshold: DefaultLongURLThreshold,
			LongURLPenalty:   DefaultLongURLPenalty,
		},
		Captcha: CaptchaConfig{
			Mode:            DefaultCaptchaMode,
			FallbackEnabled: true,
			SnapshotDir:     DefaultSnapshotDir,
			SolverTimeout:   Duration{DefaultSolverTimeout},
		},
		Output: OutputConfig{
			QueueSize:    DefaultOutputQueueSize,
			WriteTimeout: Duration{DefaultWriteTimeout},
		},
		Log: LogConfig{
			MaxSizeMB:  5,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		},
		OutputDir:       DefaultOutputDir,
		OutputFormat:    DefaultOutputFormat,
		DBPath:          DefaultDBPath,
		ShutdownTimeout: Duration{DefaultShutdownTimeout},
	}
}

// Clone returns a deep copy, used to derive per-job configurations in batch mode.
func (c *Config) Clone() *Config {
	out := *c
	out.Scraper.Headers = cloneMap(c.Scraper.Headers)
	out.PDF.OCRCommand = cloneSlice(c.PDF.OCRCommand)
	out.Crawl.ExcludeQueryKeys = cloneSlice(c.Crawl.ExcludeQueryKeys)
	out.Crawl.WhitelistPaths = cloneSlice(c.Crawl.WhitelistPaths)
	out.Crawl.BlacklistPaths = cloneSlice(c.Crawl.BlacklistPaths)
	out.Crawl.ExcludePatterns = cloneSlice(c.Crawl.ExcludePatterns)
	out.Crawl.WhitelistPatterns = cloneSlice(c.Crawl.WhitelistPatterns)
	out.Crawl.BlacklistPatterns = cloneSlice(c.Crawl.BlacklistPatterns)
	out.Priority.BoostKeywords = cloneSlice(c.Priority.BoostKeywords)
	out.Priority.PenaltyKeywords = cloneSlice(c.Priority.PenaltyKeywords)
	out.Proxies = cloneSlice(c.Proxies)
	return &out
}

func cloneSlice(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// XDGConfigDir returns the XDG config directory for politecrawl.
// On Linux: ~/.config/politecrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGStateDir returns the XDG state directory, the default home of log files.
// On Linux: ~/.local/state/politecrawl
func XDGStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}
