package config

import (
	"net/url"
	"regexp"
	"strings"
)

// Validate checks the configuration and returns the first problem found.
// It runs once after loading, before any fetch is attempted.
func (c *Config) Validate() error {
	if c.Scraper.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Scraper.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.Scraper.Timeout.Duration <= 0 {
		return ErrInvalidTimeout
	}
	if c.Scraper.MaxBodySize <= 0 {
		return ErrInvalidMaxBodySize
	}
	if c.Performance.MaxScroll < 0 {
		return ErrInvalidMaxScroll
	}

	if c.Crawl.RequestDelay.Duration < 0 {
		return ErrInvalidRequestDelay
	}
	if c.Crawl.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if c.Crawl.RobotsTTL.Duration <= 0 {
		return ErrInvalidRobotsTTL
	}
	if c.Crawl.BackoffBase.Duration <= 0 || c.Crawl.BackoffMax.Duration < c.Crawl.BackoffBase.Duration {
		return ErrInvalidBackoff
	}
	if err := validatePatterns(c.Crawl.ExcludePatterns, c.Crawl.WhitelistPatterns, c.Crawl.BlacklistPatterns); err != nil {
		return err
	}

	switch c.Captcha.Mode {
	case CaptchaModeNone, CaptchaModeFallback:
	case CaptchaModeSolver:
		if strings.TrimSpace(c.Captcha.SolverEndpoint) == "" {
			return ErrMissingSolverEndpoint
		}
	default:
		return withDetail(ErrInvalidCaptchaMode, "%q", c.Captcha.Mode)
	}

	switch strings.ToLower(c.OutputFormat) {
	case FormatCSV, FormatJSONL, FormatJSON, FormatSQLite:
	default:
		return withDetail(ErrInvalidOutputFormat, "%q", c.OutputFormat)
	}
	if c.Output.QueueSize <= 0 || c.Output.WriteTimeout.Duration <= 0 {
		return ErrInvalidOutputQueue
	}

	if c.PDF.OCREnabled && len(c.PDF.OCRCommand) == 0 {
		return ErrMissingOCRCommand
	}

	if c.ShutdownTimeout.Duration < 0 {
		return ErrInvalidShutdownTimeout
	}

	for _, p := range c.Proxies {
		if err := validateProxy(p); err != nil {
			return err
		}
	}

	return nil
}

func validatePatterns(groups ...[]string) error {
	for _, group := range groups {
		for _, p := range group {
			if _, err := regexp.Compile(p); err != nil {
				return withDetail(ErrInvalidPattern, "%q: %v", p, err)
			}
		}
	}
	return nil
}

func validateProxy(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return withDetail(ErrInvalidProxy, "%q", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "socks5", "socks5h":
		return nil
	default:
		return withDetail(ErrInvalidProxy, "%q", raw)
	}
}
