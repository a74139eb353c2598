// Package config loads and validates the crawl configuration.
//
// The configuration is a YAML document organized in sections (scraper,
// crawl, priority, captcha, pdf, output, log) plus a few top-level keys
// (output_dir, output_format, db_path, proxies). NewConfig supplies the
// defaults, LoadFile decodes a file over them, ApplyOverlay merges a
// temporary overlay, and Validate rejects unusable values with sentinel
// errors that all wrap model.ErrConfig.
//
// Batch job files (batch_urls) are handled by LoadBatchFile; every job may
// carry a custom_config section that is merged over a copy of the global
// configuration.
package config
