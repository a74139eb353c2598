// Package log builds the slog loggers used across politecrawl.
//
// Every logger is wrapped in a SecureHandler that masks sensitive values
// before they are written: request headers and cookies forwarded to crawled
// sites, solver tokens, and credentials embedded in proxy URLs.
//
//	logger, closer, err := log.NewLogger(os.Stderr, log.Options{
//	    Verbose: true,
//	    File:    "data/logs/politecrawl.log",
//	})
//	defer closer.Close()
//	logger.Info("using proxy", "proxy", "socks5://user:pw@127.0.0.1:9050")
//	// proxy=socks5://***REDACTED***@127.0.0.1:9050
//
// A log file, when configured, is rotated by size with lumberjack.
package log
