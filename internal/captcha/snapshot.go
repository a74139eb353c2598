package captcha

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxNameLen keeps snapshot file names under common file system limits.
const maxNameLen = 200

// SnapshotWriter stores CAPTCHA pages as HTML files in a directory.
type SnapshotWriter struct {
	dir string
	now func() time.Time
}

// NewSnapshotWriter creates a writer for dir. The directory is created on
// the first write.
func NewSnapshotWriter(dir string) *SnapshotWriter {
	return &SnapshotWriter{dir: dir, now: time.Now}
}

// Dir returns the snapshot directory.
func (w *SnapshotWriter) Dir() string {
	return w.dir
}

// Write saves body for rawURL and returns the file path.
func (w *SnapshotWriter) Write(rawURL string, body []byte) (string, error) {
	if err := os.MkdirAll(w.dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	path := filepath.Join(w.dir, SnapshotName(w.now(), rawURL))
	if err := os.WriteFile(path, body, 0600); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return path, nil
}

// SnapshotName builds "{UTC yyyymmdd_hhmmss}_{url}.html" where the URL loses
// its scheme and every "/" becomes "_".
func SnapshotName(t time.Time, rawURL string) string {
	safe := strings.TrimPrefix(rawURL, "https://")
	safe = strings.TrimPrefix(safe, "http://")
	safe = strings.ReplaceAll(safe, "/", "_")
	if len(safe) > maxNameLen {
		safe = safe[:maxNameLen]
	}
	return t.UTC().Format("20060102_150405") + "_" + safe + ".html"
}
