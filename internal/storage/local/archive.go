// Package local writes raw listing pages to the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Config captures the parameters for the listing archive.
type Config struct {
	// Dir is the root directory where snapshots are written.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Archive stores listing HTML snapshots under a dated directory.
type Archive struct {
	dir string
	now func() time.Time
}

// New validates that cfg.Dir exists (creating it if needed) and is writable.
func New(cfg Config) (*Archive, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("archive directory is required")
	}

	info, err := os.Stat(cfg.Dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat archive directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("archive path %s is not a directory", cfg.Dir)
	}

	probe := filepath.Join(cfg.Dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("archive directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}

	return &Archive{dir: cfg.Dir, now: time.Now}, nil
}

// ArchiveListing renders doc back to HTML and writes it as
// <dir>/<YYYY-MM-DD>/page-<n>.html, replacing an earlier snapshot of the same
// page from the same day. It returns the file path.
func (a *Archive) ArchiveListing(ctx context.Context, page int, doc *goquery.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if doc == nil {
		return "", fmt.Errorf("listing document for page %d is nil", page)
	}
	html, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return "", fmt.Errorf("render page %d: %w", page, err)
	}
	return a.put(filepath.Join(a.now().UTC().Format("2006-01-02"), fmt.Sprintf("page-%d.html", page)), []byte(html))
}

func (a *Archive) put(name string, data []byte) (string, error) {
	fullPath := filepath.Join(a.dir, name)

	// Keep writes inside dir.
	cleanDir := filepath.Clean(a.dir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return fullPath, nil
}
