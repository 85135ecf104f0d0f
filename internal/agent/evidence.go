package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// Screenshot represents a captured full-page image with metadata
type Screenshot struct {
	// Name is the file name the screenshot is persisted under
	Name string
	// Filepath is the local path once saved
	Filepath string
	// Timestamp records when the screenshot was captured
	Timestamp time.Time
	// Data contains the raw PNG image bytes
	Data []byte
}

// CaptureScreenshot captures a full-page PNG of the tab.
func (p *Page) CaptureScreenshot(ctx context.Context, name string) (*Screenshot, error) {
	var buf []byte
	if err := p.run(ctx, 0, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}

	return &Screenshot{
		Name:      name,
		Timestamp: time.Now(),
		Data:      buf,
	}, nil
}

// SaveTo writes the screenshot into dir, overwriting an earlier capture of the same name.
func (s *Screenshot) SaveTo(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return NewStorageError("failed to create screenshot dir", err)
	}

	path := filepath.Join(dir, s.Name)
	if err := os.WriteFile(path, s.Data, 0o644); err != nil {
		return NewStorageError(fmt.Sprintf("failed to save screenshot to %s", path), err)
	}

	s.Filepath = path
	return nil
}
