// Package diagnostics names and persists full-page snapshots: locally in a
// known directory and, when configured, mirrored to object storage.
package diagnostics

import (
	"context"
	"fmt"
	"path"
	"regexp"

	"go.uber.org/zap"

	"github.com/dreamup/renew-agent/internal/agent"
)

var unsafeRunes = regexp.MustCompile(`[^A-Za-z0-9]`)

// Sanitize turns an account identifier into a filename stem.
func Sanitize(id string) string {
	return unsafeRunes.ReplaceAllString(id, "_")
}

// AttemptName is the pre-confirm snapshot name of attempt n (1-based).
func AttemptName(stem string, n int) string {
	return fmt.Sprintf("%s_Turnstile_%d.png", stem, n)
}

// FinalName is the per-account final snapshot name.
func FinalName(stem string) string {
	return stem + ".png"
}

// Capturer takes a full-page screenshot.
type Capturer interface {
	CaptureScreenshot(ctx context.Context, name string) (*agent.Screenshot, error)
}

// Mirror uploads snapshot bytes under key and returns their URL.
type Mirror interface {
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Store writes snapshots to Dir and optionally mirrors them.
type Store struct {
	dir    string
	mirror Mirror
	prefix string
	logger *zap.Logger
}

// NewStore creates a Store. mirror may be nil.
func NewStore(dir string, mirror Mirror, prefix string, logger *zap.Logger) *Store {
	return &Store{
		dir:    dir,
		mirror: mirror,
		prefix: prefix,
		logger: logger.Named("diagnostics"),
	}
}

// Dir is the local snapshot directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save persists shot and returns its local path. Mirror failures are logged
// and do not fail the save.
func (s *Store) Save(ctx context.Context, shot *agent.Screenshot) (string, error) {
	if err := shot.SaveTo(s.dir); err != nil {
		return "", err
	}

	if s.mirror != nil {
		key := path.Join(s.prefix, shot.Timestamp.Format("20060102"), shot.Name)
		if url, err := s.mirror.UploadBytes(ctx, key, shot.Data, "image/png"); err != nil {
			s.logger.Warn("Failed to mirror snapshot", zap.String("name", shot.Name), zap.Error(err))
		} else {
			s.logger.Debug("Snapshot mirrored", zap.String("url", url))
		}
	}

	s.logger.Info("📸 Snapshot saved", zap.String("path", shot.Filepath))
	return shot.Filepath, nil
}

// Snapshotter binds a Store to the tab it captures.
type Snapshotter struct {
	store    *Store
	capturer Capturer
}

// NewSnapshotter creates a Snapshotter capturing from c.
func NewSnapshotter(store *Store, c Capturer) *Snapshotter {
	return &Snapshotter{store: store, capturer: c}
}

// Snapshot captures and saves a snapshot called name.
func (s *Snapshotter) Snapshot(ctx context.Context, name string) (string, error) {
	shot, err := s.capturer.CaptureScreenshot(ctx, name)
	if err != nil {
		return "", err
	}
	return s.store.Save(ctx, shot)
}
