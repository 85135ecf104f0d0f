package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dreamup/renew-agent/internal/agent"
)

type fakeCapturer struct {
	err error
}

func (f *fakeCapturer) CaptureScreenshot(ctx context.Context, name string) (*agent.Screenshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &agent.Screenshot{
		Name:      name,
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:      []byte("\x89PNG fake"),
	}, nil
}

type fakeMirror struct {
	keys []string
	err  error
}

func (m *fakeMirror) UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.keys = append(m.keys, key)
	return "https://bucket.example/" + key, nil
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "user_example_com", Sanitize("user@example.com"))
	assert.Equal(t, "a_b_c", Sanitize("a b/c"))
	assert.Equal(t, "plain123", Sanitize("plain123"))
	assert.Equal(t, "__", Sanitize("ü!"))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "u1_Turnstile_3.png", AttemptName("u1", 3))
	assert.Equal(t, "u1.png", FinalName("u1"))
}

func TestSnapshotWritesAndMirrors(t *testing.T) {
	dir := t.TempDir()
	mirror := &fakeMirror{}
	store := NewStore(dir, mirror, "renew", zaptest.NewLogger(t))

	path, err := NewSnapshotter(store, &fakeCapturer{}).Snapshot(context.Background(), "u1.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "u1.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG fake", string(data))
	assert.Equal(t, []string{"renew/20250301/u1.png"}, mirror.keys)
}

func TestSnapshotMirrorFailureIsNotFatal(t *testing.T) {
	store := NewStore(t.TempDir(), &fakeMirror{err: errors.New("denied")}, "", zaptest.NewLogger(t))

	_, err := NewSnapshotter(store, &fakeCapturer{}).Snapshot(context.Background(), "u1.png")
	assert.NoError(t, err)
}

func TestSnapshotCaptureFailure(t *testing.T) {
	store := NewStore(t.TempDir(), nil, "", zaptest.NewLogger(t))
	_, err := NewSnapshotter(store, &fakeCapturer{err: errors.New("tab closed")}).Snapshot(context.Background(), "u1.png")
	assert.Error(t, err)
}
