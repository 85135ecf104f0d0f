package challenge

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeFrames struct {
	frames   []Frame
	boxes    map[string]Box
	boxErr   map[string]error
	events   []PointerEvent
	failType PointerType
	boxCalls []string
}

func (f *fakeFrames) Frames(ctx context.Context) ([]Frame, error) {
	return f.frames, nil
}

func (f *fakeFrames) FrameOwnerBox(ctx context.Context, frameID string) (Box, error) {
	f.boxCalls = append(f.boxCalls, frameID)
	if err := f.boxErr[frameID]; err != nil {
		return Box{}, err
	}
	box, ok := f.boxes[frameID]
	if !ok {
		return Box{}, errors.New("no owner")
	}
	return box, nil
}

func (f *fakeFrames) DispatchPointer(ctx context.Context, ev PointerEvent) error {
	if ev.Type == f.failType {
		return errors.New("input channel closed")
	}
	f.events = append(f.events, ev)
	return nil
}

func newTestSynthesizer(t *testing.T, fb FrameBrowser, board *Board, sleeps *[]time.Duration) *Synthesizer {
	return NewSynthesizer(fb, board, DefaultJitter, zaptest.NewLogger(t),
		WithRand(rand.New(rand.NewSource(7))),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		}),
	)
}

func TestSynthesizerNoSignal(t *testing.T) {
	fb := &fakeFrames{frames: []Frame{{ID: "main"}, {ID: "child", ParentID: "main"}}}
	s := newTestSynthesizer(t, fb, NewBoard(nil), nil)

	clicked, err := s.Attempt(context.Background())
	require.NoError(t, err)
	assert.False(t, clicked)
	assert.Empty(t, fb.events)
}

func TestSynthesizerClicksResolvedPoint(t *testing.T) {
	fb := &fakeFrames{
		frames: []Frame{{ID: "main"}, {ID: "ad", ParentID: "main"}, {ID: "cf", ParentID: "main"}},
		boxes:  map[string]Box{"cf": {X: 100, Y: 200, Width: 300, Height: 60}},
	}
	board := NewBoard(nil)
	require.NoError(t, board.Publish("cf", `{"xRatio":0.1,"yRatio":0.5}`))

	var sleeps []time.Duration
	s := newTestSynthesizer(t, fb, board, &sleeps)

	clicked, err := s.Attempt(context.Background())
	require.NoError(t, err)
	assert.True(t, clicked)

	require.Len(t, fb.events, 2)
	assert.Equal(t, PointerEvent{Type: PointerPress, X: 130, Y: 230}, fb.events[0])
	assert.Equal(t, PointerEvent{Type: PointerRelease, X: 130, Y: 230}, fb.events[1])

	require.Len(t, sleeps, 1)
	assert.GreaterOrEqual(t, sleeps[0], DefaultJitter.Min)
	assert.LessOrEqual(t, sleeps[0], DefaultJitter.Max)
}

func TestSynthesizerUsesNestedOwnerBoxAsIs(t *testing.T) {
	// main -> outer iframe at (100,100) -> inner iframe at (10,10) inside it.
	// Owner boxes arrive in top-level coordinates.
	fb := &fakeFrames{
		frames: []Frame{{ID: "main"}, {ID: "outer", ParentID: "main"}, {ID: "inner", ParentID: "outer"}},
		boxes: map[string]Box{
			"outer": {X: 100, Y: 100, Width: 600, Height: 400},
			"inner": {X: 110, Y: 110, Width: 100, Height: 50},
		},
	}
	board := NewBoard(nil)
	require.NoError(t, board.Publish("inner", `{"xRatio":0.5,"yRatio":0.5}`))

	s := newTestSynthesizer(t, fb, board, nil)
	clicked, err := s.Attempt(context.Background())
	require.NoError(t, err)
	require.True(t, clicked)
	assert.Equal(t, 160.0, fb.events[0].X)
	assert.Equal(t, 135.0, fb.events[0].Y)
	assert.Equal(t, []string{"inner"}, fb.boxCalls)
}

func TestSynthesizerUnresolvableOwnerIsNotFound(t *testing.T) {
	fb := &fakeFrames{
		frames: []Frame{{ID: "main"}, {ID: "cf", ParentID: "main"}},
		boxErr: map[string]error{"cf": errors.New("node detached")},
	}
	board := NewBoard(nil)
	require.NoError(t, board.Publish("cf", `{"xRatio":0.5,"yRatio":0.5}`))

	s := newTestSynthesizer(t, fb, board, nil)
	clicked, err := s.Attempt(context.Background())
	require.NoError(t, err)
	assert.False(t, clicked)
	assert.Empty(t, fb.events)
}

func TestSynthesizerZeroAreaOwnerIsNotFound(t *testing.T) {
	fb := &fakeFrames{
		frames: []Frame{{ID: "main"}, {ID: "cf", ParentID: "main"}},
		boxes:  map[string]Box{"cf": {X: 10, Y: 10}},
	}
	board := NewBoard(nil)
	require.NoError(t, board.Publish("cf", `{"xRatio":0.5,"yRatio":0.5}`))

	clicked, err := newTestSynthesizer(t, fb, board, nil).Attempt(context.Background())
	require.NoError(t, err)
	assert.False(t, clicked)
}

func TestSynthesizerRepeatedAttemptsHitSamePoint(t *testing.T) {
	fb := &fakeFrames{
		frames: []Frame{{ID: "main"}, {ID: "cf", ParentID: "main"}},
		boxes:  map[string]Box{"cf": {X: 0, Y: 0, Width: 100, Height: 50}},
	}
	board := NewBoard(nil)
	require.NoError(t, board.Publish("cf", `{"xRatio":0.5,"yRatio":0.5}`))
	s := newTestSynthesizer(t, fb, board, nil)

	for i := 0; i < 3; i++ {
		clicked, err := s.Attempt(context.Background())
		require.NoError(t, err)
		require.True(t, clicked)
	}
	for _, ev := range fb.events {
		assert.Equal(t, 50.0, ev.X)
		assert.Equal(t, 25.0, ev.Y)
	}

	board.ResetAll()
	clicked, err := s.Attempt(context.Background())
	require.NoError(t, err)
	assert.False(t, clicked)
}

func TestSynthesizerPressFailure(t *testing.T) {
	fb := &fakeFrames{
		frames:   []Frame{{ID: "main"}, {ID: "cf", ParentID: "main"}},
		boxes:    map[string]Box{"cf": {X: 0, Y: 0, Width: 100, Height: 50}},
		failType: PointerPress,
	}
	board := NewBoard(nil)
	require.NoError(t, board.Publish("cf", `{"xRatio":0.5,"yRatio":0.5}`))

	clicked, err := newTestSynthesizer(t, fb, board, nil).Attempt(context.Background())
	assert.Error(t, err)
	assert.False(t, clicked)
}

func TestJitterDraw(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	j := Jitter{Min: 10 * time.Millisecond, Max: 20 * time.Millisecond}
	for i := 0; i < 100; i++ {
		d := j.Draw(rng)
		assert.GreaterOrEqual(t, d, j.Min)
		assert.LessOrEqual(t, d, j.Max)
	}

	fixed := Jitter{Min: 30 * time.Millisecond, Max: 30 * time.Millisecond}
	assert.Equal(t, 30*time.Millisecond, fixed.Draw(rng))
}

func TestSleepHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
