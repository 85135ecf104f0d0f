package challenge

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Frame is one document in the page's frame tree. The main frame has an
// empty ParentID.
type Frame struct {
	ID       string
	ParentID string
	URL      string
}

// PointerType is the raw input event type.
type PointerType string

const (
	PointerPress   PointerType = "mousePressed"
	PointerRelease PointerType = "mouseReleased"
	PointerMove    PointerType = "mouseMoved"
)

// PointerEvent is a raw left-button pointer event at page coordinates.
type PointerEvent struct {
	Type PointerType
	X    float64
	Y    float64
}

// FrameBrowser is the slice of the browser the Synthesizer needs.
type FrameBrowser interface {
	// Frames lists the frame tree, parents before children.
	Frames(ctx context.Context) ([]Frame, error)
	// FrameOwnerBox returns the box of the iframe element hosting frameID in
	// top-level page coordinates, however deeply the frame is nested.
	FrameOwnerBox(ctx context.Context, frameID string) (Box, error)
	// DispatchPointer sends a raw input event through the input domain.
	DispatchPointer(ctx context.Context, ev PointerEvent) error
}

// Jitter bounds the randomized delay between press and release.
type Jitter struct {
	Min time.Duration
	Max time.Duration
}

// DefaultJitter matches a hurried human click.
var DefaultJitter = Jitter{Min: 50 * time.Millisecond, Max: 150 * time.Millisecond}

// Draw returns a delay in [Min, Max].
func (j Jitter) Draw(rng *rand.Rand) time.Duration {
	if j.Max <= j.Min {
		return j.Min
	}
	return j.Min + time.Duration(rng.Int63n(int64(j.Max-j.Min)+1))
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Synthesizer turns a published Signal into a raw press/release pair.
type Synthesizer struct {
	browser FrameBrowser
	board   *Board
	jitter  Jitter
	rng     *rand.Rand
	sleep   SleepFunc
	logger  *zap.Logger
}

// Option customizes a Synthesizer.
type Option func(*Synthesizer)

// WithRand sets the randomness source used for jitter.
func WithRand(rng *rand.Rand) Option {
	return func(s *Synthesizer) { s.rng = rng }
}

// WithSleep replaces the wall-clock wait between press and release.
func WithSleep(fn SleepFunc) Option {
	return func(s *Synthesizer) { s.sleep = fn }
}

// NewSynthesizer creates a Synthesizer reading signals from board.
func NewSynthesizer(browser FrameBrowser, board *Board, jitter Jitter, logger *zap.Logger, opts ...Option) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Synthesizer{
		browser: browser,
		board:   board,
		jitter:  jitter,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   Sleep,
		logger:  logger.Named("synthesizer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attempt scans all frames for a published signal and, for the first one
// found, clicks its absolute position. It returns true when a click was
// dispatched. A dispatched click does not mean the challenge passed.
func (s *Synthesizer) Attempt(ctx context.Context) (bool, error) {
	frames, err := s.browser.Frames(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list frames: %w", err)
	}

	for _, f := range frames {
		sig, ok := s.board.Lookup(f.ID)
		if !ok {
			continue
		}

		s.logger.Info("Found challenge signal in frame",
			zap.String("frame_id", f.ID),
			zap.Float64("x_ratio", sig.XRatio),
			zap.Float64("y_ratio", sig.YRatio),
		)

		box, err := s.pageBox(ctx, f)
		if err != nil {
			s.logger.Debug("Could not resolve hosting iframe", zap.String("frame_id", f.ID), zap.Error(err))
			return false, nil
		}

		target := Resolve(box, sig)
		s.logger.Info("Calculated challenge click",
			zap.Float64("x", target.X),
			zap.Float64("y", target.Y),
		)

		if err := s.click(ctx, target); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, nil
}

// pageBox resolves the hosting iframe of f. The owner box is already in
// top-level coordinates, so ancestor iframes add nothing.
func (s *Synthesizer) pageBox(ctx context.Context, f Frame) (Box, error) {
	if f.ParentID == "" {
		return Box{}, fmt.Errorf("frame %s is the main frame", f.ID)
	}

	box, err := s.browser.FrameOwnerBox(ctx, f.ID)
	if err != nil {
		return Box{}, err
	}
	if box.Empty() {
		return Box{}, fmt.Errorf("hosting iframe of %s has no area", f.ID)
	}
	return box, nil
}

func (s *Synthesizer) click(ctx context.Context, p Point) error {
	if err := s.browser.DispatchPointer(ctx, PointerEvent{Type: PointerPress, X: p.X, Y: p.Y}); err != nil {
		return fmt.Errorf("pointer press failed: %w", err)
	}

	hold := s.jitter.Draw(s.rng)
	if err := s.sleep(ctx, hold); err != nil {
		// Never leave the button held down.
		_ = s.browser.DispatchPointer(context.WithoutCancel(ctx), PointerEvent{Type: PointerRelease, X: p.X, Y: p.Y})
		return err
	}

	if err := s.browser.DispatchPointer(ctx, PointerEvent{Type: PointerRelease, X: p.X, Y: p.Y}); err != nil {
		return fmt.Errorf("pointer release failed: %w", err)
	}

	s.logger.Info("Raw pointer click sent", zap.Duration("hold", hold))
	return nil
}
