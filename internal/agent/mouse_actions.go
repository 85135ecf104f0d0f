package agent

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aquilax/go-perlin"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/dreamup/renew-agent/internal/challenge"
)

// HoverConfig shapes incidental pointer movement.
type HoverConfig struct {
	Steps     int
	StepDelay time.Duration
	// Amplitude is the maximum sideways drift in pixels.
	Amplitude float64
	Seed      int64
}

// DefaultHoverConfig returns a short, slightly wobbly movement.
func DefaultHoverConfig() HoverConfig {
	return HoverConfig{
		Steps:     12,
		StepDelay: 15 * time.Millisecond,
		Amplitude: 6,
		Seed:      time.Now().UnixNano(),
	}
}

// DispatchPointer sends a raw input event through Input.dispatchMouseEvent.
// Press and release carry the left button; moves carry none.
func (p *Page) DispatchPointer(ctx context.Context, ev challenge.PointerEvent) error {
	err := p.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		params := input.DispatchMouseEvent(input.MouseType(ev.Type), ev.X, ev.Y)
		if ev.Type != challenge.PointerMove {
			params = params.WithButton(input.Left).WithClickCount(1)
		}
		return params.Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("%s at (%.1f, %.1f) failed: %w", ev.Type, ev.X, ev.Y, err)
	}

	p.pointerMu.Lock()
	p.pointer = challenge.Point{X: ev.X, Y: ev.Y}
	p.pointerMu.Unlock()
	return nil
}

// Hover moves the pointer from its last known position to target along a
// noisy path.
func (p *Page) Hover(ctx context.Context, target challenge.Point) error {
	return p.HoverWith(ctx, target, DefaultHoverConfig())
}

// HoverWith is Hover with explicit path shaping.
func (p *Page) HoverWith(ctx context.Context, target challenge.Point, cfg HoverConfig) error {
	p.pointerMu.Lock()
	start := p.pointer
	p.pointerMu.Unlock()

	path := HoverPath(start, target, cfg)
	for i, pt := range path {
		if err := p.DispatchPointer(ctx, challenge.PointerEvent{Type: challenge.PointerMove, X: pt.X, Y: pt.Y}); err != nil {
			return fmt.Errorf("hover step %d: %w", i, err)
		}
		if err := challenge.Sleep(ctx, cfg.StepDelay); err != nil {
			return err
		}
	}
	return nil
}

// HoverPath interpolates cfg.Steps points from start to end. Interior points
// drift perpendicular to the line by Perlin noise scaled with sin(pi*t), so
// the path always ends exactly on end.
func HoverPath(start, end challenge.Point, cfg HoverConfig) []challenge.Point {
	steps := cfg.Steps
	if steps < 1 {
		steps = 1
	}

	noise := perlin.NewPerlin(2, 2, 3, cfg.Seed)

	dx, dy := end.X-start.X, end.Y-start.Y
	length := math.Hypot(dx, dy)
	var nx, ny float64
	if length > 0 {
		nx, ny = -dy/length, dx/length
	}

	path := make([]challenge.Point, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		drift := noise.Noise1D(t*2) * cfg.Amplitude * math.Sin(math.Pi*t)
		path = append(path, challenge.Point{
			X: start.X + dx*t + nx*drift,
			Y: start.Y + dy*t + ny*drift,
		})
	}
	path[len(path)-1] = end
	return path
}
