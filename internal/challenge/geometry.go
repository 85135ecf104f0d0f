package challenge

import (
	"fmt"
	"math"
)

// Point is a position in top-level page CSS pixels.
type Point struct {
	X float64
	Y float64
}

// Box is an axis-aligned rectangle in CSS pixels.
type Box struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Center returns the midpoint of the box.
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Resolve maps a frame-relative signal onto the hosting iframe's box.
func Resolve(box Box, sig Signal) Point {
	return Point{
		X: box.X + box.Width*sig.XRatio,
		Y: box.Y + box.Height*sig.YRatio,
	}
}

// BoxFromQuad converts a CDP quad (four x,y pairs) into its bounding box.
func BoxFromQuad(quad []float64) (Box, error) {
	if len(quad) != 8 {
		return Box{}, fmt.Errorf("quad must have 8 coordinates, got %d", len(quad))
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i < len(quad); i += 2 {
		minX = math.Min(minX, quad[i])
		maxX = math.Max(maxX, quad[i])
		minY = math.Min(minY, quad[i+1])
		maxY = math.Max(maxY, quad[i+1])
	}

	return Box{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, nil
}
