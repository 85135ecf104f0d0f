package challenge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	box := Box{X: 0, Y: 0, Width: 100, Height: 50}

	tests := []struct {
		ratio float64
		wantX float64
		wantY float64
	}{
		{ratio: 0, wantX: 0, wantY: 0},
		{ratio: 0.5, wantX: 50, wantY: 25},
		{ratio: 1, wantX: 100, wantY: 50},
	}

	for _, tt := range tests {
		got := Resolve(box, Signal{XRatio: tt.ratio, YRatio: tt.ratio})
		assert.Equal(t, tt.wantX, got.X, "x for ratio %v", tt.ratio)
		assert.Equal(t, tt.wantY, got.Y, "y for ratio %v", tt.ratio)
	}
}

func TestResolveOffsetBox(t *testing.T) {
	got := Resolve(Box{X: 310, Y: 220, Width: 300, Height: 65}, Signal{XRatio: 0.1, YRatio: 0.5})
	assert.InDelta(t, 340.0, got.X, 1e-9)
	assert.InDelta(t, 252.5, got.Y, 1e-9)
}

func TestBoxFromQuad(t *testing.T) {
	box, err := BoxFromQuad([]float64{10, 20, 110, 20, 110, 70, 10, 70})
	require.NoError(t, err)
	assert.Equal(t, Box{X: 10, Y: 20, Width: 100, Height: 50}, box)

	_, err = BoxFromQuad([]float64{1, 2, 3})
	assert.Error(t, err)
}

func TestBoxHelpers(t *testing.T) {
	assert.True(t, Box{Width: 0, Height: 10}.Empty())
	assert.False(t, Box{Width: 1, Height: 1}.Empty())
	assert.Equal(t, Point{X: 60, Y: 45}, Box{X: 10, Y: 20, Width: 100, Height: 50}.Center())
}
