// Package challenge locates the embedded challenge checkbox and clicks it
// through raw pointer input.
//
// An observer script armed in every child frame publishes the checkbox
// position through a CDP binding. Publications land on a Board keyed by frame
// ID, which the Synthesizer scans to resolve absolute page coordinates.
package challenge

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
)

// Signal is the center of the challenge checkbox normalized to its frame's
// viewport.
type Signal struct {
	XRatio float64 `json:"xRatio"`
	YRatio float64 `json:"yRatio"`
}

// Valid reports whether both ratios lie in [0,1].
func (s Signal) Valid() bool {
	return inUnit(s.XRatio) && inUnit(s.YRatio)
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Board is the shared cell between the in-page observer and the controller.
// Each frame holds at most one Signal; the first publication wins until the
// frame is reset by navigation or reload.
type Board struct {
	mu      sync.RWMutex
	signals map[string]Signal
	logger  *zap.Logger
}

// NewBoard creates an empty board.
func NewBoard(logger *zap.Logger) *Board {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{
		signals: make(map[string]Signal),
		logger:  logger.Named("signal_board"),
	}
}

// Publish records the observer payload for frameID. Repeated publications for
// the same frame are ignored so the stored coordinates stay stable.
func (b *Board) Publish(frameID, payload string) error {
	if frameID == "" {
		return fmt.Errorf("signal published without a frame id")
	}

	var sig Signal
	if err := json.Unmarshal([]byte(payload), &sig); err != nil {
		return fmt.Errorf("failed to decode challenge signal: %w", err)
	}
	if !sig.Valid() {
		return fmt.Errorf("challenge signal out of range: %+v", sig)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.signals[frameID]; exists {
		return nil
	}
	b.signals[frameID] = sig
	b.logger.Debug("Challenge signal published",
		zap.String("frame_id", frameID),
		zap.Float64("x_ratio", sig.XRatio),
		zap.Float64("y_ratio", sig.YRatio),
	)
	return nil
}

// Lookup returns the signal published for frameID, if any.
func (b *Board) Lookup(frameID string) (Signal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sig, ok := b.signals[frameID]
	return sig, ok
}

// Reset drops the signal of one frame. Called when the frame navigates or detaches.
func (b *Board) Reset(frameID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.signals, frameID)
}

// ResetAll drops every signal. Called when a page's contexts are cleared
// and before a reload.
func (b *Board) ResetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = make(map[string]Signal)
}

// Len returns the number of frames currently holding a signal.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.signals)
}
