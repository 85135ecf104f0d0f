package challenge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBoardPublishAndLookup(t *testing.T) {
	board := NewBoard(zaptest.NewLogger(t))

	require.NoError(t, board.Publish("F1", `{"xRatio":0.25,"yRatio":0.75}`))

	sig, ok := board.Lookup("F1")
	require.True(t, ok)
	assert.Equal(t, Signal{XRatio: 0.25, YRatio: 0.75}, sig)

	_, ok = board.Lookup("F2")
	assert.False(t, ok)
}

func TestBoardRepeatedLookupsAreStable(t *testing.T) {
	board := NewBoard(nil)
	require.NoError(t, board.Publish("F1", `{"xRatio":0.1,"yRatio":0.2}`))

	first, _ := board.Lookup("F1")
	for i := 0; i < 10; i++ {
		again, ok := board.Lookup("F1")
		require.True(t, ok)
		assert.Equal(t, first, again)
	}

	// A second publication for the same widget does not move the signal.
	require.NoError(t, board.Publish("F1", `{"xRatio":0.9,"yRatio":0.9}`))
	again, _ := board.Lookup("F1")
	assert.Equal(t, first, again)
}

func TestBoardResetClearsSignal(t *testing.T) {
	board := NewBoard(nil)
	require.NoError(t, board.Publish("F1", `{"xRatio":0.1,"yRatio":0.2}`))
	require.NoError(t, board.Publish("F2", `{"xRatio":0.3,"yRatio":0.4}`))

	board.Reset("F1")
	_, ok := board.Lookup("F1")
	assert.False(t, ok)
	assert.Equal(t, 1, board.Len())

	// After a reset the frame can publish again.
	require.NoError(t, board.Publish("F1", `{"xRatio":0.5,"yRatio":0.5}`))
	sig, _ := board.Lookup("F1")
	assert.Equal(t, Signal{XRatio: 0.5, YRatio: 0.5}, sig)

	board.ResetAll()
	assert.Equal(t, 0, board.Len())
}

func TestBoardRejectsBadPayloads(t *testing.T) {
	board := NewBoard(nil)

	assert.Error(t, board.Publish("", `{"xRatio":0.1,"yRatio":0.2}`))
	assert.Error(t, board.Publish("F1", `not json`))
	assert.Error(t, board.Publish("F1", `{"xRatio":1.5,"yRatio":0.2}`))
	assert.Error(t, board.Publish("F1", `{"xRatio":0.5,"yRatio":-0.1}`))
	assert.Equal(t, 0, board.Len())
}

func TestBoardConcurrentAccess(t *testing.T) {
	board := NewBoard(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = board.Publish("F1", `{"xRatio":0.5,"yRatio":0.5}`)
		}()
		go func() {
			defer wg.Done()
			board.Lookup("F1")
		}()
	}
	wg.Wait()

	sig, ok := board.Lookup("F1")
	require.True(t, ok)
	assert.Equal(t, 0.5, sig.XRatio)
}

func TestObserverScriptUsesBinding(t *testing.T) {
	script := ObserverScript()
	assert.Contains(t, script, BindingName)
	assert.NotContains(t, script, "__BINDING__")
	assert.Contains(t, script, "attachShadow")
	assert.Contains(t, script, `input[type="checkbox"]`)
}
