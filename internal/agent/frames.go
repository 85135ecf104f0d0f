package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/dreamup/renew-agent/internal/challenge"
)

// contextTracker maps default execution contexts to the frames they belong to.
type contextTracker struct {
	mu      sync.RWMutex
	byID    map[runtime.ExecutionContextID]string
	byFrame map[string]runtime.ExecutionContextID
}

func newContextTracker() *contextTracker {
	return &contextTracker{
		byID:    make(map[runtime.ExecutionContextID]string),
		byFrame: make(map[string]runtime.ExecutionContextID),
	}
}

type contextAux struct {
	FrameID   string `json:"frameId"`
	IsDefault bool   `json:"isDefault"`
}

// parseContextAux extracts the frame of a default context from its aux data.
func parseContextAux(raw []byte) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var aux contextAux
	if err := json.Unmarshal(raw, &aux); err != nil {
		return "", false
	}
	if !aux.IsDefault || aux.FrameID == "" {
		return "", false
	}
	return aux.FrameID, true
}

func (t *contextTracker) add(id runtime.ExecutionContextID, frameID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.byFrame[frameID]; ok {
		delete(t.byID, old)
	}
	t.byID[id] = frameID
	t.byFrame[frameID] = id
}

func (t *contextTracker) remove(id runtime.ExecutionContextID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if frameID, ok := t.byID[id]; ok {
		delete(t.byID, id)
		if t.byFrame[frameID] == id {
			delete(t.byFrame, frameID)
		}
	}
}

func (t *contextTracker) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID = make(map[runtime.ExecutionContextID]string)
	t.byFrame = make(map[string]runtime.ExecutionContextID)
}

func (t *contextTracker) frameOf(id runtime.ExecutionContextID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.byID[id]
	return f, ok
}

func (t *contextTracker) contextOf(frameID string) (runtime.ExecutionContextID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byFrame[frameID]
	return id, ok
}

// listen wires the tab's CDP events to handleEvent.
func (p *Page) listen() {
	chromedp.ListenTarget(p.ctx, p.handleEvent)
}

// handleEvent covers context tracking, observer signals, signal
// invalidation on frame navigation, and proxy authentication. It must not
// block, so CDP commands are issued from goroutines.
func (p *Page) handleEvent(ev any) {
	switch ev := ev.(type) {
	case *runtime.EventExecutionContextCreated:
		if ev.Context == nil {
			return
		}
		if frameID, ok := parseContextAux([]byte(ev.Context.AuxData)); ok {
			p.contexts.add(ev.Context.ID, frameID)
		}

	case *runtime.EventExecutionContextDestroyed:
		p.contexts.remove(ev.ExecutionContextID)

	case *runtime.EventExecutionContextsCleared:
		p.contexts.clear()
		if board := p.board.Load(); board != nil {
			board.ResetAll()
		}

	case *runtime.EventBindingCalled:
		if ev.Name != challenge.BindingName {
			return
		}
		board := p.board.Load()
		if board == nil {
			return
		}
		frameID, ok := p.contexts.frameOf(ev.ExecutionContextID)
		if !ok {
			p.logger.Debug("Signal from untracked context", zap.Int64("context_id", int64(ev.ExecutionContextID)))
			return
		}
		if err := board.Publish(frameID, ev.Payload); err != nil {
			p.logger.Warn("Rejected challenge signal", zap.String("frame_id", frameID), zap.Error(err))
		}

	case *page.EventFrameNavigated:
		if board := p.board.Load(); board != nil && ev.Frame != nil {
			board.Reset(string(ev.Frame.ID))
		}

	case *page.EventFrameDetached:
		if board := p.board.Load(); board != nil {
			board.Reset(string(ev.FrameID))
		}

	case *fetch.EventRequestPaused:
		go p.continueRequest(ev)

	case *fetch.EventAuthRequired:
		go p.answerAuth(ev)
	}
}

// ArmObserver installs the Geometry Observer on every future document of the
// tab and routes its signals to board. Navigate after arming.
func (p *Page) ArmObserver(ctx context.Context, board *challenge.Board) error {
	p.board.Store(board)
	err := p.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := runtime.AddBinding(challenge.BindingName).Do(ctx); err != nil {
			return fmt.Errorf("add binding: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(challenge.ObserverScript()).Do(ctx); err != nil {
			return fmt.Errorf("add init script: %w", err)
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("failed to arm geometry observer: %w", err)
	}
	p.logger.Debug("Geometry observer armed")
	return nil
}

// Frames lists the frame tree, parents before children.
func (p *Page) Frames(ctx context.Context) ([]challenge.Frame, error) {
	var tree *page.FrameTree
	err := p.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to get frame tree: %w", err)
	}
	return flattenFrameTree(tree), nil
}

func flattenFrameTree(root *page.FrameTree) []challenge.Frame {
	var frames []challenge.Frame
	queue := []*page.FrameTree{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node == nil || node.Frame == nil {
			continue
		}
		frames = append(frames, challenge.Frame{
			ID:       string(node.Frame.ID),
			ParentID: string(node.Frame.ParentID),
			URL:      node.Frame.URL,
		})
		queue = append(queue, node.ChildFrames...)
	}
	return frames
}

// FrameOwnerBox returns the content box of the iframe element hosting
// frameID. DOM.getBoxModel reports quads in the root frame's viewport, so the
// box is in top-level page coordinates even for nested frames.
func (p *Page) FrameOwnerBox(ctx context.Context, frameID string) (challenge.Box, error) {
	var model *dom.BoxModel
	err := p.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		backendID, _, err := dom.GetFrameOwner(cdp.FrameID(frameID)).Do(ctx)
		if err != nil {
			return fmt.Errorf("get frame owner: %w", err)
		}
		model, err = dom.GetBoxModel().WithBackendNodeID(backendID).Do(ctx)
		if err != nil {
			return fmt.Errorf("get box model: %w", err)
		}
		return nil
	}))
	if err != nil {
		return challenge.Box{}, err
	}
	return challenge.BoxFromQuad(model.Content)
}

// EvaluateInFrame evaluates expr in the default context of frameID and
// decodes its JSON value into res.
func (p *Page) EvaluateInFrame(ctx context.Context, frameID, expr string, res any) error {
	id, ok := p.contexts.contextOf(frameID)
	if !ok {
		return fmt.Errorf("no execution context for frame %s", frameID)
	}
	return p.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, exc, err := runtime.Evaluate(expr).
			WithContextID(id).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		if res == nil || obj == nil || len(obj.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(obj.Value), res)
	}))
}
