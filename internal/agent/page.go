package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/dreamup/renew-agent/internal/challenge"
	"github.com/dreamup/renew-agent/internal/config"
)

// DefaultTimeout bounds every page operation that has no bound of its own.
const DefaultTimeout = 60 * time.Second

// Page is one browser tab and the capability set the renewal flow drives:
// navigation, element queries, frame enumeration, raw pointer input and
// screenshots.
type Page struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *zap.Logger

	contexts *contextTracker
	board    atomic.Pointer[challenge.Board]
	proxy    atomic.Pointer[config.Proxy]

	fetchMu      sync.Mutex
	fetchEnabled bool

	pointerMu sync.Mutex
	pointer   challenge.Point
}

func newPage(ctx context.Context, cancel context.CancelFunc, timeout time.Duration, logger *zap.Logger) *Page {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &Page{
		ctx:      ctx,
		cancel:   cancel,
		timeout:  timeout,
		logger:   logger.Named("page"),
		contexts: newContextTracker(),
	}
	p.listen()
	return p
}

// Close closes the tab.
func (p *Page) Close() {
	p.cancel()
}

// Closed reports whether the tab is gone.
func (p *Page) Closed() bool {
	return p.ctx.Err() != nil
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = p.timeout
	}
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the body to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating", zap.String("url", url))
	if err := p.run(ctx, 0,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Reload reloads the current document.
func (p *Page) Reload(ctx context.Context) error {
	if err := p.run(ctx, 0,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	return nil
}

// URL returns the current document URL.
func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, 0, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// WaitVisible waits up to timeout for sel to become visible.
func (p *Page) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	err := p.run(ctx, timeout, chromedp.WaitVisible(sel, chromedp.BySearch))
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return NewUITimeoutError(fmt.Sprintf("%s not visible after %s", sel, timeout), err)
	}
	return err
}

// Visible reports, without waiting, whether any node matching sel is rendered.
func (p *Page) Visible(ctx context.Context, sel string) (bool, error) {
	var visible bool
	if err := p.run(ctx, 0, chromedp.Evaluate(VisibleExpr(sel), &visible)); err != nil {
		return false, fmt.Errorf("failed to check visibility of %s: %w", sel, err)
	}
	return visible, nil
}

// Click clicks the first visible node matching sel.
func (p *Page) Click(ctx context.Context, sel string) error {
	if err := p.run(ctx, 0, chromedp.Click(sel, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("failed to click %s: %w", sel, err)
	}
	return nil
}

// Fill replaces the value of the field matching sel.
func (p *Page) Fill(ctx context.Context, sel, value string) error {
	if err := p.run(ctx, 0,
		chromedp.WaitVisible(sel, chromedp.BySearch),
		chromedp.Clear(sel, chromedp.BySearch),
		chromedp.SendKeys(sel, value, chromedp.BySearch),
	); err != nil {
		return fmt.Errorf("failed to fill %s: %w", sel, err)
	}
	return nil
}

// Text returns the visible text of the first node matching sel.
func (p *Page) Text(ctx context.Context, sel string) (string, error) {
	var text string
	if err := p.run(ctx, 0, chromedp.Text(sel, &text, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		return "", fmt.Errorf("failed to read text of %s: %w", sel, err)
	}
	return strings.TrimSpace(text), nil
}

// BoundingBox returns the border box of the first node matching sel.
func (p *Page) BoundingBox(ctx context.Context, sel string) (challenge.Box, error) {
	var model *dom.BoxModel
	if err := p.run(ctx, 0, chromedp.Dimensions(sel, &model, chromedp.BySearch)); err != nil {
		return challenge.Box{}, fmt.Errorf("failed to measure %s: %w", sel, err)
	}
	return challenge.BoxFromQuad(model.Border)
}

// VisibleExpr builds a script that checks sel (XPath when it starts with
// "/" or "(", CSS otherwise) for at least one rendered match in the
// document it is evaluated in.
func VisibleExpr(sel string) string {
	quoted, _ := json.Marshal(sel)
	return fmt.Sprintf(`(() => {
	const sel = %s;
	let nodes = [];
	if (sel.startsWith('/') || sel.startsWith('(')) {
		const it = document.evaluate(sel, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < it.snapshotLength; i++) nodes.push(it.snapshotItem(i));
	} else {
		nodes = Array.from(document.querySelectorAll(sel));
	}
	return nodes.some((n) => {
		if (!(n instanceof Element)) return false;
		const r = n.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) return false;
		const s = getComputedStyle(n);
		return s.visibility !== 'hidden' && s.display !== 'none';
	});
})()`, quoted)
}
