package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/dreamup/renew-agent/internal/config"
	"github.com/dreamup/renew-agent/internal/netcheck"
)

// BrowserManager manages browser lifecycle: attaching to a remote DevTools
// endpoint or launching a local Chrome.
type BrowserManager struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	cfg         config.BrowserConfig
	proxy       *config.Proxy
	logger      *zap.Logger
}

// NewBrowserManager attaches to cfg.RemoteURL when set, otherwise launches
// Chrome. Attach is retried cfg.ConnectAttempts times, cfg.ConnectDelay apart.
func NewBrowserManager(ctx context.Context, cfg config.BrowserConfig, proxy *config.Proxy, logger *zap.Logger) (*BrowserManager, error) {
	bm := &BrowserManager{
		cfg:    cfg,
		proxy:  proxy,
		logger: logger.Named("browser_manager"),
	}

	connect := bm.launch
	if cfg.RemoteURL != "" {
		connect = bm.attach
	}

	attempt := 0
	err := Retry(ctx, ConnectRetryConfig(cfg.ConnectAttempts, cfg.ConnectDelay), func() error {
		attempt++
		if err := connect(ctx); err != nil {
			bm.logger.Warn("Browser connection attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", cfg.ConnectAttempts),
				zap.Error(err),
			)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, NewProxyOrBrowserError(err)
	}

	bm.logger.Info("Browser ready",
		zap.Bool("remote", cfg.RemoteURL != ""),
		zap.Bool("headless", cfg.Headless),
		zap.Bool("proxy_enabled", proxy != nil),
	)
	return bm, nil
}

// NewProxyOrBrowserError keeps an existing category and tags the rest as browser errors.
func NewProxyOrBrowserError(err error) error {
	if CategoryOf(err) != ErrorCategoryUnknown {
		return err
	}
	return NewBrowserError("browser unreachable", err)
}

// attach connects to an already running browser through its DevTools endpoint.
func (bm *BrowserManager) attach(ctx context.Context) error {
	addr, err := netcheck.DevToolsAddr(bm.cfg.RemoteURL)
	if err != nil {
		// Not retryable: the URL will not get better.
		return &CategorizedError{Category: ErrorCategoryBrowser, Original: err, Message: "invalid devtools URL"}
	}
	// One dial per attempt; NewBrowserManager retries the whole attach.
	if err := netcheck.WaitForPort(ctx, addr, 1, 2*time.Second); err != nil {
		return NewBrowserError("devtools port closed", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := netcheck.ProbeDevTools(probeCtx, bm.cfg.RemoteURL); err != nil {
		return NewBrowserError("devtools endpoint not ready", err)
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, bm.cfg.RemoteURL)
	return bm.start(allocCtx, allocCancel)
}

// launch starts a local Chrome with the flags the renewal flow relies on.
func (bm *BrowserManager) launch(ctx context.Context) error {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, bm.allocatorOptions()...)
	return bm.start(allocCtx, allocCancel)
}

func (bm *BrowserManager) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("headless", bm.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		// Hide automation detection
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		// Keep challenge iframes in the page's process so frame events,
		// bindings and init scripts reach them through one CDP session.
		chromedp.Flag("disable-site-isolation-trials", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.WindowSize(bm.cfg.WindowWidth, bm.cfg.WindowHeight),
	)

	if bm.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(bm.cfg.ChromePath))
	}
	if bm.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(bm.cfg.UserDataDir))
	}
	if bm.proxy != nil {
		opts = append(opts,
			chromedp.ProxyServer(bm.proxy.Server),
			chromedp.Flag("proxy-bypass-list", "<-loopback>"),
		)
	}

	return opts
}

// start creates the browser context and forces the connection.
func (bm *BrowserManager) start(allocCtx context.Context, allocCancel context.CancelFunc) error {
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(bm.logger.Sugar().Debugf),
		chromedp.WithErrorf(bm.logger.Sugar().Debugf),
	)

	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return NewBrowserError("failed to connect to browser", err)
	}

	bm.allocCtx, bm.allocCancel = allocCtx, allocCancel
	bm.ctx, bm.cancel = ctx, cancel
	return nil
}

// Close shuts down the browser and cleans up resources
func (bm *BrowserManager) Close() {
	if bm.cancel != nil {
		bm.cancel()
	}
	if bm.allocCancel != nil {
		bm.allocCancel()
	}
}

// NewPage opens a fresh tab and wires its event listeners.
func (bm *BrowserManager) NewPage() (*Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(bm.ctx)

	if err := chromedp.Run(tabCtx, chromedp.EmulateViewport(int64(bm.cfg.WindowWidth), int64(bm.cfg.WindowHeight))); err != nil {
		tabCancel()
		return nil, NewBrowserError("failed to open tab", err)
	}

	p := newPage(tabCtx, tabCancel, bm.cfg.DefaultTimeout, bm.logger)
	if err := p.SetProxyCredentials(bm.proxy); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to configure proxy credentials: %w", err)
	}
	return p, nil
}
