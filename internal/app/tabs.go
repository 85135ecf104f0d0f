package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dreamup/renew-agent/internal/agent"
	"github.com/dreamup/renew-agent/internal/batch"
	"github.com/dreamup/renew-agent/internal/challenge"
	"github.com/dreamup/renew-agent/internal/config"
	"github.com/dreamup/renew-agent/internal/diagnostics"
	"github.com/dreamup/renew-agent/internal/renewal"
	"github.com/dreamup/renew-agent/internal/session"
)

// pageOpener opens browser tabs.
type pageOpener interface {
	NewPage() (*agent.Page, error)
}

// browserTabs keeps one armed tab and replaces it when it closes.
type browserTabs struct {
	browser pageOpener
	cfg     *config.Config
	store   *diagnostics.Store
	logger  *zap.Logger

	mu   sync.Mutex
	page *agent.Page
	tab  *pageTab
}

func newBrowserTabs(browser pageOpener, cfg *config.Config, store *diagnostics.Store, logger *zap.Logger) *browserTabs {
	return &browserTabs{
		browser: browser,
		cfg:     cfg,
		store:   store,
		logger:  logger,
	}
}

// Tab implements batch.TabProvider.
func (b *browserTabs) Tab(ctx context.Context) (batch.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tab != nil && !b.page.Closed() {
		return b.tab, nil
	}
	if b.page != nil {
		b.logger.Warn("Tab was closed; opening a new one")
	}

	page, err := b.browser.NewPage()
	if err != nil {
		return nil, err
	}

	board := challenge.NewBoard(b.logger)
	if err := page.ArmObserver(ctx, board); err != nil {
		page.Close()
		return nil, agent.NewBrowserError("failed to prepare tab", err)
	}

	jitter := challenge.Jitter{Min: b.cfg.Pointer.MinDelay, Max: b.cfg.Pointer.MaxDelay}
	snapshots := diagnostics.NewSnapshotter(b.store, page)

	b.page = page
	b.tab = &pageTab{
		controller: session.NewController(page, b.cfg.Dashboard, b.cfg.Selectors,
			session.TimingFromConfig(b.cfg.Renewal), snapshots, b.logger),
		machine: renewal.NewMachine(page, challenge.NewSynthesizer(page, board, jitter, b.logger),
			board, snapshots, b.cfg.Selectors, renewal.PolicyFromConfig(b.cfg.Renewal), b.logger),
		snapshots: snapshots,
	}
	return b.tab, nil
}

// Close closes the current tab, if any.
func (b *browserTabs) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.page != nil {
		b.page.Close()
		b.page, b.tab = nil, nil
	}
}

// pageTab binds the per-tab components together.
type pageTab struct {
	controller *session.Controller
	machine    *renewal.Machine
	snapshots  *diagnostics.Snapshotter
}

func (t *pageTab) Prepare(ctx context.Context, account config.Account, stem string) error {
	return t.controller.Prepare(ctx, account, stem)
}

func (t *pageTab) Renew(ctx context.Context, stem string) (*renewal.Result, error) {
	res, err := t.machine.Run(ctx, stem)
	if err != nil {
		return res, fmt.Errorf("renew %s: %w", stem, err)
	}
	return res, nil
}

func (t *pageTab) Snapshot(ctx context.Context, name string) (string, error) {
	return t.snapshots.Snapshot(ctx, name)
}
