// Package app assembles the renewal batch from configuration: inputs,
// pre-flight checks, browser, per-tab components and result sinks.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dreamup/renew-agent/internal/agent"
	"github.com/dreamup/renew-agent/internal/batch"
	"github.com/dreamup/renew-agent/internal/config"
	"github.com/dreamup/renew-agent/internal/db"
	"github.com/dreamup/renew-agent/internal/diagnostics"
	"github.com/dreamup/renew-agent/internal/metrics"
	"github.com/dreamup/renew-agent/internal/netcheck"
	"github.com/dreamup/renew-agent/internal/reporter"
)

// ErrNoAccounts is returned when the account source yields nothing.
var ErrNoAccounts = errors.New("no accounts configured; set " + config.AccountsEnv)

// Inputs are the environment-provided inputs of a run.
type Inputs struct {
	Accounts []config.Account
	Proxy    *config.Proxy
}

// LoadInputs reads accounts and the optional proxy from the environment.
func LoadInputs() (*Inputs, error) {
	accounts := config.LoadAccounts()
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}

	proxy, err := config.LoadProxy()
	if err != nil {
		return nil, err
	}

	return &Inputs{Accounts: accounts, Proxy: proxy}, nil
}

// Outcome is what a finished run produced.
type Outcome struct {
	Results    []batch.Result
	Report     *reporter.Report
	ReportPath string
}

// App runs one batch.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
}

// New creates an App.
func New(cfg *config.Config, logger *zap.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run validates the proxy, starts the browser and processes every account.
// Errors are returned only for failures that prevent the batch from
// starting; per-account failures are reported in Outcome.
func (a *App) Run(ctx context.Context, in *Inputs) (*Outcome, error) {
	if in.Proxy != nil {
		a.logger.Info("Checking proxy", zap.String("proxy", in.Proxy.Redacted()))
		if err := netcheck.Preflight(ctx, netcheck.ProxyCheck(in.Proxy, netcheck.DefaultProbeURL, netcheck.DefaultProbeTimeout)); err != nil {
			return nil, agent.NewProxyError("proxy pre-flight failed", err)
		}
		a.logger.Info("✅ Proxy reachable")
	}

	store := diagnostics.NewStore(a.cfg.Diagnostics.Dir, a.mirror(ctx), a.cfg.Diagnostics.S3Prefix, a.logger)

	report := reporter.NewReportBuilder()
	report.AddMetadata("dashboard", a.cfg.Dashboard.BaseURL)
	counters := metrics.New(a.cfg.Metrics.Textfile)
	recorders := []batch.Recorder{report, counters}

	if a.cfg.History.Path != "" {
		history, err := db.New(a.cfg.History.Path)
		if err != nil {
			a.logger.Warn("Run history disabled", zap.Error(err))
		} else {
			defer history.Close()
			recorders = append(recorders, history.ForRun(report.RunID()))
		}
	}

	browser, err := agent.NewBrowserManager(ctx, a.cfg.Browser, in.Proxy, a.logger)
	if err != nil {
		return nil, err
	}
	defer browser.Close()

	tabs := newBrowserTabs(browser, a.cfg, store, a.logger)
	defer tabs.Close()

	a.logger.Info("Starting renewal batch",
		zap.String("run_id", report.RunID()),
		zap.Int("accounts", len(in.Accounts)),
	)

	results, runErr := batch.NewRunner(tabs, a.logger, recorders...).Run(ctx, in.Accounts)

	out := &Outcome{Results: results, Report: report.Build()}
	if path, err := out.Report.SaveToDir(store.Dir()); err != nil {
		a.logger.Warn("Failed to save run report", zap.Error(err))
	} else {
		out.ReportPath = path
	}
	if err := counters.Flush(); err != nil {
		a.logger.Warn("Failed to write metrics textfile", zap.Error(err))
	}

	if runErr != nil {
		return out, fmt.Errorf("batch interrupted: %w", runErr)
	}
	return out, nil
}

// mirror returns the snapshot mirror, or nil when none is configured or
// the S3 client cannot be built.
func (a *App) mirror(ctx context.Context) diagnostics.Mirror {
	if a.cfg.Diagnostics.S3Bucket == "" {
		return nil
	}
	uploader, err := reporter.NewS3Uploader(ctx, a.cfg.Diagnostics.S3Bucket, a.cfg.Diagnostics.S3Region)
	if err != nil {
		a.logger.Warn("Snapshot mirroring disabled", zap.Error(err))
		return nil
	}
	return uploader
}
