// Package batch runs the renewal flow over an ordered account list, one
// account at a time on a shared browser tab.
package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dreamup/renew-agent/internal/agent"
	"github.com/dreamup/renew-agent/internal/config"
	"github.com/dreamup/renew-agent/internal/diagnostics"
	"github.com/dreamup/renew-agent/internal/renewal"
)

// Status is the terminal classification of one account.
type Status string

const (
	StatusRenewed     Status = "renewed"
	StatusDeferred    Status = "deferred"
	StatusLoginFailed Status = "login_failed"
	StatusNotFound    Status = "not_found"
	StatusError       Status = "error"
	// StatusSkipped means the renew trigger was absent.
	StatusSkipped Status = "skipped"
	// StatusExhausted means the attempt budget ran out.
	StatusExhausted Status = "exhausted"
)

// AllStatuses lists every Status in report order.
var AllStatuses = []Status{
	StatusRenewed, StatusDeferred, StatusSkipped, StatusExhausted,
	StatusLoginFailed, StatusNotFound, StatusError,
}

// Result is the record of one account.
type Result struct {
	Index           int           `json:"index"`
	Stem            string        `json:"stem"`
	Status          Status        `json:"status"`
	AvailableAt     string        `json:"available_at,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	Snapshot        string        `json:"snapshot,omitempty"`
	Attempts        int           `json:"attempts"`
	Reloads         int           `json:"reloads"`
	ChallengeClicks int           `json:"challenge_clicks"`
	Duration        time.Duration `json:"-"`
}

// Tab is one browser tab with the session controller, renewal loop and
// snapshotter bound to it.
type Tab interface {
	Prepare(ctx context.Context, account config.Account, stem string) error
	Renew(ctx context.Context, stem string) (*renewal.Result, error)
	Snapshot(ctx context.Context, name string) (string, error)
}

// TabProvider hands out a usable tab, replacing one that was closed.
type TabProvider interface {
	Tab(ctx context.Context) (Tab, error)
}

// Recorder receives every finished Result.
type Recorder interface {
	Record(ctx context.Context, res Result) error
}

// Runner processes accounts sequentially.
type Runner struct {
	tabs      TabProvider
	recorders []Recorder
	logger    *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(tabs TabProvider, logger *zap.Logger, recorders ...Recorder) *Runner {
	return &Runner{
		tabs:      tabs,
		recorders: recorders,
		logger:    logger.Named("batch"),
	}
}

// Run processes every account and returns one Result per account, in
// order. Per-account failures never stop the batch; only ctx does.
func (r *Runner) Run(ctx context.Context, accounts []config.Account) ([]Result, error) {
	results := make([]Result, 0, len(accounts))

	for i, account := range accounts {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		r.logger.Info("=== Processing account ===", zap.Int("index", i+1), zap.Int("total", len(accounts)))
		res := r.runOne(ctx, i+1, account)
		results = append(results, res)

		r.logger.Info("Finished account",
			zap.Int("index", res.Index),
			zap.String("stem", res.Stem),
			zap.String("status", string(res.Status)),
			zap.Int("attempts", res.Attempts),
			zap.Duration("duration", res.Duration),
		)

		for _, rec := range r.recorders {
			if err := rec.Record(ctx, res); err != nil {
				r.logger.Warn("Failed to record result", zap.Int("index", res.Index), zap.Error(err))
			}
		}
	}

	return results, nil
}

func (r *Runner) runOne(ctx context.Context, index int, account config.Account) Result {
	start := time.Now()
	res := Result{Index: index, Stem: diagnostics.Sanitize(account.Username)}

	tab, err := r.tabs.Tab(ctx)
	if err != nil {
		res.Status = StatusError
		res.Reason = err.Error()
		res.Duration = time.Since(start)
		return res
	}

	r.process(ctx, tab, account, &res)

	path, err := tab.Snapshot(ctx, diagnostics.FinalName(res.Stem))
	if err != nil {
		r.logger.Warn("Final snapshot failed", zap.Int("index", index), zap.Error(err))
	} else {
		res.Snapshot = path
	}

	res.Duration = time.Since(start)
	return res
}

// process runs login and renewal, converting panics into StatusError.
func (r *Runner) process(ctx context.Context, tab Tab, account config.Account, res *Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Recovered panic while processing account",
				zap.Int("index", res.Index),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			res.Status = StatusError
			res.Reason = fmt.Sprintf("panic: %v", p)
		}
	}()

	if err := tab.Prepare(ctx, account, res.Stem); err != nil {
		res.Reason = err.Error()
		switch agent.CategoryOf(err) {
		case agent.ErrorCategoryLoginRejected:
			res.Status = StatusLoginFailed
		case agent.ErrorCategoryNotFound:
			res.Status = StatusNotFound
		default:
			res.Status = StatusError
		}
		return
	}

	out, err := tab.Renew(ctx, res.Stem)
	if out != nil {
		res.Attempts = out.Attempts
		res.Reloads = out.Reloads
		res.ChallengeClicks = out.ChallengeClicks
	}
	if err != nil {
		res.Status = StatusError
		res.Reason = err.Error()
		return
	}

	switch out.State {
	case renewal.StateRenewed:
		res.Status = StatusRenewed
	case renewal.StateDeferred:
		res.Status = StatusDeferred
		res.AvailableAt = out.AvailableAt
	case renewal.StateStopped:
		res.Status = StatusSkipped
		res.Reason = "renew trigger not found"
	case renewal.StateExhausted:
		res.Status = StatusExhausted
		res.Reason = fmt.Sprintf("gave up after %d attempts", out.Attempts)
		if out.LastErr != nil {
			res.Reason += ": " + out.LastErr.Error()
		}
	default:
		res.Status = StatusError
		res.Reason = fmt.Sprintf("renewal ended in non-terminal state %s", out.State)
	}
}

// Summarize counts results per status.
func Summarize(results []Result) map[Status]int {
	counts := make(map[Status]int, len(AllStatuses))
	for _, s := range AllStatuses {
		counts[s] = 0
	}
	for _, res := range results {
		counts[res.Status]++
	}
	return counts
}
