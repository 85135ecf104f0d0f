// Package session puts the browser into a freshly authenticated state for
// one account and opens the account's renewable resource.
package session

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dreamup/renew-agent/internal/agent"
	"github.com/dreamup/renew-agent/internal/challenge"
	"github.com/dreamup/renew-agent/internal/config"
	"github.com/dreamup/renew-agent/internal/diagnostics"
)

// Page is the browser surface the controller drives.
type Page interface {
	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	Visible(ctx context.Context, sel string) (bool, error)
	Fill(ctx context.Context, sel, value string) error
	Click(ctx context.Context, sel string) error
}

// Snapshotter captures a named diagnostic snapshot.
type Snapshotter interface {
	Snapshot(ctx context.Context, name string) (string, error)
}

// Timing bounds the login flow.
type Timing struct {
	NavigationSettle time.Duration
	FieldTimeout     time.Duration
	SubmitDelay      time.Duration
	LoginErrorWindow time.Duration
	PollInterval     time.Duration
	ResourceTimeout  time.Duration
	ResourceSettle   time.Duration
}

// DefaultTiming mirrors the dashboard's observed latencies.
func DefaultTiming() Timing {
	return Timing{
		NavigationSettle: 2 * time.Second,
		FieldTimeout:     5 * time.Second,
		SubmitDelay:      500 * time.Millisecond,
		LoginErrorWindow: 3 * time.Second,
		PollInterval:     250 * time.Millisecond,
		ResourceTimeout:  15 * time.Second,
		ResourceSettle:   time.Second,
	}
}

// TimingFromConfig overrides the configurable windows of DefaultTiming.
func TimingFromConfig(c config.RenewalConfig) Timing {
	t := DefaultTiming()
	if c.LoginErrorWindow > 0 {
		t.LoginErrorWindow = c.LoginErrorWindow
	}
	if c.ResourceTimeout > 0 {
		t.ResourceTimeout = c.ResourceTimeout
	}
	return t
}

// Controller implements the per-account login sequence.
type Controller struct {
	page      Page
	dashboard config.DashboardConfig
	selectors config.SelectorConfig
	timing    Timing
	snapshots Snapshotter
	sleep     challenge.SleepFunc
	logger    *zap.Logger
}

// Option customizes a Controller.
type Option func(*Controller)

// WithSleep replaces wall-clock waits.
func WithSleep(fn challenge.SleepFunc) Option {
	return func(c *Controller) { c.sleep = fn }
}

// NewController creates a Controller.
func NewController(page Page, dashboard config.DashboardConfig, selectors config.SelectorConfig, timing Timing, snapshots Snapshotter, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		page:      page,
		dashboard: dashboard,
		selectors: selectors,
		timing:    timing,
		snapshots: snapshots,
		sleep:     challenge.Sleep,
		logger:    logger.Named("session"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Prepare logs the account in from a clean session and opens its resource.
// It returns a login_rejected error for refused credentials and a
// resource_not_found error when the resource link never shows.
func (c *Controller) Prepare(ctx context.Context, account config.Account, stem string) error {
	if err := c.ensureLoggedOut(ctx); err != nil {
		return err
	}

	if err := c.submit(ctx, account); err != nil {
		// The resource wait below decides whether the account is usable.
		c.logger.Warn("Login form error", zap.String("stem", stem), zap.Error(err))
	} else {
		rejected, err := c.rejected(ctx)
		if err != nil {
			return err
		}
		if rejected {
			c.logger.Warn("❌ Login failed: incorrect password or no account", zap.String("stem", stem))
			if c.snapshots != nil {
				if _, err := c.snapshots.Snapshot(ctx, diagnostics.FinalName(stem)); err != nil {
					c.logger.Warn("Login failure snapshot failed", zap.Error(err))
				}
			}
			return agent.NewLoginRejectedError("incorrect password or no account")
		}
	}

	return c.openResource(ctx)
}

// ensureLoggedOut ends on the login page with no session, logging out
// first when a session exists and once more if the first logout did not
// take effect.
func (c *Controller) ensureLoggedOut(ctx context.Context) error {
	if c.onDashboard(ctx) {
		if err := c.visit(ctx, c.dashboard.LogoutURL()); err != nil {
			return err
		}
	}

	if err := c.visit(ctx, c.dashboard.LoginURL()); err != nil {
		return err
	}

	if !c.onLoginPage(ctx) {
		c.logger.Info("Still signed in after logout; logging out again")
		if err := c.visit(ctx, c.dashboard.LogoutURL()); err != nil {
			return err
		}
		if err := c.visit(ctx, c.dashboard.LoginURL()); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) visit(ctx context.Context, target string) error {
	if err := c.page.Navigate(ctx, target); err != nil {
		return err
	}
	return c.sleep(ctx, c.timing.NavigationSettle)
}

// onDashboard reports whether the tab currently shows a dashboard page
// other than the login page.
func (c *Controller) onDashboard(ctx context.Context) bool {
	current, err := c.page.URL(ctx)
	if err != nil {
		return false
	}
	return sameHost(current, c.dashboard.BaseURL) && !c.isLoginURL(current)
}

func (c *Controller) onLoginPage(ctx context.Context) bool {
	current, err := c.page.URL(ctx)
	if err != nil {
		return false
	}
	return c.isLoginURL(current)
}

func (c *Controller) isLoginURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.TrimRight(u.Path, "/") == strings.TrimRight(c.dashboard.LoginPath, "/")
}

func sameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Host != "" && strings.EqualFold(ua.Host, ub.Host)
}

func (c *Controller) submit(ctx context.Context, account config.Account) error {
	c.logger.Info("Filling credentials")
	if err := c.page.WaitVisible(ctx, c.selectors.Email, c.timing.FieldTimeout); err != nil {
		return err
	}
	if err := c.page.Fill(ctx, c.selectors.Email, account.Username); err != nil {
		return err
	}
	if err := c.page.Fill(ctx, c.selectors.Password, account.Password); err != nil {
		return err
	}
	if err := c.sleep(ctx, c.timing.SubmitDelay); err != nil {
		return err
	}
	return c.page.Click(ctx, c.selectors.Submit)
}

// rejected watches the login-error indicator for LoginErrorWindow, ending
// early once the resource link shows.
func (c *Controller) rejected(ctx context.Context) (bool, error) {
	polls := 1
	if c.timing.PollInterval > 0 {
		polls = int(c.timing.LoginErrorWindow / c.timing.PollInterval)
		if polls < 1 {
			polls = 1
		}
	}

	for i := 0; i < polls; i++ {
		failed, err := c.page.Visible(ctx, c.selectors.LoginError)
		if err != nil {
			return false, err
		}
		if failed {
			return true, nil
		}
		if ok, err := c.page.Visible(ctx, c.selectors.ResourceLink); err == nil && ok {
			return false, nil
		}
		if err := c.sleep(ctx, c.timing.PollInterval); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (c *Controller) openResource(ctx context.Context) error {
	c.logger.Info("Waiting for resource link")
	if err := c.page.WaitVisible(ctx, c.selectors.ResourceLink, c.timing.ResourceTimeout); err != nil {
		if agent.IsCategory(err, agent.ErrorCategoryUITimeout) {
			return agent.NewNotFoundError("resource link not found", err)
		}
		return err
	}
	if err := c.sleep(ctx, c.timing.ResourceSettle); err != nil {
		return err
	}
	if err := c.page.Click(ctx, c.selectors.ResourceLink); err != nil {
		return agent.NewNotFoundError("resource link not clickable", err)
	}
	return nil
}
