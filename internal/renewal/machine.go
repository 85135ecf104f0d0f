package renewal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dreamup/renew-agent/internal/agent"
	"github.com/dreamup/renew-agent/internal/challenge"
	"github.com/dreamup/renew-agent/internal/config"
	"github.com/dreamup/renew-agent/internal/diagnostics"
)

// Page is the browser surface the loop drives.
type Page interface {
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	Visible(ctx context.Context, sel string) (bool, error)
	Click(ctx context.Context, sel string) error
	Text(ctx context.Context, sel string) (string, error)
	BoundingBox(ctx context.Context, sel string) (challenge.Box, error)
	Hover(ctx context.Context, target challenge.Point) error
	Reload(ctx context.Context) error
	Frames(ctx context.Context) ([]challenge.Frame, error)
	EvaluateInFrame(ctx context.Context, frameID, expr string, res any) error
}

// Solver makes one attempt at clicking a published challenge signal.
type Solver interface {
	Attempt(ctx context.Context) (bool, error)
}

// Signals is the part of the signal board the loop invalidates on reload.
type Signals interface {
	ResetAll()
}

// Snapshotter captures a named diagnostic snapshot.
type Snapshotter interface {
	Snapshot(ctx context.Context, name string) (string, error)
}

// Result summarizes one account's loop.
type Result struct {
	State           State
	Attempts        int
	Reloads         int
	ChallengeClicks int
	AvailableAt     string
	Snapshots       []string
	// LastErr is the failure of the most recent retried attempt.
	LastErr error
}

// Machine runs the renewal loop against one page.
type Machine struct {
	page      Page
	solver    Solver
	signals   Signals
	snapshots Snapshotter
	selectors config.SelectorConfig
	policy    Policy
	sleep     challenge.SleepFunc
	logger    *zap.Logger
}

// Option customizes a Machine.
type Option func(*Machine)

// WithSleep replaces wall-clock waits.
func WithSleep(fn challenge.SleepFunc) Option {
	return func(m *Machine) { m.sleep = fn }
}

// NewMachine creates a Machine.
func NewMachine(page Page, solver Solver, signals Signals, snapshots Snapshotter, selectors config.SelectorConfig, policy Policy, logger *zap.Logger, opts ...Option) *Machine {
	m := &Machine{
		page:      page,
		solver:    solver,
		signals:   signals,
		snapshots: snapshots,
		selectors: selectors,
		policy:    policy,
		sleep:     challenge.Sleep,
		logger:    logger.Named("renewal"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run drives the loop until a terminal state. stem names the attempt
// snapshots. The returned error is non-nil only for browser failures the
// loop cannot classify; Result is populated either way.
func (m *Machine) Run(ctx context.Context, stem string) (*Result, error) {
	res := &Result{}
	state := StateIdle

	for !state.Terminal() {
		if err := ctx.Err(); err != nil {
			res.State = state
			return res, err
		}

		ev, err := m.step(ctx, state, stem, res)
		if err != nil {
			res.State = state
			return res, fmt.Errorf("renewal %s (attempt %d): %w", state, res.Attempts, err)
		}

		next, err := Transition(state, ev)
		if err != nil {
			res.State = state
			return res, err
		}

		m.logger.Debug("Transition",
			zap.Int("attempt", res.Attempts),
			zap.Stringer("from", state),
			zap.Stringer("event", ev),
			zap.Stringer("to", next),
		)
		state = next
	}

	res.State = state
	m.logger.Info("Renewal loop finished",
		zap.Stringer("state", state),
		zap.Int("attempts", res.Attempts),
		zap.Int("reloads", res.Reloads),
	)
	return res, nil
}

// step performs the work of state and reports what it observed.
func (m *Machine) step(ctx context.Context, state State, stem string, res *Result) (Event, error) {
	switch state {
	case StateIdle:
		if res.Attempts >= m.policy.MaxAttempts {
			m.logger.Warn("Attempt budget exhausted", zap.Int("max_attempts", m.policy.MaxAttempts))
			return EventBudgetExhausted, nil
		}
		res.Attempts++
		m.logger.Info("🔄 Renewal attempt", zap.Int("attempt", res.Attempts), zap.Int("max_attempts", m.policy.MaxAttempts))
		return m.openModal(ctx)

	case StateModalOpen:
		m.warmPointer(ctx)
		return EventPointerWarmed, nil

	case StateChallengePending:
		return m.pollChallenge(ctx, res)

	case StateChallengeAttempted:
		if err := m.sleep(ctx, m.policy.ChallengeSettle); err != nil {
			return 0, err
		}
		m.probeChallenge(ctx)
		return EventSettled, nil

	case StateConfirming:
		return m.confirm(ctx, stem, res)

	case StateVerifying:
		outcome, err := m.verify(ctx)
		if err != nil {
			return 0, err
		}
		m.logger.Info("Attempt outcome", zap.Stringer("outcome", outcome.Kind))
		if outcome.Kind == OutcomeNotYetEligible {
			res.AvailableAt = outcome.AvailableAt
			m.closeModal(ctx)
		}
		if err := outcome.Err(); err != nil {
			res.LastErr = err
		}
		return outcome.Event(), nil

	case StateReloading:
		if err := m.reload(ctx, res); err != nil {
			return 0, err
		}
		return EventReloaded, nil
	}

	return 0, fmt.Errorf("no work defined for state %s", state)
}

// openModal clicks the renew trigger and waits for the confirmation modal.
func (m *Machine) openModal(ctx context.Context) (Event, error) {
	if err := m.page.WaitVisible(ctx, m.selectors.Trigger, m.policy.TriggerTimeout); err != nil {
		if agent.IsCategory(err, agent.ErrorCategoryUITimeout) {
			m.logger.Info("Renew trigger not found; already renewed or page failed to load")
			return EventTriggerMissing, nil
		}
		return 0, err
	}

	if err := m.page.Click(ctx, m.selectors.Trigger); err != nil {
		return 0, err
	}

	if err := m.page.WaitVisible(ctx, m.selectors.Modal, m.policy.ModalTimeout); err != nil {
		if agent.IsCategory(err, agent.ErrorCategoryUITimeout) {
			m.logger.Warn("Renewal modal did not appear", zap.Duration("timeout", m.policy.ModalTimeout))
			return EventModalTimeout, nil
		}
		return 0, err
	}
	return EventModalShown, nil
}

// warmPointer moves the pointer over the modal. Failures are ignored.
func (m *Machine) warmPointer(ctx context.Context) {
	box, err := m.page.BoundingBox(ctx, m.selectors.Modal)
	if err != nil {
		m.logger.Debug("Could not measure modal for hover", zap.Error(err))
		return
	}
	if err := m.page.Hover(ctx, box.Center()); err != nil {
		m.logger.Debug("Hover over modal failed", zap.Error(err))
	}
}

// pollChallenge asks the solver up to ChallengePolls times.
func (m *Machine) pollChallenge(ctx context.Context, res *Result) (Event, error) {
	for i := 0; i < m.policy.ChallengePolls; i++ {
		clicked, err := m.solver.Attempt(ctx)
		if err != nil {
			m.logger.Warn("Challenge click failed", zap.Int("poll", i+1), zap.Error(err))
		}
		if clicked {
			res.ChallengeClicks++
			m.logger.Info("✅ Challenge clicked", zap.Int("poll", i+1))
			return EventSignalClicked, nil
		}
		if err := m.sleep(ctx, m.policy.ChallengePollInterval); err != nil {
			return 0, err
		}
	}

	m.logger.Warn("No challenge signal found; confirming anyway", zap.Int("polls", m.policy.ChallengePolls))
	return EventNoSignal, nil
}

// probeChallenge logs whether a challenge-provider frame shows its success
// text. It never affects the loop.
func (m *Machine) probeChallenge(ctx context.Context) {
	if m.selectors.ChallengeOK == "" {
		return
	}
	frames, err := m.page.Frames(ctx)
	if err != nil {
		return
	}
	for _, f := range frames {
		if !strings.Contains(f.URL, "cloudflare") {
			continue
		}
		var ok bool
		if err := m.page.EvaluateInFrame(ctx, f.ID, agent.VisibleExpr(m.selectors.ChallengeOK), &ok); err != nil {
			m.logger.Debug("Challenge probe failed", zap.String("frame_id", f.ID), zap.Error(err))
			continue
		}
		if ok {
			m.logger.Info("Challenge provider reports success", zap.String("frame_id", f.ID))
			return
		}
	}
}

// confirm snapshots the modal and clicks its confirm control.
func (m *Machine) confirm(ctx context.Context, stem string, res *Result) (Event, error) {
	visible, err := m.page.Visible(ctx, m.selectors.Confirm)
	if err != nil {
		return 0, err
	}
	if !visible {
		m.logger.Warn("Confirm control missing from modal")
		return EventConfirmMissing, nil
	}

	if m.snapshots != nil {
		path, err := m.snapshots.Snapshot(ctx, diagnostics.AttemptName(stem, res.Attempts))
		if err != nil {
			m.logger.Warn("Pre-confirm snapshot failed", zap.Error(err))
		} else {
			res.Snapshots = append(res.Snapshots, path)
		}
	}

	if err := m.page.Click(ctx, m.selectors.Confirm); err != nil {
		m.logger.Warn("Confirm click failed", zap.Error(err))
		return EventConfirmMissing, nil
	}
	return EventConfirmClicked, nil
}

// verify polls for the two result indicators, then falls back to the
// modal's visibility once CloseSettle has passed.
func (m *Machine) verify(ctx context.Context) (Outcome, error) {
	for i := 0; i < m.policy.verifyPolls(); i++ {
		rejected, err := m.page.Visible(ctx, m.selectors.CaptchaError)
		if err != nil {
			return Outcome{}, err
		}
		if rejected {
			m.logger.Warn("❌ Challenge rejected by dashboard")
			return Outcome{Kind: OutcomeChallengeRejected}, nil
		}

		notYet, err := m.page.Visible(ctx, m.selectors.NotYetEligible)
		if err != nil {
			return Outcome{}, err
		}
		if notYet {
			text, err := m.page.Text(ctx, m.selectors.NotYetEligible)
			if err != nil {
				m.logger.Debug("Could not read not-yet-eligible text", zap.Error(err))
			}
			date := ExtractAvailableAt(text)
			m.logger.Info("⏳ Not yet eligible for renewal", zap.String("available_at", date))
			return Outcome{Kind: OutcomeNotYetEligible, AvailableAt: date}, nil
		}

		if err := m.sleep(ctx, m.policy.VerifyInterval); err != nil {
			return Outcome{}, err
		}
	}

	// The modal may still be animating closed.
	if err := m.sleep(ctx, m.policy.CloseSettle); err != nil {
		return Outcome{}, err
	}
	open, err := m.page.Visible(ctx, m.selectors.Modal)
	if err != nil {
		return Outcome{}, err
	}
	if open {
		m.logger.Warn("Modal still open after confirm; outcome unknown")
		return Outcome{Kind: OutcomeAmbiguous}, nil
	}
	m.logger.Info("🎉 Renewal accepted")
	return Outcome{Kind: OutcomeSuccess}, nil
}

func (m *Machine) closeModal(ctx context.Context) {
	visible, err := m.page.Visible(ctx, m.selectors.Close)
	if err != nil || !visible {
		return
	}
	if err := m.page.Click(ctx, m.selectors.Close); err != nil {
		m.logger.Debug("Could not close modal", zap.Error(err))
	}
}

// reload drops every published signal and reloads the page. The observer
// re-arms itself on the new documents and may publish while the load is
// still in progress, so the board must be cleared first.
func (m *Machine) reload(ctx context.Context, res *Result) error {
	m.logger.Info("Reloading page")
	if m.signals != nil {
		m.signals.ResetAll()
	}
	if err := m.page.Reload(ctx); err != nil {
		return err
	}
	res.Reloads++
	return m.sleep(ctx, m.policy.ReloadSettle)
}
