package renewal

import (
	"time"

	"github.com/dreamup/renew-agent/internal/config"
)

// Policy bounds the loop. Polls are count based so the loop's shape does not
// depend on wall-clock timing.
type Policy struct {
	MaxAttempts           int
	ChallengePolls        int
	ChallengePollInterval time.Duration
	ChallengeSettle       time.Duration
	VerifyWindow          time.Duration
	VerifyInterval        time.Duration
	CloseSettle           time.Duration
	ReloadSettle          time.Duration
	ModalTimeout          time.Duration
	TriggerTimeout        time.Duration
}

// DefaultPolicy is 20 attempts, 30 one-second challenge polls and a three
// second verification window.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:           20,
		ChallengePolls:        30,
		ChallengePollInterval: time.Second,
		ChallengeSettle:       8 * time.Second,
		VerifyWindow:          3 * time.Second,
		VerifyInterval:        200 * time.Millisecond,
		CloseSettle:           2 * time.Second,
		ReloadSettle:          3 * time.Second,
		ModalTimeout:          5 * time.Second,
		TriggerTimeout:        5 * time.Second,
	}
}

// PolicyFromConfig copies the renewal section of the configuration.
func PolicyFromConfig(c config.RenewalConfig) Policy {
	return Policy{
		MaxAttempts:           c.MaxAttempts,
		ChallengePolls:        c.ChallengePolls,
		ChallengePollInterval: c.ChallengePollInterval,
		ChallengeSettle:       c.ChallengeSettle,
		VerifyWindow:          c.VerifyWindow,
		VerifyInterval:        c.VerifyInterval,
		CloseSettle:           c.CloseSettle,
		ReloadSettle:          c.ReloadSettle,
		ModalTimeout:          c.ModalTimeout,
		TriggerTimeout:        c.TriggerTimeout,
	}
}

// verifyPolls is the number of indicator checks in the verification window.
func (p Policy) verifyPolls() int {
	if p.VerifyInterval <= 0 {
		return 1
	}
	n := int((p.VerifyWindow + p.VerifyInterval - 1) / p.VerifyInterval)
	if n < 1 {
		n = 1
	}
	return n
}
