package renewal

import (
	"regexp"
	"strings"

	"github.com/dreamup/renew-agent/internal/agent"
)

// OutcomeKind classifies one confirm attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeNotYetEligible
	OutcomeChallengeRejected
	OutcomeAmbiguous
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotYetEligible:
		return "not_yet_eligible"
	case OutcomeChallengeRejected:
		return "challenge_rejected"
	case OutcomeAmbiguous:
		return "ambiguous"
	}
	return "unknown"
}

// Outcome is produced exactly once per pass through Verifying.
type Outcome struct {
	Kind OutcomeKind
	// AvailableAt is set for OutcomeNotYetEligible.
	AvailableAt string
}

// Event maps the outcome onto the transition table.
func (o Outcome) Event() Event {
	switch o.Kind {
	case OutcomeSuccess:
		return EventOutcomeSuccess
	case OutcomeNotYetEligible:
		return EventOutcomeNotYetEligible
	case OutcomeChallengeRejected:
		return EventOutcomeChallengeRejected
	default:
		return EventOutcomeAmbiguous
	}
}

// Err describes why the attempt has to be retried. It is nil for outcomes
// that end the loop.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeChallengeRejected:
		return agent.NewChallengeRejectedError("dashboard rejected the challenge")
	case OutcomeAmbiguous:
		return agent.NewUITimeoutError("modal still open after confirm", nil)
	}
	return nil
}

// UnknownDate stands in when the not-yet-eligible text carries no date.
const UnknownDate = "Unknown Date"

var availableAtPattern = regexp.MustCompile(`as of\s+(.*?)\s+\(`)

// ExtractAvailableAt pulls the date out of "... as of <date> (...".
func ExtractAvailableAt(text string) string {
	m := availableAtPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return UnknownDate
	}
	date := strings.TrimSpace(m[1])
	if date == "" {
		return UnknownDate
	}
	return date
}
