// Package renewal drives the bounded renew attempt loop for one logged-in
// account. The loop is an explicit transition table (Transition) plus a
// driver (Machine) that performs each state's browser work and reports
// the resulting Event.
package renewal

import "fmt"

// State is a node of the renewal loop.
type State int

const (
	StateIdle State = iota
	StateModalOpen
	StateChallengePending
	StateChallengeAttempted
	StateConfirming
	StateVerifying
	StateReloading

	// Terminal states.
	StateRenewed
	StateDeferred
	StateStopped
	StateExhausted
)

var stateNames = map[State]string{
	StateIdle:               "idle",
	StateModalOpen:          "modal_open",
	StateChallengePending:   "challenge_pending",
	StateChallengeAttempted: "challenge_attempted",
	StateConfirming:         "confirming",
	StateVerifying:          "verifying",
	StateReloading:          "reloading",
	StateRenewed:            "renewed",
	StateDeferred:           "deferred",
	StateStopped:            "stopped",
	StateExhausted:          "exhausted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the loop ends in s.
func (s State) Terminal() bool {
	switch s {
	case StateRenewed, StateDeferred, StateStopped, StateExhausted:
		return true
	}
	return false
}

// Event is what a state's work observed.
type Event int

const (
	EventTriggerMissing Event = iota
	EventModalShown
	EventModalTimeout
	EventPointerWarmed
	EventSignalClicked
	EventNoSignal
	EventSettled
	EventConfirmClicked
	EventConfirmMissing
	EventOutcomeSuccess
	EventOutcomeNotYetEligible
	EventOutcomeChallengeRejected
	EventOutcomeAmbiguous
	EventReloaded
	EventBudgetExhausted
)

var eventNames = map[Event]string{
	EventTriggerMissing:           "trigger_missing",
	EventModalShown:               "modal_shown",
	EventModalTimeout:             "modal_timeout",
	EventPointerWarmed:            "pointer_warmed",
	EventSignalClicked:            "signal_clicked",
	EventNoSignal:                 "no_signal",
	EventSettled:                  "settled",
	EventConfirmClicked:           "confirm_clicked",
	EventConfirmMissing:           "confirm_missing",
	EventOutcomeSuccess:           "outcome_success",
	EventOutcomeNotYetEligible:    "outcome_not_yet_eligible",
	EventOutcomeChallengeRejected: "outcome_challenge_rejected",
	EventOutcomeAmbiguous:         "outcome_ambiguous",
	EventReloaded:                 "reloaded",
	EventBudgetExhausted:          "budget_exhausted",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(e))
}

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventTriggerMissing:  StateStopped,
		EventModalShown:      StateModalOpen,
		EventModalTimeout:    StateIdle,
		EventBudgetExhausted: StateExhausted,
	},
	StateModalOpen: {
		EventPointerWarmed: StateChallengePending,
	},
	StateChallengePending: {
		EventSignalClicked: StateChallengeAttempted,
		// Confirm is attempted even when no signal ever appeared.
		EventNoSignal: StateConfirming,
	},
	StateChallengeAttempted: {
		EventSettled: StateConfirming,
	},
	StateConfirming: {
		EventConfirmClicked: StateVerifying,
		EventConfirmMissing: StateReloading,
	},
	StateVerifying: {
		EventOutcomeSuccess:           StateRenewed,
		EventOutcomeNotYetEligible:    StateDeferred,
		EventOutcomeChallengeRejected: StateReloading,
		EventOutcomeAmbiguous:         StateReloading,
	},
	StateReloading: {
		EventReloaded: StateIdle,
	},
}

// ErrInvalidTransition is returned for an event the state does not accept.
type ErrInvalidTransition struct {
	From  State
	Event Event
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("no transition from %s on %s", e.From, e.Event)
}

// Transition returns the state that follows s on e.
func Transition(s State, e Event) (State, error) {
	next, ok := transitions[s][e]
	if !ok {
		return s, &ErrInvalidTransition{From: s, Event: e}
	}
	return next, nil
}
