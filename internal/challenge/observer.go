package challenge

import (
	_ "embed"
	"strings"
)

// BindingName is the CDP runtime binding the observer calls to publish a Signal.
const BindingName = "__renewChallengeSignal"

//go:embed observer.js
var observerJS string

// ObserverScript returns the observer source, ready to be evaluated on every
// new document.
func ObserverScript() string {
	return strings.ReplaceAll(observerJS, "__BINDING__", BindingName)
}
