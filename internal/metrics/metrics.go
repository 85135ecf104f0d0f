// Package metrics counts batch outcomes and writes them as a
// node-exporter textfile.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dreamup/renew-agent/internal/batch"
)

// Recorder is a batch.Recorder backed by a private registry.
type Recorder struct {
	registry *prometheus.Registry
	textfile string

	accounts *prometheus.CounterVec
	attempts prometheus.Counter
	reloads  prometheus.Counter
	clicks   prometheus.Counter
}

// New creates a Recorder. An empty textfile disables Flush.
func New(textfile string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Recorder{
		registry: reg,
		textfile: textfile,
		accounts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "renew",
			Name:      "accounts_total",
			Help:      "Accounts processed, by final status.",
		}, []string{"status"}),
		attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "renew",
			Name:      "attempts_total",
			Help:      "Renewal attempts made across all accounts.",
		}),
		reloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "renew",
			Name:      "page_reloads_total",
			Help:      "Page reloads issued by the renewal loop.",
		}),
		clicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "renew",
			Name:      "challenge_clicks_total",
			Help:      "Synthesized clicks on a challenge checkbox.",
		}),
	}

	// Expose every status from the first scrape.
	for _, s := range batch.AllStatuses {
		r.accounts.WithLabelValues(string(s))
	}
	return r
}

// Record implements batch.Recorder.
func (r *Recorder) Record(ctx context.Context, res batch.Result) error {
	r.accounts.WithLabelValues(string(res.Status)).Inc()
	r.attempts.Add(float64(res.Attempts))
	r.reloads.Add(float64(res.Reloads))
	r.clicks.Add(float64(res.ChallengeClicks))
	return nil
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Flush writes the current values to the textfile, if one is configured.
func (r *Recorder) Flush() error {
	if r.textfile == "" {
		return nil
	}
	return prometheus.WriteToTextfile(r.textfile, r.registry)
}
