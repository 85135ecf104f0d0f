package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamup/renew-agent/internal/batch"
)

// Report is the JSON record of one batch run
type Report struct {
	// RunID identifies the run across the report, history and S3 keys
	RunID string `json:"run_id"`
	// StartedAt is when the batch began
	StartedAt time.Time `json:"started_at"`
	// DurationMS is the wall-clock length of the run
	DurationMS int64 `json:"duration_ms"`
	// Results holds one entry per account, in input order
	Results []Entry `json:"results"`
	// Summary provides a high-level overview
	Summary *Summary `json:"summary"`
	// Metadata contains additional information
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Entry is one account's line in the report
type Entry struct {
	Index           int    `json:"index"`
	Stem            string `json:"stem"`
	Status          string `json:"status"`
	AvailableAt     string `json:"available_at,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Snapshot        string `json:"snapshot,omitempty"`
	Attempts        int    `json:"attempts"`
	Reloads         int    `json:"reloads"`
	ChallengeClicks int    `json:"challenge_clicks"`
	DurationMS      int64  `json:"duration_ms"`
}

// Summary provides a high-level run overview
type Summary struct {
	// Status is the overall run status (passed, passed_with_warnings, failed)
	Status string `json:"status"`
	// Total is the number of accounts processed
	Total int `json:"total"`
	// Counts is the number of accounts per final status
	Counts map[string]int `json:"counts"`
}

// ReportBuilder collects results as the batch runs. It implements
// batch.Recorder.
type ReportBuilder struct {
	runID     string
	startTime time.Time

	mu       sync.Mutex
	results  []batch.Result
	metadata map[string]string
}

// NewReportBuilder creates a new report builder with a fresh run ID
func NewReportBuilder() *ReportBuilder {
	return &ReportBuilder{
		runID:     uuid.New().String(),
		startTime: time.Now(),
		metadata:  make(map[string]string),
	}
}

// RunID returns the run identifier
func (rb *ReportBuilder) RunID() string {
	return rb.runID
}

// Record implements batch.Recorder
func (rb *ReportBuilder) Record(ctx context.Context, res batch.Result) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.results = append(rb.results, res)
	return nil
}

// AddMetadata adds a metadata key-value pair
func (rb *ReportBuilder) AddMetadata(key, value string) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.metadata[key] = value
}

// Build constructs the final report
func (rb *ReportBuilder) Build() *Report {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	entries := make([]Entry, 0, len(rb.results))
	for _, res := range rb.results {
		entries = append(entries, Entry{
			Index:           res.Index,
			Stem:            res.Stem,
			Status:          string(res.Status),
			AvailableAt:     res.AvailableAt,
			Reason:          res.Reason,
			Snapshot:        res.Snapshot,
			Attempts:        res.Attempts,
			Reloads:         res.Reloads,
			ChallengeClicks: res.ChallengeClicks,
			DurationMS:      res.Duration.Milliseconds(),
		})
	}

	metadata := make(map[string]string, len(rb.metadata))
	for k, v := range rb.metadata {
		metadata[k] = v
	}

	return &Report{
		RunID:      rb.runID,
		StartedAt:  rb.startTime,
		DurationMS: time.Since(rb.startTime).Milliseconds(),
		Results:    entries,
		Summary:    buildSummary(rb.results),
		Metadata:   metadata,
	}
}

// buildSummary constructs the run summary
func buildSummary(results []batch.Result) *Summary {
	counts := batch.Summarize(results)

	summary := &Summary{
		Total:  len(results),
		Counts: make(map[string]int, len(counts)),
	}
	for status, n := range counts {
		summary.Counts[string(status)] = n
	}

	// Determine overall status
	switch {
	case counts[batch.StatusError] > 0:
		summary.Status = "failed"
	case counts[batch.StatusLoginFailed]+counts[batch.StatusNotFound]+counts[batch.StatusExhausted] > 0:
		summary.Status = "passed_with_warnings"
	default:
		summary.Status = "passed"
	}

	return summary
}

// FileName is the report's name inside the diagnostics directory
func (r *Report) FileName() string {
	return fmt.Sprintf("renew_report_%s_%s.json",
		r.StartedAt.Format("20060102_150405"),
		r.RunID[:8],
	)
}

// SaveToFile saves the report to a JSON file
func (r *Report) SaveToFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}

	return nil
}

// SaveToDir saves the report under dir using FileName and returns its path
func (r *Report) SaveToDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, r.FileName())
	if err := r.SaveToFile(path); err != nil {
		return "", err
	}

	return path, nil
}
