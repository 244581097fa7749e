package engine

import (
	"sync"
	"time"

	"sensorstd/pkg/contracts/domain"
)

// RunTracker accumulates conversion results as workers finish and
// serves consistent snapshots to the status surface.
type RunTracker struct {
	mu      sync.RWMutex
	summary domain.RunSummary
	started bool
}

// NewRunTracker creates an empty tracker.
func NewRunTracker() *RunTracker {
	return &RunTracker{}
}

// Start records the beginning of a run.
func (t *RunTracker) Start(runID string, units int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.started = true
	t.summary = domain.RunSummary{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Units:     units,
		Results:   make([]domain.ConversionResult, 0, units),
	}
}

// Record adds one finished conversion result.
func (t *RunTracker) Record(result domain.ConversionResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.summary.Results = append(t.summary.Results, result)
	if result.Success {
		t.summary.Succeeded++
	} else {
		t.summary.Failed++
	}
}

// Finish stamps the run end time.
func (t *RunTracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.summary.FinishedAt = time.Now().UTC()
}

// Started reports whether a run has begun.
func (t *RunTracker) Started() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.started
}

// Snapshot returns a copy of the current run summary.
func (t *RunTracker) Snapshot() domain.RunSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := t.summary
	out.Results = make([]domain.ConversionResult, len(t.summary.Results))
	copy(out.Results, t.summary.Results)
	return out
}
