package domain

import (
	"fmt"
	"strings"
	"time"
)

// TaskOutcome records how a single task fared within a run.
type TaskOutcome struct {
	TaskName   string `json:"taskName"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// RunResult summarizes one orchestrated run. Success is true only when every
// task succeeded.
type RunResult struct {
	RunID      string        `json:"runId"`
	Success    bool          `json:"success"`
	Results    []TaskOutcome `json:"results"`
	DurationMs int64         `json:"durationMs"`
	StartedAt  time.Time     `json:"startedAt"`
}

// FailedTasks returns the names of the tasks that did not succeed.
func (r RunResult) FailedTasks() []string {
	var names []string
	for _, o := range r.Results {
		if !o.Success {
			names = append(names, o.TaskName)
		}
	}
	return names
}

// WorkerReport tallies per-target results of a worker invocation.
type WorkerReport struct {
	Updated int
	Failed  []string
	Skipped []string
}

// Attempted is the number of targets that were fetched, successfully or not.
func (r WorkerReport) Attempted() int {
	return r.Updated + len(r.Failed)
}

// Err returns an error when targets were attempted and all of them failed.
// Partial failure is not an error.
func (r WorkerReport) Err(kind string) error {
	if r.Attempted() == 0 || r.Updated > 0 {
		return nil
	}
	return fmt.Errorf("all %d %s failed: %s", len(r.Failed), kind, strings.Join(r.Failed, ", "))
}
