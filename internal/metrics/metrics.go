// Package metrics records per-step wall-clock timings for a build run and
// renders the run summary table. Timings are advisory output and never
// feed back into control flow.
package metrics

import (
	"fmt"
	"time"

	"github.com/vbwagner/client-code/internal/types"
)

// StepTiming records one executed step.
type StepTiming struct {
	Stage    types.Stage
	Status   int
	Duration time.Duration
}

// Recorder accumulates step timings for one run.
type Recorder struct {
	steps []StepTiming
}

// Record appends a timing entry for a completed step execution.
func (r *Recorder) Record(stage types.Stage, status int, d time.Duration) {
	r.steps = append(r.steps, StepTiming{Stage: stage, Status: status, Duration: d})
}

// Steps returns the recorded timings in execution order.
func (r *Recorder) Steps() []StepTiming {
	return r.steps
}

// Total returns the summed duration of all recorded steps.
func (r *Recorder) Total() time.Duration {
	var total time.Duration
	for _, s := range r.steps {
		total += s.Duration
	}
	return total
}

// PrintSummary prints a box-draw table of step timings and the run total.
func (r *Recorder) PrintSummary() {
	const line = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
	fmt.Printf("\n%s\n", line)
	fmt.Println("RUN SUMMARY")
	fmt.Printf("%s\n", line)
	for _, s := range r.steps {
		status := "ok"
		if s.Status != 0 {
			status = fmt.Sprintf("failed (%d)", s.Status)
		}
		fmt.Printf("  %-18s %-12s %s\n", s.Stage, status, formatDuration(s.Duration))
	}
	fmt.Printf("  %-18s %-12s %s\n", "total", "", formatDuration(r.Total()))
	fmt.Printf("%s\n\n", line)
}

// formatDuration converts a duration to a human-readable string.
// Examples: "0s", "45s", "3m 15s", "1h 2m 30s".
func formatDuration(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds <= 0 {
		return "0s"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
