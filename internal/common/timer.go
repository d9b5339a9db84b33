// Package common holds the timing and memory helpers shared by the pipeline
// and batch scans.
package common

import (
	"fmt"
	"time"
)

// Timer measures one stage of a detection run.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer starts an unnamed timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// NewNamedTimer starts a timer labelled name.
func NewNamedTimer(name string) *Timer {
	return &Timer{
		name:  name,
		start: time.Now(),
	}
}

// Stop records and returns the elapsed duration. Calling Stop again
// extends the measurement.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// StopNs is Stop in nanoseconds, the unit of the processing timings.
func (t *Timer) StopNs() int64 {
	return t.Stop().Nanoseconds()
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string {
	return t.name
}

func (t *Timer) String() string {
	if t.name != "" {
		return fmt.Sprintf("%s: %v", t.name, t.duration)
	}
	return t.duration.String()
}
