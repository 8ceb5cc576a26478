// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

package easyaccess

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Reporter receives task progress while a call is in flight.
type Reporter interface {
	// Update replaces the progress description with the latest status text.
	Update(desc string)
	// Done marks the task finished.
	Done(desc string)
	// Fail marks the task failed or cancelled.
	Fail(desc string)
}

// ReporterFactory builds a Reporter for one call, seeded with a description.
type ReporterFactory func(desc string) Reporter

// NopReporter discards all progress.
type NopReporter struct{}

func (NopReporter) Update(string) {}
func (NopReporter) Done(string)   {}
func (NopReporter) Fail(string)   {}

// spinnerMarkers rotate once per status update.
var spinnerMarkers = []string{"⢿", "⣻", "⣽", "⣾", "⣷", "⣯", "⣟", "⡿"}

// Spinner is a terminal progress indicator: a rotating marker, the task
// description, and optionally the elapsed time, rewritten in place with \r.
type Spinner struct {
	w       io.Writer
	desc    string
	marker  int
	start   time.Time
	timer   bool
	lastLen int
}

// NewSpinner creates a spinner writing to w and shows the initial line.
func NewSpinner(w io.Writer, desc string, timer bool) *Spinner {
	s := &Spinner{w: w, desc: desc, start: time.Now(), timer: timer}
	s.show("")
	return s
}

// SpinnerFactory returns a ReporterFactory producing timed spinners on w.
func SpinnerFactory(w io.Writer) ReporterFactory {
	return func(desc string) Reporter {
		return NewSpinner(w, desc, true)
	}
}

// Update replaces the description and rotates the marker.
func (s *Spinner) Update(desc string) {
	if desc != "" {
		s.desc = desc
	}
	s.marker = (s.marker + 1) % len(spinnerMarkers)
	s.show("")
}

// Done terminates the line with a checkmark.
func (s *Spinner) Done(desc string) {
	if desc != "" {
		s.desc = desc
	}
	s.show("✓")
	fmt.Fprintln(s.w)
}

// Fail terminates the line with a cross.
func (s *Spinner) Fail(desc string) {
	if desc != "" {
		s.desc = desc
	}
	s.show("✗")
	fmt.Fprintln(s.w)
}

func (s *Spinner) show(marker string) {
	if marker == "" {
		marker = spinnerMarkers[s.marker]
	}
	line := fmt.Sprintf("%s %s", marker, s.desc)
	if s.timer {
		line = fmt.Sprintf("[%s] %s", formatElapsed(time.Since(s.start)), line)
	}
	fmt.Fprintf(s.w, "\r%s\r%s", strings.Repeat(" ", s.lastLen), line)
	s.lastLen = len([]rune(line))
}

// formatElapsed renders a duration as 3.2s, 4m12.0s, or 1h02m05.3s.
func formatElapsed(d time.Duration) string {
	seconds := d.Seconds()
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.1fs", seconds)
	case seconds <= 3600:
		return fmt.Sprintf("%dm%.1fs", int(seconds/60), seconds-float64(int(seconds/60))*60)
	default:
		hours := int(seconds / 3600)
		minutes := int(seconds/60) % 60
		return fmt.Sprintf("%dh%02dm%04.1fs", hours, minutes, seconds-float64(hours)*3600-float64(minutes)*60)
	}
}
