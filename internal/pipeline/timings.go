package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Stat aggregates one phase's per-item durations.
type Stat struct {
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
	Count int

	total time.Duration
}

func (s *Stat) observe(d time.Duration) {
	if s.Count == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.total += d
	s.Count++
	s.Avg = s.total / time.Duration(s.Count)
}

func (s Stat) format(name string) string {
	if s.Count == 0 {
		return fmt.Sprintf("%-10s no samples", name)
	}
	return fmt.Sprintf("%-10s min %.6fs  max %.6fs  avg %.6fs",
		name, s.Min.Seconds(), s.Max.Seconds(), s.Avg.Seconds())
}

// Timings carries the per-phase performance profile of a harvest run. Only
// items that produced a record contribute samples.
type Timings struct {
	Fetch   Stat
	Parse   Stat
	Extract Stat
}

// Summary renders the performance block printed and logged at run end.
func (t Timings) Summary() string {
	lines := []string{
		"Performance timing:",
		t.Fetch.format("fetch"),
		t.Parse.format("parse"),
		t.Extract.format("extract"),
	}
	return strings.Join(lines, "\n")
}
