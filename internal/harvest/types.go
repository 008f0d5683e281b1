// Package harvest defines the core article types shared across subsystems.
package harvest

import (
	"bytes"
	"fmt"
	"time"
)

// Language identifies the language an article was published in.
type Language string

// Languages the supported sources publish in.
const (
	LanguageEnglish Language = "en"
	LanguageFrench  Language = "fr"
	LanguageUnknown Language = ""
)

// TimeLayout is the offset-preserving layout used for every timestamp that
// crosses a file boundary. Offsets are kept as published, never normalized
// to UTC.
const TimeLayout = "2006-01-02T15:04-0700"

// Time wraps time.Time with minute-precision, offset-preserving JSON
// encoding. The source sites publish local-time offsets and the batch files
// must round-trip them exactly.
type Time struct {
	time.Time
}

// NewTime wraps a time.Time.
func NewTime(t time.Time) Time {
	return Time{Time: t}
}

// ParseTime parses a timestamp in the batch file layout.
func ParseTime(s string) (Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return Time{Time: t}, nil
}

// MarshalJSON encodes the timestamp in TimeLayout, offset intact.
func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(TimeLayout) + `"`), nil
}

// UnmarshalJSON decodes a TimeLayout timestamp.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Record is one extracted article. Records are immutable once produced by
// the pipeline; an empty Text is the soft-fail sentinel and such records
// never reach a batch file.
type Record struct {
	Language  Language `json:"language"`
	Title     string   `json:"title"`
	Published Time     `json:"published"`
	Modified  *Time    `json:"modified,omitempty"`
	Text      string   `json:"text"`
}

// ProbeResult is the outcome of testing a single candidate ID for content.
// Transient failures are reported as errors alongside, not as a result value.
type ProbeResult int

// Probe outcomes.
const (
	ProbeFound ProbeResult = iota
	ProbeGone
)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
