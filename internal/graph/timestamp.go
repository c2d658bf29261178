package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

// LiteralTimeLayout is the canonical millisecond UTC form used in query literals.
const LiteralTimeLayout = "2006-01-02T15:04:05.000Z07:00"

var timestampLayouts = []string{time.RFC3339Nano, time.RFC3339, time.DateTime, time.DateOnly}

// Timestamp is a date value that may still be in textual form.
//
// A decoded Timestamp keeps the text it was given; Revive (or the first call
// to Time) parses it. Values are always normalized to UTC.
type Timestamp struct {
	raw    string
	t      time.Time
	parsed bool
}

// NewTimestamp wraps an already-parsed time.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t.UTC(), parsed: true}
}

// TimestampFromString wraps unparsed text.
func TimestampFromString(s string) Timestamp {
	return Timestamp{raw: s}
}

// Revive parses the textual form. Calling it again is a no-op.
func (ts *Timestamp) Revive() error {
	if ts.parsed {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts.raw); err == nil {
			ts.t = t.UTC()
			ts.raw = ""
			ts.parsed = true
			return nil
		}
	}
	return fmt.Errorf("timestamp: cannot parse %q", ts.raw)
}

// Time returns the parsed time, reviving first if needed.
// Unparseable text yields the zero time.
func (ts *Timestamp) Time() time.Time {
	_ = ts.Revive()
	return ts.t
}

// Revived reports whether the value has been parsed.
func (ts Timestamp) Revived() bool { return ts.parsed }

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if !ts.parsed {
		return json.Marshal(ts.raw)
	}
	return json.Marshal(ts.t.Format(time.RFC3339Nano))
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*ts = Timestamp{raw: s}
	return nil
}
