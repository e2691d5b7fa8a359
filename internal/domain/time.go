package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Timestamp is a point in time stored in remote records.
//
// It marshals to RFC3339 and the zero value marshals to "". Unmarshaling also
// accepts epoch milliseconds as a number or a numeric string, which is what
// older clients wrote.
type Timestamp struct {
	time.Time
}

// Now returns the current time as a Timestamp, truncated to milliseconds.
func Now() Timestamp {
	return Timestamp{Time: time.Now().UTC().Truncate(time.Millisecond)}
}

// At wraps t.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// IsSet reports whether the timestamp carries a time.
func (ts Timestamp) IsSet() bool {
	return !ts.IsZero()
}

// String returns the stored representation.
func (ts Timestamp) String() string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

// MarshalJSON outputs RFC3339, or "" when unset.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

// UnmarshalJSON accepts RFC3339 strings, epoch milliseconds, "" and null.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		ts.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return ts.parseString(s)
	}

	var ms float64
	if err := json.Unmarshal(data, &ms); err == nil {
		ts.Time = time.UnixMilli(int64(ms)).UTC()
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into Timestamp", string(data))
}

func (ts *Timestamp) parseString(s string) error {
	if s == "" {
		ts.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		ts.Time = t.UTC()
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		ts.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	return fmt.Errorf("cannot parse time string: %s", s)
}
