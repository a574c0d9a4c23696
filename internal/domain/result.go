package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the outcome class of a probe.
type Status string

const (
	StatusUp       Status = "UP"
	StatusDown     Status = "DOWN"
	StatusDegraded Status = "DEGRADED"
	StatusUnknown  Status = "UNKNOWN"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUp, StatusDown, StatusDegraded, StatusUnknown:
		return true
	default:
		return false
	}
}

// ParseStatus maps a stored string back to a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// UnmarshalJSON rejects statuses outside the four known values, so a corrupt
// stored history fails to load instead of surfacing an unknown status.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// DegradedAfter is the latency above which a 2xx response counts as DEGRADED.
const DegradedAfter = 1000 * time.Millisecond

// Classify turns a response code and probe latency into a Status.
// code 0 means no response arrived.
func Classify(code int, latency time.Duration) Status {
	switch {
	case code == 0:
		return StatusDown
	case code >= 200 && code < 300 && latency > DegradedAfter:
		return StatusDegraded
	case code >= 200 && code < 300:
		return StatusUp
	default:
		return StatusDown
	}
}

// CheckResult is one immutable probe outcome.
type CheckResult struct {
	Timestamp  int64  `json:"timestamp"` // epoch ms, completion time
	Status     Status `json:"status"`
	LatencyMS  int64  `json:"latency"`
	StatusCode *int   `json:"statusCode,omitempty"`
	StatusText string `json:"statusText,omitempty"`
}

// Code returns the HTTP status code, or 0 when none was recorded.
func (c CheckResult) Code() int {
	if c.StatusCode == nil {
		return 0
	}
	return *c.StatusCode
}

func (c CheckResult) clone() CheckResult {
	if c.StatusCode != nil {
		v := *c.StatusCode
		c.StatusCode = &v
	}
	return c
}

// IntPtr is a small helper for optional status codes.
func IntPtr(v int) *int { return &v }
