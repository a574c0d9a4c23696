package domain

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: after any number of prepends the history is capped and newest-first.
func TestPropertyHistoryBoundedAndNewestFirst(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	props.Property("len(history) <= limit and timestamps strictly decrease", prop.ForAll(
		func(count int) bool {
			rec := EndpointRecord{}
			for i := 1; i <= count; i++ {
				rec.Prepend(CheckResult{Timestamp: int64(i), Status: StatusUp})
			}
			want := count
			if want > HistoryLimit {
				want = HistoryLimit
			}
			if len(rec.History) != want {
				return false
			}
			for i := 1; i < len(rec.History); i++ {
				if rec.History[i-1].Timestamp <= rec.History[i].Timestamp {
					return false
				}
			}
			return count == 0 || rec.History[0].Timestamp == int64(count)
		},
		gen.IntRange(0, 3*HistoryLimit),
	))

	props.Property("classification is total over codes and latencies", prop.ForAll(
		func(code int, latencyMS int) bool {
			s := Classify(code, msDuration(latencyMS))
			if !s.Valid() || s == StatusUnknown {
				return false
			}
			if code < 200 || code > 299 {
				return s == StatusDown
			}
			return s == StatusUp || s == StatusDegraded
		},
		gen.IntRange(0, 599),
		gen.IntRange(0, 5000),
	))

	props.TestingRun(t)
}
