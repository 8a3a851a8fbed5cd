package ingest

import (
	"fmt"
	"sort"
	"time"
)

// summarize returns mean, p50 and p95 over the observed fetch durations.
func summarize(durations []time.Duration) (avg, p50, p95 time.Duration) {
	if len(durations) == 0 {
		return 0, 0, 0
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return total / time.Duration(len(sorted)), percentile(sorted, 50), percentile(sorted, 95)
}

// percentile interpolates linearly between the two nearest ranks.
// values must be sorted ascending.
func percentile(values []time.Duration, p float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	k := float64(len(values)-1) * (p / 100.0)
	f := int(k)
	c := f + 1
	if c >= len(values) {
		return values[len(values)-1]
	}
	lo, hi := float64(values[f]), float64(values[c])
	return time.Duration(lo + (hi-lo)*(k-float64(f)))
}

// Summary returns a one-line human-readable digest of a run.
func (r Result) Summary() string {
	return fmt.Sprintf(
		"jobs=%d completed=%d ok=%d failed=%d avg=%s p50=%s p95=%s elapsed=%s",
		r.JobsTotal, r.Completed, r.OK, r.Failed,
		r.Avg.Round(time.Millisecond), r.P50.Round(time.Millisecond),
		r.P95.Round(time.Millisecond), r.Elapsed.Round(time.Millisecond))
}
