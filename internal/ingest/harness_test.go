package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/courtwatch/internal/slot"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeFetcher scripts per-job outcomes and tracks peak concurrency.
type fakeFetcher struct {
	delay    time.Duration
	failFor  map[string]error // keyed by "fid/date"
	slotsFor map[string][]slot.Slot

	mu      sync.Mutex
	active  int32
	maxSeen int32
	calls   atomic.Int32
}

func (f *fakeFetcher) FetchDay(ctx context.Context, fid, dk string) ([]slot.Slot, error) {
	f.calls.Add(1)
	cur := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	f.mu.Lock()
	if cur > f.maxSeen {
		f.maxSeen = cur
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	key := fid + "/" + dk
	if err, ok := f.failFor[key]; ok {
		return nil, err
	}
	return f.slotsFor[key], nil
}

func TestBuildJobs(t *testing.T) {
	jobs := BuildJobs([]string{"a", "b"}, []string{"20250301", "20250302", "20250303"})
	assert.Len(t, jobs, 6)
	assert.Equal(t, Job{FacilityID: "a", DateKey: "20250301"}, jobs[0])
}

func TestRunDrainsQueueAndCollectsAvailability(t *testing.T) {
	f := &fakeFetcher{
		slotsFor: map[string][]slot.Slot{
			"a/20250301": {{Kind: slot.KindLabel, Label: "10:00~12:00"}},
		},
	}
	jobs := BuildJobs([]string{"a", "b"}, []string{"20250301", "20250302"})
	res := Run(context.Background(), f, jobs, Config{Timebox: 5 * time.Second, Concurrency: 2}, testLogger)

	assert.Equal(t, 4, res.Completed)
	assert.Equal(t, 4, res.OK)
	assert.Equal(t, 0, res.Failed)
	// Empty fetches succeed but record nothing.
	require.Contains(t, res.Availability, "a")
	assert.NotContains(t, res.Availability, "b")
	assert.Equal(t, "10:00~12:00", res.Availability["a"]["20250301"][0].Key())
}

func TestRunClassifiesFailures(t *testing.T) {
	f := &fakeFetcher{
		failFor: map[string]error{
			"a/20250301": context.DeadlineExceeded,
			"a/20250302": errors.New("connection refused"),
		},
	}
	jobs := BuildJobs([]string{"a"}, []string{"20250301", "20250302", "20250303"})
	res := Run(context.Background(), f, jobs, Config{Timebox: 5 * time.Second, Concurrency: 1}, testLogger)

	assert.Equal(t, 3, res.Completed)
	assert.Equal(t, 1, res.OK)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, res.FailReasons["timeout"])
	assert.Equal(t, 1, res.FailReasons["error"])
}

func TestRunBoundsConcurrency(t *testing.T) {
	f := &fakeFetcher{delay: 20 * time.Millisecond}
	jobs := BuildJobs([]string{"a", "b", "c", "d"}, []string{"20250301", "20250302"})
	res := Run(context.Background(), f, jobs, Config{Timebox: 5 * time.Second, Concurrency: 2}, testLogger)

	assert.Equal(t, 8, res.Completed)
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.LessOrEqual(t, f.maxSeen, int32(2))
}

func TestRunStopsAtDeadline(t *testing.T) {
	f := &fakeFetcher{delay: 50 * time.Millisecond}
	jobs := BuildJobs([]string{"a"}, manyDates(100))
	res := Run(context.Background(), f, jobs, Config{Timebox: 400 * time.Millisecond, Concurrency: 1}, testLogger)

	// The timebox, not the queue, ended the run; leftover jobs are normal.
	assert.Less(t, res.Completed, res.JobsTotal)
	assert.Less(t, res.Elapsed, 2*time.Second)
	assert.Equal(t, int32(res.Completed), f.calls.Load())
}

func TestRunShuffleIsReproducible(t *testing.T) {
	jobs1 := BuildJobs([]string{"a", "b", "c"}, manyDates(10))
	jobs2 := BuildJobs([]string{"a", "b", "c"}, manyDates(10))
	cfg := Config{Timebox: time.Second, Concurrency: 1, Shuffle: true, Seed: 7}

	f := &fakeFetcher{}
	Run(context.Background(), f, jobs1, cfg, testLogger)
	Run(context.Background(), f, jobs2, cfg, testLogger)
	assert.Equal(t, jobs1, jobs2)
}

func manyDates(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("2025%04d", i+101)
	}
	return out
}

func TestPercentile(t *testing.T) {
	vals := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(10), percentile(vals, 100))
	assert.Equal(t, time.Duration(1), percentile(vals, 0))
	// p50 of 10 values interpolates between ranks 5 and 6.
	p50 := percentile(vals, 50)
	assert.GreaterOrEqual(t, p50, time.Duration(5))
	assert.LessOrEqual(t, p50, time.Duration(6))
	assert.Equal(t, time.Duration(0), percentile(nil, 95))
}
