// Package ingest drives crawler fetches at controlled load: a shared job
// queue, worker goroutines, and a semaphore bounding true concurrency,
// all inside a wall-clock timebox. The same harness feeds the refresh
// cycle and runs standalone as a throughput benchmark.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/albapepper/courtwatch/internal/crawl"
	"github.com/albapepper/courtwatch/internal/slot"
)

// safetyMargin keeps a worker from starting a job it almost certainly
// cannot finish before the deadline.
const safetyMargin = 300 * time.Millisecond

// Job is one (facility, date) fetch.
type Job struct {
	FacilityID string
	DateKey    string
}

// BuildJobs crosses facility ids with date keys.
func BuildJobs(facilityIDs, dateKeys []string) []Job {
	jobs := make([]Job, 0, len(facilityIDs)*len(dateKeys))
	for _, fid := range facilityIDs {
		for _, dk := range dateKeys {
			jobs = append(jobs, Job{FacilityID: fid, DateKey: dk})
		}
	}
	return jobs
}

// Config controls one harness run.
type Config struct {
	Timebox     time.Duration
	Concurrency int
	Shuffle     bool
	// Seed fixes the shuffle order for reproducible runs; 0 uses a
	// time-derived seed.
	Seed int64
}

// Result aggregates one harness run. A fetch that returns an empty slot
// list still counts as OK: the response arrived, the day has no openings.
type Result struct {
	Timebox     time.Duration  `json:"timebox"`
	Elapsed     time.Duration  `json:"elapsed"`
	Concurrency int            `json:"concurrency"`
	JobsTotal   int            `json:"jobs_total"`
	Completed   int            `json:"completed_requests"`
	OK          int            `json:"ok_requests"`
	Failed      int            `json:"fail_requests"`
	FailReasons map[string]int `json:"fail_reasons,omitempty"`

	Avg time.Duration `json:"avg"`
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`

	// Availability holds every successfully fetched nonempty day.
	Availability crawl.Availability `json:"-"`
}

// Run executes jobs against the fetcher until the queue drains or the
// timebox expires. Deadline handling is cooperative: in-flight fetches
// finish, no new ones start, unclaimed jobs stay unprocessed. That is
// normal termination, not an error.
func Run(ctx context.Context, fetcher crawl.Fetcher, jobs []Job, cfg Config, logger *slog.Logger) Result {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	if cfg.Shuffle {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1))
		rng.Shuffle(len(jobs), func(i, j int) { jobs[i], jobs[j] = jobs[j], jobs[i] })
	}

	queue := make(chan Job, len(jobs))
	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	start := time.Now()
	deadline := start.Add(cfg.Timebox)
	sem := make(chan struct{}, cfg.Concurrency)

	var (
		mu        sync.Mutex
		ok, fail  int
		reasons   = make(map[string]int)
		durations []time.Duration
		avail     = make(crawl.Availability)
	)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if time.Now().After(deadline) || ctx.Err() != nil {
					return
				}
				job, more := <-queue
				if !more {
					return
				}
				// Do not start what cannot finish in time.
				if time.Until(deadline) <= safetyMargin {
					return
				}

				sem <- struct{}{}
				t0 := time.Now()
				slots, err := fetcher.FetchDay(ctx, job.FacilityID, job.DateKey)
				took := time.Since(t0)
				<-sem

				mu.Lock()
				durations = append(durations, took)
				if err != nil {
					fail++
					reasons[failureKind(err)]++
				} else {
					ok++
					recordSlots(avail, job, slots)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	res := Result{
		Timebox:      cfg.Timebox,
		Elapsed:      time.Since(start),
		Concurrency:  cfg.Concurrency,
		JobsTotal:    len(jobs),
		Completed:    ok + fail,
		OK:           ok,
		Failed:       fail,
		FailReasons:  reasons,
		Availability: avail,
	}
	res.Avg, res.P50, res.P95 = summarize(durations)

	logger.Info("Ingestion run complete",
		"jobs", res.JobsTotal, "completed", res.Completed,
		"ok", res.OK, "failed", res.Failed,
		"elapsed", res.Elapsed.Round(time.Millisecond))
	return res
}

func recordSlots(avail crawl.Availability, job Job, slots []slot.Slot) {
	if len(slots) == 0 {
		return
	}
	days := avail[job.FacilityID]
	if days == nil {
		days = make(map[string][]slot.Slot)
		avail[job.FacilityID] = days
	}
	days[job.DateKey] = append(days[job.DateKey], slots...)
}

// failureKind maps an error to an aggregation label.
func failureKind(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
