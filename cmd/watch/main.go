// Command watch is the Courtwatch crawl/diff/notify CLI.
//
// Usage:
//
//	courtwatch refresh
//	courtwatch refresh --source daehwa
//	courtwatch bench --timebox 55s --concurrency 5 --sample 3 --repeat 3
//	courtwatch facilities
//	courtwatch schema
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/courtwatch/internal/config"
	"github.com/albapepper/courtwatch/internal/crawl"
	"github.com/albapepper/courtwatch/internal/db"
	"github.com/albapepper/courtwatch/internal/ingest"
	"github.com/albapepper/courtwatch/internal/notify"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "courtwatch",
		Short: "Court availability watcher CLI",
	}

	root.AddCommand(refreshCmd())
	root.AddCommand(benchCmd())
	root.AddCommand(facilitiesCmd())
	root.AddCommand(schemaCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// refresh command
// --------------------------------------------------------------------------

func refreshCmd() *cobra.Command {
	var sourceFlag string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one crawl + diff + notify cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				if sourceFlag == "" {
					sourceFlag = cfg.CrawlSource
				}
				source, err := crawl.ParseSource(sourceFlag)
				if err != nil {
					return err
				}
				if cfg.CrawlBaseURL == "" {
					return fmt.Errorf("CRAWL_BASE_URL is required")
				}

				client := crawl.NewClient(cfg.CrawlBaseURL, cfg.CrawlRPS, cfg.CrawlTimeout)
				facilities, err := loadFacilities(ctx, client)
				if err != nil {
					return err
				}

				now := time.Now()
				jobs := buildCrawlJobs(facilities, source, now)
				logger.Info("Refresh starting",
					"source", source, "facilities", len(facilities), "jobs", len(jobs))

				start := time.Now()
				run := ingest.Run(ctx, client, jobs, ingest.Config{
					Timebox:     cfg.CrawlTimebox,
					Concurrency: cfg.CrawlConcurrency,
					Shuffle:     true,
					Seed:        cfg.CrawlSeed,
				}, logger)

				res := crawl.Result{Facilities: facilities, Availability: run.Availability}
				var sender notify.Sender
				if cfg.VAPIDPrivateKey != "" {
					if err := cfg.RequirePush(); err != nil {
						return err
					}
					sender = notify.NewWebPushSender(
						cfg.VAPIDPrivateKey, cfg.VAPIDPublicKey, cfg.VAPIDSubject, logger)
				} else {
					logger.Info("Push dispatch disabled (no VAPID_PRIVATE_KEY)")
				}

				cycle, err := notify.Run(ctx, pool.Pool, sender, res, logger)
				if err != nil {
					return err
				}
				logger.Info("Refresh finished",
					"duration", time.Since(start).Round(time.Second),
					"summary", cycle.Summary())
				for _, e := range cycle.Errors {
					logger.Error("cycle error", "error", e)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sourceFlag, "source", "", "Crawl source (gytennis, daehwa, all); default from CRAWL_SOURCE")
	return cmd
}

// buildCrawlJobs crosses each covered facility with its source's crawl
// window. Dae-hwa releases next month at a different moment than the
// gytennis sites, so the window is chosen per facility.
func buildCrawlJobs(facilities map[string]crawl.Facility, source crawl.Source, now time.Time) []ingest.Job {
	ids := make([]string, 0, len(facilities))
	for id := range facilities {
		if source.Covers(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var jobs []ingest.Job
	for _, id := range ids {
		cutoff := crawl.CutoffGytennis
		if crawl.SourceDaehwa.Covers(id) {
			cutoff = crawl.CutoffDaehwa
		}
		_, dateKeys := crawl.DateRange(cutoff, now)
		jobs = append(jobs, ingest.BuildJobs([]string{id}, dateKeys)...)
	}
	return jobs
}

// loadFacilities prefers the local cache file and falls back to a live
// catalogue fetch, refreshing the cache on the way.
func loadFacilities(ctx context.Context, client *crawl.Client) (map[string]crawl.Facility, error) {
	facilities, err := crawl.LoadFacilityCache(crawl.DefaultCachePath)
	if err == nil && len(facilities) > 0 {
		return facilities, nil
	}

	facilities, err = client.FetchFacilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch facilities: %w", err)
	}
	if err := crawl.SaveFacilityCache(crawl.DefaultCachePath, facilities); err != nil {
		logger.Warn("Could not write facility cache", "error", err)
	}
	return facilities, nil
}

// --------------------------------------------------------------------------
// bench command
// --------------------------------------------------------------------------

func benchCmd() *cobra.Command {
	var (
		timebox     time.Duration
		timeout     time.Duration
		concurrency int
		sample      int
		days        int
		seed        int64
		shuffle     bool
		repeat      int
		cachePath   string
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the timeboxed ingestion harness as a throughput benchmark",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.CrawlBaseURL == "" {
				return fmt.Errorf("CRAWL_BASE_URL is required")
			}
			// Env values back the flags when the flags stay at defaults.
			if sample == 0 {
				sample = cfg.CrawlSample
			}
			if seed == 0 {
				seed = cfg.CrawlSeed
			}

			facilities, err := crawl.LoadFacilityCache(cachePath)
			if err != nil {
				return fmt.Errorf("load facility cache (run `courtwatch facilities` first): %w", err)
			}
			ids := sampleFacilityIDs(facilities, sample, seed)
			dateKeys := crawl.UpcomingDateKeys(time.Now(), days)
			jobs := ingest.BuildJobs(ids, dateKeys)

			client := crawl.NewClient(cfg.CrawlBaseURL, cfg.CrawlRPS, timeout)
			logger.Info("Benchmark starting",
				"facilities", len(ids), "days", days,
				"jobs", len(jobs), "timebox", timebox, "concurrency", concurrency,
				"repeat", repeat)

			var results []ingest.Result
			for i := 0; i < repeat; i++ {
				if ctx.Err() != nil {
					break
				}
				run := ingest.Run(ctx, client, ingest.BuildJobs(ids, dateKeys), ingest.Config{
					Timebox:     timebox,
					Concurrency: concurrency,
					Shuffle:     shuffle,
					Seed:        seed,
				}, logger)
				results = append(results, run)

				out, _ := json.Marshal(run)
				fmt.Println(string(out))
			}

			for i, r := range results {
				logger.Info("Benchmark run", "run", i+1, "summary", r.Summary())
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timebox, "timebox", 55*time.Second, "Wall-clock budget per run")
	cmd.Flags().DurationVar(&timeout, "timeout", 8*time.Second, "Per-request timeout")
	cmd.Flags().IntVar(&concurrency, "concurrency", 5, "Concurrent fetch limit")
	cmd.Flags().IntVar(&sample, "sample", 0, "Randomly sample this many facilities; 0 = all")
	cmd.Flags().IntVar(&days, "days", 7, "Upcoming days to fetch, starting tomorrow")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for sampling and shuffling; 0 = time-derived")
	cmd.Flags().BoolVar(&shuffle, "shuffle", true, "Shuffle job order")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "Number of benchmark runs")
	cmd.Flags().StringVar(&cachePath, "cache", crawl.DefaultCachePath, "Facility cache file")
	return cmd
}

// sampleFacilityIDs picks n ids without replacement, deterministically under
// a fixed seed.
func sampleFacilityIDs(facilities map[string]crawl.Facility, n int, seed int64) []string {
	ids := make([]string, 0, len(facilities))
	for id := range facilities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if n <= 0 || n >= len(ids) {
		return ids
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1))
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids[:n]
}

// --------------------------------------------------------------------------
// facilities command
// --------------------------------------------------------------------------

func facilitiesCmd() *cobra.Command {
	var cachePath string
	cmd := &cobra.Command{
		Use:   "facilities",
		Short: "Refresh the local facility cache from the live catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.CrawlBaseURL == "" {
				return fmt.Errorf("CRAWL_BASE_URL is required")
			}

			client := crawl.NewClient(cfg.CrawlBaseURL, cfg.CrawlRPS, cfg.CrawlTimeout)
			facilities, err := client.FetchFacilities(ctx)
			if err != nil {
				return fmt.Errorf("fetch facilities: %w", err)
			}
			if err := crawl.SaveFacilityCache(cachePath, facilities); err != nil {
				return fmt.Errorf("write facility cache: %w", err)
			}
			logger.Info("Facility cache written", "path", cachePath, "facilities", len(facilities))
			return nil
		},
	}
	cmd.Flags().StringVar(&cachePath, "cache", crawl.DefaultCachePath, "Facility cache file")
	return cmd
}

// --------------------------------------------------------------------------
// schema command
// --------------------------------------------------------------------------

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create any missing database tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				if err := pool.EnsureSchema(ctx); err != nil {
					return err
				}
				logger.Info("Schema ensured")
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runDB handles config loading, DB connection, and context cancellation.
func runDB(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}
