package notify

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/courtwatch/internal/crawl"
	"github.com/albapepper/courtwatch/internal/slot"
)

// Run executes one full cycle over a crawl pass: preload → evaluate →
// dispatch → flush. Each phase is its own transaction boundary; a crash
// between phases only repeats idempotent work on the next run.
//
// Delivery failures never block store writes: the snapshot and baseline
// flushes happen regardless of push outcomes, and a failed push leaves its
// slots unsent so the next cycle retries them naturally.
func Run(ctx context.Context, pool *pgxpool.Pool, sender Sender, res crawl.Result, logger *slog.Logger) (CycleResult, error) {
	start := time.Now()
	var result CycleResult
	result.Facilities = len(res.Availability)

	facilityIDs, dateKeys := observedKeys(res.Availability)
	logger.Info("Cycle preload", "facilities", len(facilityIDs), "dates", len(dateKeys))

	state, err := Preload(ctx, pool, facilityIDs, dateKeys)
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	plan := Evaluate(state, res, logger)
	result.SnapshotRows = len(plan.Snapshot)
	result.BaselineEvents = plan.BaselineEvents
	result.AddedPairs = plan.AddedPairs
	result.AddedSlots = plan.AddedSlots
	result.SkippedDates = plan.SkippedDates

	sentRows, pushOK, pushFailed := dispatch(ctx, sender, state.Endpoints, plan.Dispatches, logger)
	result.PushOK = pushOK
	result.PushFailed = pushFailed

	// Flush phase. Snapshot, baseline and sent-log writes are required;
	// the facilities cache is best-effort.
	now := time.Now().UTC()
	if err := FlushSnapshot(ctx, pool, plan.Snapshot, now); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}
	if err := FlushBaselines(ctx, pool, plan.Baselines); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}
	if err := FlushSent(ctx, pool, sentRows, now); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}
	if err := UpsertFacilities(ctx, pool, res.Facilities); err != nil {
		logger.Warn("facility cache upsert failed", "error", err)
		result.AddErrorf("facility cache upsert: %v", err)
	}

	result.Duration = time.Since(start)
	logger.Info("Cycle complete", "summary", result.Summary())
	return result, nil
}

// dispatch attempts every planned push. A failure is logged with enough
// context to correlate and leaves its slots out of the sent rows, so the
// next cycle retries them; it never stops the loop. Subscribers without a
// registered endpoint are skipped silently.
func dispatch(ctx context.Context, sender Sender, endpoints map[string]Endpoint, dispatches []Dispatch, logger *slog.Logger) (sent []SentRow, ok, failed int) {
	if sender == nil {
		if len(dispatches) > 0 {
			logger.Info("Push dispatch disabled, slots stay unsent", "dispatches", len(dispatches))
		}
		return nil, 0, 0
	}
	for _, d := range dispatches {
		ep, found := endpoints[d.UserID]
		if !found {
			continue
		}
		body := BuildBody(d.Label, slot.ShortDate(d.DateKey), d.Keys)
		if err := sender.Send(ctx, ep, pushTitle, body); err != nil {
			logger.Warn("push failed",
				"user_id", d.UserID, "scope", d.Scope, "date", d.DateKey, "error", err)
			failed++
			continue
		}
		ok++
		for _, k := range d.Keys {
			sent = append(sent, SentRow{
				UserID: d.UserID, Scope: d.Scope, DateKey: d.DateKey, SlotKey: k,
			})
		}
	}
	return sent, ok, failed
}

// observedKeys extracts the sorted facility ids and normalized date keys a
// crawl pass covers, scoping the preload queries.
func observedKeys(avail crawl.Availability) (facilityIDs, dateKeys []string) {
	dates := make(map[string]struct{})
	for fid, days := range avail {
		facilityIDs = append(facilityIDs, fid)
		for raw := range days {
			dk := slot.NormalizeDateKey(raw)
			if slot.ValidDateKey(dk) {
				dates[dk] = struct{}{}
			}
		}
	}
	for dk := range dates {
		dateKeys = append(dateKeys, dk)
	}
	sort.Strings(facilityIDs)
	sort.Strings(dateKeys)
	return facilityIDs, dateKeys
}
