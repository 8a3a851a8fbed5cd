package notify

import (
	"log/slog"
	"sort"

	"github.com/albapepper/courtwatch/internal/crawl"
	"github.com/albapepper/courtwatch/internal/slot"
)

// Evaluate computes the full side-effect plan for one cycle. Pure over the
// preloaded state and the crawl output: no queries, no clock, no dispatch.
//
// Per subscription (scope, date):
//  1. resolve the scope to concrete facility ids,
//  2. union the current slot keys across them,
//  3. no baseline yet → persist current as the baseline, notify nothing
//     (a subscriber must not be flooded with state that predates the watch),
//  4. otherwise added = current − baseline, then filtered through the sent
//     log; whatever survives is handed to the dispatcher, sorted.
func Evaluate(state *State, res crawl.Result, logger *slog.Logger) Plan {
	var plan Plan

	current := normalize(res.Availability, &plan, logger)

	// Every observed key lands in the snapshot; conflicts only refresh
	// last-seen. Facility-level added counts come from the global snapshot
	// and feed the summary, not the notification decision.
	for fd, keys := range current {
		old := state.Snapshot[fd]
		added := 0
		for k := range keys {
			plan.Snapshot = append(plan.Snapshot, SnapshotRow{FacilityID: fd.FacilityID, DateKey: fd.DateKey, SlotKey: k})
			if _, seen := old[k]; !seen {
				added++
			}
		}
		if added > 0 && len(old) > 0 {
			plan.AddedPairs++
			plan.AddedSlots += added
			logger.Debug("facility diff", "facility_id", fd.FacilityID, "date", fd.DateKey,
				"old", len(old), "new", len(keys), "added", added)
		}
	}

	matcher := NewMatcher(res.Facilities)

	// Duplicate subscription rows for the same (user, scope, date) collapse
	// to one evaluation; the sent log is keyed the same way, so evaluating
	// twice in one cycle would double-send.
	evaluated := make(map[SubKey]struct{}, len(state.Subscriptions))

	for _, sub := range state.Subscriptions {
		dateKey := slot.NormalizeDateKey(sub.DateKey)
		if !slot.ValidDateKey(dateKey) {
			logger.Warn("subscription has malformed date, skipping",
				"subscription_id", sub.ID, "date", sub.DateKey)
			continue
		}
		if _, done := evaluated[SubKey{UserID: sub.UserID, Scope: sub.Scope, DateKey: dateKey}]; done {
			continue
		}
		evaluated[SubKey{UserID: sub.UserID, Scope: sub.Scope, DateKey: dateKey}] = struct{}{}

		cur := make(map[string]struct{})
		for _, fid := range matcher.Resolve(sub.Scope) {
			for k := range current[FacilityDate{FacilityID: fid, DateKey: dateKey}] {
				cur[k] = struct{}{}
			}
		}

		subKey := SubKey{UserID: sub.UserID, Scope: sub.Scope, DateKey: dateKey}
		baseline, hasBaseline := state.Baselines[subKey]

		if !hasBaseline {
			// First sight: current state becomes the baseline, nothing fires.
			if len(cur) == 0 {
				continue
			}
			for k := range cur {
				plan.Baselines = append(plan.Baselines, BaselineRow{
					UserID: sub.UserID, Scope: sub.Scope, DateKey: dateKey, SlotKey: k,
				})
			}
			plan.BaselineEvents++
			continue
		}

		var added []string
		for k := range cur {
			if _, known := baseline[k]; !known {
				added = append(added, k)
			}
		}
		if len(added) == 0 {
			continue
		}

		sent := state.Sent[subKey]
		toSend := added[:0]
		for _, k := range added {
			if _, done := sent[k]; !done {
				toSend = append(toSend, k)
			}
		}
		if len(toSend) == 0 {
			continue
		}
		sort.Strings(toSend)

		plan.Dispatches = append(plan.Dispatches, Dispatch{
			UserID:  sub.UserID,
			Scope:   sub.Scope,
			Label:   matcher.Label(sub.Scope),
			DateKey: dateKey,
			Keys:    toSend,
		})
	}

	// Deterministic flush and dispatch order.
	sort.Slice(plan.Snapshot, func(i, j int) bool {
		a, b := plan.Snapshot[i], plan.Snapshot[j]
		if a.FacilityID != b.FacilityID {
			return a.FacilityID < b.FacilityID
		}
		if a.DateKey != b.DateKey {
			return a.DateKey < b.DateKey
		}
		return a.SlotKey < b.SlotKey
	})
	sort.Slice(plan.Baselines, func(i, j int) bool {
		a, b := plan.Baselines[i], plan.Baselines[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		if a.DateKey != b.DateKey {
			return a.DateKey < b.DateKey
		}
		return a.SlotKey < b.SlotKey
	})

	return plan
}

// normalize folds the crawl output into canonical key sets per (facility,
// date). Malformed date keys skip the whole day; empty slot keys are
// dropped before set construction.
func normalize(avail crawl.Availability, plan *Plan, logger *slog.Logger) map[FacilityDate]map[string]struct{} {
	out := make(map[FacilityDate]map[string]struct{})
	for fid, days := range avail {
		for rawDate, slots := range days {
			dateKey := slot.NormalizeDateKey(rawDate)
			if !slot.ValidDateKey(dateKey) {
				plan.SkippedDates++
				logger.Warn("malformed date key, skipping day", "facility_id", fid, "date", rawDate)
				continue
			}
			fd := FacilityDate{FacilityID: fid, DateKey: dateKey}
			for _, s := range slots {
				key := s.Key()
				if key == "" {
					continue
				}
				set := out[fd]
				if set == nil {
					set = make(map[string]struct{})
					out[fd] = set
				}
				set[key] = struct{}{}
			}
		}
	}
	return out
}
