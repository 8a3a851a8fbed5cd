package notify

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/courtwatch/internal/crawl"
	"github.com/albapepper/courtwatch/internal/slot"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func labels(keys ...string) []slot.Slot {
	out := make([]slot.Slot, len(keys))
	for i, k := range keys {
		out[i] = slot.Slot{Kind: slot.KindLabel, Label: k}
	}
	return out
}

func set(keys ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}

func emptyState() *State {
	return &State{
		Endpoints: map[string]Endpoint{},
		Snapshot:  map[FacilityDate]map[string]struct{}{},
		Baselines: map[SubKey]map[string]struct{}{},
		Sent:      map[SubKey]map[string]struct{}{},
	}
}

func oneFacility(fid, title string, dateKey string, keys ...string) crawl.Result {
	return crawl.Result{
		Facilities: map[string]crawl.Facility{fid: {ID: fid, Title: title}},
		Availability: crawl.Availability{
			fid: {dateKey: labels(keys...)},
		},
	}
}

func TestBaselineEstablishedOnFirstSightNoNotification(t *testing.T) {
	state := emptyState()
	state.Subscriptions = []Subscription{{ID: 1, UserID: "u1", Scope: "src:1", DateKey: "20250301"}}

	res := oneFacility("src:1", "코트", "20250301", "10:00~12:00", "14:00~16:00")
	plan := Evaluate(state, res, testLogger)

	assert.Empty(t, plan.Dispatches)
	assert.Equal(t, 1, plan.BaselineEvents)
	assert.Len(t, plan.Baselines, 2)
	for _, b := range plan.Baselines {
		assert.Equal(t, "u1", b.UserID)
		assert.Equal(t, "src:1", b.Scope)
		assert.Equal(t, "20250301", b.DateKey)
	}
}

func TestBaselineSuppressionHoldsOnIdenticalCycle(t *testing.T) {
	state := emptyState()
	state.Subscriptions = []Subscription{{ID: 1, UserID: "u1", Scope: "src:1", DateKey: "20250301"}}
	state.Baselines[SubKey{"u1", "src:1", "20250301"}] = set("10:00~12:00", "14:00~16:00")
	state.Snapshot[FacilityDate{"src:1", "20250301"}] = set("10:00~12:00", "14:00~16:00")

	res := oneFacility("src:1", "코트", "20250301", "10:00~12:00", "14:00~16:00")
	plan := Evaluate(state, res, testLogger)

	assert.Empty(t, plan.Dispatches)
	assert.Zero(t, plan.BaselineEvents)
	assert.Zero(t, plan.AddedSlots)
	// Snapshot rows still flush so last_seen refreshes.
	assert.Len(t, plan.Snapshot, 2)
}

func TestNoBaselineOnEmptyAvailability(t *testing.T) {
	state := emptyState()
	state.Subscriptions = []Subscription{{ID: 1, UserID: "u1", Scope: "src:1", DateKey: "20250301"}}

	plan := Evaluate(state, crawl.Result{}, testLogger)
	assert.Empty(t, plan.Baselines)
	assert.Zero(t, plan.BaselineEvents)
	assert.Empty(t, plan.Dispatches)
}

func TestNewSlotDispatchedOnce(t *testing.T) {
	state := emptyState()
	state.Subscriptions = []Subscription{{ID: 1, UserID: "u1", Scope: "src:1", DateKey: "20250301"}}
	state.Baselines[SubKey{"u1", "src:1", "20250301"}] = set("10:00~12:00")

	res := oneFacility("src:1", "코트", "20250301", "10:00~12:00", "19:00~21:00")
	plan := Evaluate(state, res, testLogger)

	require.Len(t, plan.Dispatches, 1)
	assert.Equal(t, []string{"19:00~21:00"}, plan.Dispatches[0].Keys)

	// Next cycle: slot is in the sent log, identical availability.
	state.Sent[SubKey{"u1", "src:1", "20250301"}] = set("19:00~21:00")
	plan = Evaluate(state, res, testLogger)
	assert.Empty(t, plan.Dispatches)
}

func TestIdempotentRerunWithIdenticalState(t *testing.T) {
	state := emptyState()
	state.Subscriptions = []Subscription{{ID: 1, UserID: "u1", Scope: "src:1", DateKey: "20250301"}}
	state.Baselines[SubKey{"u1", "src:1", "20250301"}] = set("10:00~12:00")
	state.Snapshot[FacilityDate{"src:1", "20250301"}] = set("10:00~12:00")

	res := oneFacility("src:1", "코트", "20250301", "10:00~12:00")

	p1 := Evaluate(state, res, testLogger)
	p2 := Evaluate(state, res, testLogger)
	assert.Equal(t, p1, p2)
	assert.Empty(t, p2.Dispatches)
	assert.Empty(t, p2.Baselines)
	assert.Zero(t, p2.AddedSlots)
}

func TestSubscriptionLocalBaselines(t *testing.T) {
	// Two subscribers watching the same scope, created at different times:
	// different baselines, different notification histories.
	state := emptyState()
	state.Subscriptions = []Subscription{
		{ID: 1, UserID: "early", Scope: "src:1", DateKey: "20250301"},
		{ID: 2, UserID: "late", Scope: "src:1", DateKey: "20250301"},
	}
	state.Baselines[SubKey{"early", "src:1", "20250301"}] = set("10:00~12:00")
	state.Baselines[SubKey{"late", "src:1", "20250301"}] = set("10:00~12:00", "14:00~16:00")

	res := oneFacility("src:1", "코트", "20250301", "10:00~12:00", "14:00~16:00")
	plan := Evaluate(state, res, testLogger)

	require.Len(t, plan.Dispatches, 1)
	assert.Equal(t, "early", plan.Dispatches[0].UserID)
	assert.Equal(t, []string{"14:00~16:00"}, plan.Dispatches[0].Keys)
}

func TestCourtGroupScopeUnionsFacilities(t *testing.T) {
	// Two facilities that are courts of one venue share a derived group;
	// a single group-scoped subscription sees the union of their slots.
	require.Equal(t, "gy:토당", slot.CourtGroup("gy:9a", "토당코트 1"))
	require.Equal(t, "gy:토당", slot.CourtGroup("gy:9b", "토당코트 2"))

	state := emptyState()
	state.Subscriptions = []Subscription{{ID: 1, UserID: "u1", Scope: "gy:토당", DateKey: "20250301"}}
	state.Baselines[SubKey{"u1", "gy:토당", "20250301"}] = set("06:00~08:00")

	res := crawl.Result{
		Facilities: map[string]crawl.Facility{
			"gy:9a": {ID: "gy:9a", Title: "토당코트 1"},
			"gy:9b": {ID: "gy:9b", Title: "토당코트 2"},
		},
		Availability: crawl.Availability{
			"gy:9a": {"20250301": labels("06:00~08:00")},
			"gy:9b": {"20250301": labels("20:00~22:00")},
		},
	}
	plan := Evaluate(state, res, testLogger)
	require.Len(t, plan.Dispatches, 1)
	d := plan.Dispatches[0]
	assert.Equal(t, []string{"20:00~22:00"}, d.Keys)
	// Group label drops the namespace prefix.
	assert.Equal(t, "토당", d.Label)
}

func TestMalformedDateKeySkipsDayNotCycle(t *testing.T) {
	state := emptyState()
	res := crawl.Result{
		Availability: crawl.Availability{
			"src:1": {
				"2025-03-01": labels("10:00~12:00"), // normalizes fine
				"bogus":      labels("14:00~16:00"), // skipped
			},
		},
	}
	plan := Evaluate(state, res, testLogger)
	assert.Equal(t, 1, plan.SkippedDates)
	require.Len(t, plan.Snapshot, 1)
	assert.Equal(t, "20250301", plan.Snapshot[0].DateKey)
}

func TestEmptySlotKeysDroppedBeforeSets(t *testing.T) {
	state := emptyState()
	state.Subscriptions = []Subscription{{ID: 1, UserID: "u1", Scope: "src:1", DateKey: "20250301"}}
	state.Baselines[SubKey{"u1", "src:1", "20250301"}] = set()

	res := crawl.Result{
		Facilities: map[string]crawl.Facility{"src:1": {ID: "src:1", Title: "코트"}},
		Availability: crawl.Availability{
			"src:1": {"20250301": {
				{Kind: slot.KindStructured, Court: "3"}, // no time field → dropped
				{Kind: slot.KindLabel, Label: "  "},     // empty → dropped
				{Kind: slot.KindLabel, Label: "10:00~12:00"},
			}},
		},
	}
	plan := Evaluate(state, res, testLogger)
	require.Len(t, plan.Snapshot, 1)
	require.Len(t, plan.Dispatches, 1)
	assert.Equal(t, []string{"10:00~12:00"}, plan.Dispatches[0].Keys)
}

func TestDuplicateSubscriptionRowsCollapse(t *testing.T) {
	state := emptyState()
	state.Subscriptions = []Subscription{
		{ID: 1, UserID: "u1", Scope: "src:1", DateKey: "20250301"},
		{ID: 2, UserID: "u1", Scope: "src:1", DateKey: "20250301"},
	}
	state.Baselines[SubKey{"u1", "src:1", "20250301"}] = set()

	res := oneFacility("src:1", "코트", "20250301", "10:00~12:00")
	plan := Evaluate(state, res, testLogger)
	assert.Len(t, plan.Dispatches, 1)
}

func TestDispatchKeysSorted(t *testing.T) {
	state := emptyState()
	state.Subscriptions = []Subscription{{ID: 1, UserID: "u1", Scope: "src:1", DateKey: "20250301"}}
	state.Baselines[SubKey{"u1", "src:1", "20250301"}] = set()

	res := oneFacility("src:1", "코트", "20250301", "19:00~21:00", "06:00~08:00", "10:00~12:00")
	plan := Evaluate(state, res, testLogger)
	require.Len(t, plan.Dispatches, 1)
	assert.Equal(t, []string{"06:00~08:00", "10:00~12:00", "19:00~21:00"}, plan.Dispatches[0].Keys)
}

func TestEndToEndScenario(t *testing.T) {
	const fid, dk = "src:1", "20250301"
	state := emptyState()

	// Cycle 1: availability exists, no subscriptions yet.
	res := oneFacility(fid, "코트", dk, "10:00~12:00")
	plan := Evaluate(state, res, testLogger)
	assert.Empty(t, plan.Baselines)
	assert.Empty(t, plan.Dispatches)
	require.Len(t, plan.Snapshot, 1)
	applySnapshot(state, plan)

	// Subscription created between cycles.
	state.Subscriptions = []Subscription{{ID: 1, UserID: "u1", Scope: fid, DateKey: dk}}

	// Cycle 2: first evaluation with an active subscription → baseline, no push.
	res = oneFacility(fid, "코트", dk, "10:00~12:00", "14:00~16:00")
	plan = Evaluate(state, res, testLogger)
	assert.Equal(t, 1, plan.BaselineEvents)
	assert.Len(t, plan.Baselines, 2)
	assert.Empty(t, plan.Dispatches)
	applySnapshot(state, plan)
	applyBaselines(state, plan)

	// Cycle 3: one genuinely new slot → exactly one dispatch.
	res = oneFacility(fid, "코트", dk, "10:00~12:00", "14:00~16:00", "18:00~20:00")
	plan = Evaluate(state, res, testLogger)
	require.Len(t, plan.Dispatches, 1)
	assert.Equal(t, []string{"18:00~20:00"}, plan.Dispatches[0].Keys)
	applySnapshot(state, plan)
	state.Sent[SubKey{"u1", fid, dk}] = set("18:00~20:00")

	// Cycle 4: identical availability → silence.
	plan = Evaluate(state, res, testLogger)
	assert.Empty(t, plan.Dispatches)
	assert.Zero(t, plan.BaselineEvents)
}

func applySnapshot(state *State, plan Plan) {
	for _, r := range plan.Snapshot {
		fd := FacilityDate{r.FacilityID, r.DateKey}
		if state.Snapshot[fd] == nil {
			state.Snapshot[fd] = make(map[string]struct{})
		}
		state.Snapshot[fd][r.SlotKey] = struct{}{}
	}
}

func applyBaselines(state *State, plan Plan) {
	for _, r := range plan.Baselines {
		k := SubKey{r.UserID, r.Scope, r.DateKey}
		if state.Baselines[k] == nil {
			state.Baselines[k] = make(map[string]struct{})
		}
		state.Baselines[k][r.SlotKey] = struct{}{}
	}
}
