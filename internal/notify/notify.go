// Package notify implements the availability-diff and notification-dispatch
// engine: given one crawl pass, it determines which slots are new relative
// to each subscription's baseline, deduplicates against the sent log, and
// dispatches web-push notifications exactly once per new slot.
//
// Pipeline: preload stores → evaluate diff → dispatch pushes → bulk flush.
// Evaluation is a pure function of the preloaded state, so a cycle is safe
// to re-run: identical input yields an empty added set and no writes beyond
// last-seen refreshes.
package notify

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// previewLimit caps how many slot keys a notification body lists.
	previewLimit = 6

	pushTitle = "🎾 예약 오픈"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Subscription is one enabled watch: a subscriber, a scope (FacilityId or
// court-group name), and a date.
type Subscription struct {
	ID      int64
	UserID  string
	Scope   string
	DateKey string
}

// Key returns the subscription-local identity baselines and sent records
// are scoped by.
func (s Subscription) Key() SubKey {
	return SubKey{UserID: s.UserID, Scope: s.Scope, DateKey: s.DateKey}
}

// SubKey identifies a (subscriber, scope, date) triple.
type SubKey struct {
	UserID  string
	Scope   string
	DateKey string
}

// Endpoint is a subscriber's web-push delivery target.
type Endpoint struct {
	UserID   string
	Endpoint string
	P256dh   string
	Auth     string
}

// State is everything a cycle reads, snapshotted before evaluation begins.
// Evaluate never queries; the result of a cycle is a pure function of this
// value plus the crawl output.
type State struct {
	Subscriptions []Subscription
	Endpoints     map[string]Endpoint
	// Snapshot: (facility, date) → slot keys ever seen.
	Snapshot map[FacilityDate]map[string]struct{}
	// Baselines: subscription-local already-known sets. A missing entry
	// means the subscription has never been evaluated against nonempty
	// availability.
	Baselines map[SubKey]map[string]struct{}
	// Sent: subscription-local keys already notified.
	Sent map[SubKey]map[string]struct{}
}

// FacilityDate keys the snapshot store.
type FacilityDate struct {
	FacilityID string
	DateKey    string
}

// SnapshotRow is one observed (facility, date, slot) for the bulk upsert.
type SnapshotRow struct {
	FacilityID string
	DateKey    string
	SlotKey    string
}

// BaselineRow is one baseline-establishment insert.
type BaselineRow struct {
	UserID  string
	Scope   string
	DateKey string
	SlotKey string
}

// SentRow is one delivered (subscriber, scope, date, slot) for the dedup log.
type SentRow struct {
	UserID  string
	Scope   string
	DateKey string
	SlotKey string
}

// Dispatch is one notification to attempt: the sorted new slot keys for one
// subscription, plus the human-readable scope label for the message body.
type Dispatch struct {
	UserID  string
	Scope   string
	Label   string
	DateKey string
	Keys    []string
}

// Plan is the full side-effect set one evaluation produces. Dispatches are
// attempted first; rows flush at end of cycle regardless of push outcomes.
type Plan struct {
	Snapshot       []SnapshotRow
	Baselines      []BaselineRow
	BaselineEvents int
	Dispatches     []Dispatch

	// Cycle statistics against the global snapshot, for the summary line.
	AddedPairs   int
	AddedSlots   int
	SkippedDates int
}

// CycleResult tracks one full refresh cycle.
type CycleResult struct {
	Facilities     int
	SnapshotRows   int
	BaselineEvents int
	AddedPairs     int
	AddedSlots     int
	PushOK         int
	PushFailed     int
	SkippedDates   int
	Duration       time.Duration
	Errors         []string
}

// AddErrorf records a formatted error message.
func (r *CycleResult) AddErrorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the cycle.
func (r *CycleResult) Summary() string {
	return fmt.Sprintf(
		"facilities=%d snapshot=%d baselines=%d added_pairs=%d added_slots=%d push_ok=%d push_failed=%d skipped_dates=%d errors=%d dur=%s",
		r.Facilities, r.SnapshotRows, r.BaselineEvents,
		r.AddedPairs, r.AddedSlots, r.PushOK, r.PushFailed,
		r.SkippedDates, len(r.Errors), r.Duration.Round(time.Millisecond))
}

// --------------------------------------------------------------------------
// Message formatting
// --------------------------------------------------------------------------

// BuildBody renders the notification body: scope label, short date, and the
// slot preview (first 6 keys joined by ", ", then " 외 N개" when more exist).
// keys must already be sorted.
func BuildBody(label, shortDate string, keys []string) string {
	preview := keys
	more := ""
	if len(keys) > previewLimit {
		preview = keys[:previewLimit]
		more = fmt.Sprintf(" 외 %d개", len(keys)-previewLimit)
	}
	return fmt.Sprintf("%s %s 신규 슬롯: %s%s", label, shortDate, strings.Join(preview, ", "), more)
}
