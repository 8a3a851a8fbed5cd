// Package crawl defines the contract between site crawlers and the diff
// engine: facility metadata, per-day availability keyed by FacilityId and
// DateKey, and the Fetcher interface the ingestion harness drives.
//
// Site-specific scraping (HTML parsing, login sessions) lives outside this
// repository; implementations here only speak the structured wire shape.
package crawl

import (
	"context"
	"fmt"
	"strings"

	"github.com/albapepper/courtwatch/internal/slot"
)

// Facility is the metadata the engine keeps for a bookable venue or court.
type Facility struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Location string `json:"location,omitempty"`
}

// Availability maps FacilityId → DateKey → open slots for one crawl pass.
type Availability map[string]map[string][]slot.Slot

// Result is the full output of a crawl pass.
type Result struct {
	Facilities   map[string]Facility `json:"facilities"`
	Availability Availability        `json:"availability"`
}

// Merge folds another crawl result into r, facility by facility. Later
// sources win on facility metadata collisions; availability lists append.
func (r *Result) Merge(other Result) {
	if r.Facilities == nil {
		r.Facilities = make(map[string]Facility)
	}
	if r.Availability == nil {
		r.Availability = make(Availability)
	}
	for id, f := range other.Facilities {
		r.Facilities[id] = f
	}
	for id, days := range other.Availability {
		dst := r.Availability[id]
		if dst == nil {
			dst = make(map[string][]slot.Slot)
			r.Availability[id] = dst
		}
		for dk, slots := range days {
			dst[dk] = append(dst[dk], slots...)
		}
	}
}

// Fetcher retrieves the open slots for one (facility, date) pair. Returning
// an empty list is a successful fetch: the day simply has no open slots.
type Fetcher interface {
	FetchDay(ctx context.Context, facilityID, dateKey string) ([]slot.Slot, error)
}

// Source selects which crawl targets a run covers. Replaces the env-flag
// global the earlier scripts used; callers pass it explicitly.
type Source string

const (
	SourceGytennis Source = "gytennis"
	SourceDaehwa   Source = "daehwa"
	SourceAll      Source = "all"
)

// ParseSource validates a source name from configuration.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceGytennis, SourceDaehwa, SourceAll:
		return Source(s), nil
	case "":
		return SourceAll, nil
	}
	return "", fmt.Errorf("unknown crawl source %q", s)
}

// Covers reports whether a FacilityId belongs to this source selection,
// judged by the namespace segments of the id.
func (s Source) Covers(facilityID string) bool {
	if s == SourceAll {
		return true
	}
	for _, seg := range strings.Split(facilityID, ":") {
		if seg == string(s) {
			return true
		}
	}
	return false
}
