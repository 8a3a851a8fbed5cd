package notify

import (
	"strings"

	"github.com/albapepper/courtwatch/internal/crawl"
	"github.com/albapepper/courtwatch/internal/slot"
)

// Matcher resolves a subscription scope to concrete FacilityIds: an exact
// FacilityId match, or every facility whose derived court group equals the
// scope. Built fresh each cycle because facility titles can change; never
// persisted.
type Matcher struct {
	facilities map[string]crawl.Facility
	groups     map[string][]string // court group → facility ids
	groupOf    map[string]string   // facility id → court group
}

// NewMatcher builds the court-group index for one cycle.
func NewMatcher(facilities map[string]crawl.Facility) *Matcher {
	m := &Matcher{
		facilities: facilities,
		groups:     make(map[string][]string, len(facilities)),
		groupOf:    make(map[string]string, len(facilities)),
	}
	for id, f := range facilities {
		group := slot.CourtGroup(id, f.Title)
		m.groups[group] = append(m.groups[group], id)
		m.groupOf[id] = group
	}
	return m
}

// Resolve returns the FacilityIds a scope covers. Unknown scopes resolve to
// the scope itself: a subscription can reference a facility the current
// crawl pass did not observe, and its slice of availability is then empty.
func (m *Matcher) Resolve(scope string) []string {
	if _, ok := m.facilities[scope]; ok {
		return []string{scope}
	}
	if ids, ok := m.groups[scope]; ok {
		return ids
	}
	return []string{scope}
}

// Label returns the human-readable name for a scope: the facility title for
// an exact id, the group name without its namespace prefix for a court
// group, the scope verbatim otherwise.
func (m *Matcher) Label(scope string) string {
	if f, ok := m.facilities[scope]; ok && f.Title != "" {
		return f.Title
	}
	if _, ok := m.groups[scope]; ok {
		if i := strings.Index(scope, ":"); i >= 0 {
			return scope[i+1:]
		}
	}
	return scope
}

// Group returns the derived court group for a facility id, or the id itself
// when the facility is unknown.
func (m *Matcher) Group(facilityID string) string {
	if g, ok := m.groupOf[facilityID]; ok {
		return g
	}
	return facilityID
}
