// Package slot provides the canonical key derivations the diff engine runs
// on: SlotKey from the heterogeneous slot shapes crawlers emit, 8-character
// DateKey normalization, and court-group names derived from facility titles.
//
// Everything here is pure. Derivation never fails: unusable input maps to an
// empty key, which callers drop before set construction.
package slot

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Delimiter joins the time label and court identifier in a SlotKey.
const Delimiter = "|"

// Kind discriminates the two slot representations crawlers produce.
type Kind int

const (
	// KindLabel is a plain time-range string, e.g. "19:00~21:00".
	KindLabel Kind = iota
	// KindStructured is a record with time and optional court fields.
	KindStructured
)

// Slot is one reservable window as reported by a crawler. Either a plain
// label or a structured record; Key folds both into the canonical SlotKey.
type Slot struct {
	Kind  Kind
	Label string
	Time  string
	Court string
}

// Key returns the canonical SlotKey: "<time>|<court>" when a court
// identifier exists, "<time>" otherwise, "" when no usable time is present.
func (s Slot) Key() string {
	switch s.Kind {
	case KindStructured:
		t := strings.TrimSpace(s.Time)
		if t == "" {
			return ""
		}
		c := strings.TrimSpace(s.Court)
		if c == "" {
			return t
		}
		return t + Delimiter + c
	default:
		return strings.TrimSpace(s.Label)
	}
}

// Field synonyms observed across crawler variants.
var (
	timeKeys  = []string{"time", "startTime", "start_time", "stime", "label", "slotKey", "timeContent"}
	courtKeys = []string{"court", "courtNo", "court_no", "courtName", "court_name"}
)

// FromAny converts any crawler-shaped value into a Slot. Total: never
// panics, never errors. Strings become plain labels; maps are probed for
// the recognized time/court field synonyms; other scalars are stringified.
func FromAny(v any) Slot {
	switch t := v.(type) {
	case nil:
		return Slot{Kind: KindLabel}
	case string:
		return Slot{Kind: KindLabel, Label: strings.TrimSpace(t)}
	case Slot:
		return t
	case map[string]any:
		return Slot{
			Kind:  KindStructured,
			Time:  pickField(t, timeKeys),
			Court: pickField(t, courtKeys),
		}
	default:
		return Slot{Kind: KindLabel, Label: strings.TrimSpace(fmt.Sprint(t))}
	}
}

// Key derives the SlotKey for any crawler-shaped value in one step.
func Key(v any) string {
	return FromAny(v).Key()
}

// pickField returns the first nonempty value among the synonym keys.
// A nested map (seen when a crawler wraps the time field again) is probed
// one level deep for its own time/label value.
func pickField(m map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if inner, ok := v.(map[string]any); ok {
			if s := pickField(inner, []string{"time", "label"}); s != "" {
				return s
			}
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return ""
}

// UnmarshalJSON accepts any of the wire shapes crawlers produce: a JSON
// string, an object with synonym keys, or a bare scalar. An undecodable
// value yields an unusable slot rather than failing the whole document.
func (s *Slot) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		*s = Slot{Kind: KindLabel}
		return nil
	}
	*s = FromAny(v)
	return nil
}
