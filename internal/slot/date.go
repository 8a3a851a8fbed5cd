package slot

import (
	"strings"
	"time"
)

// DateKey layout: YYYYMMDD, no separators. All internal comparisons use
// this form; external "YYYY-MM-DD" style inputs are normalized first.
const dateKeyLen = 8

// NormalizeDateKey strips common separators and returns the 8-character
// DateKey form. It does not validate calendar semantics.
func NormalizeDateKey(s string) string {
	r := strings.NewReplacer("-", "", "/", "", ".", "")
	return strings.TrimSpace(r.Replace(s))
}

// ValidDateKey reports whether s is a well-formed DateKey after
// normalization: exactly 8 digits.
func ValidDateKey(s string) bool {
	if len(s) != dateKeyLen {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// DateKeyOf formats t as a DateKey.
func DateKeyOf(t time.Time) string {
	return t.Format("20060102")
}

// ShortDate renders a DateKey as "MM/DD" for notification bodies.
// Malformed keys are returned unchanged.
func ShortDate(dateKey string) string {
	if !ValidDateKey(dateKey) {
		return dateKey
	}
	return dateKey[4:6] + "/" + dateKey[6:8]
}
