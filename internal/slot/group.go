package slot

import "strings"

// Court-group derivation is a best-effort heuristic over free-text facility
// titles. Courts of one venue ("성사전천후코트", "성사실외코트") share a prefix
// once bracketed annotations and the trailing category marker are stripped;
// grouping them lets a single subscription cover the whole venue. A title
// the heuristic cannot reduce falls back to itself, so ungrouped facilities
// become singleton groups rather than disappearing.

// Category suffixes stripped from the end of a facility title.
var categorySuffixes = []string{"테니스장", "코트", "경기장", "체육관"}

// SourceOf returns the source namespace of a FacilityId, the part before
// the first ":". Empty when the id carries no namespace.
func SourceOf(facilityID string) string {
	if i := strings.Index(facilityID, ":"); i > 0 {
		return facilityID[:i]
	}
	return ""
}

// CourtGroup derives the group name for a facility: bracketed tags removed,
// trailing category suffix removed, prefixed by the id's source namespace.
func CourtGroup(facilityID, title string) string {
	name := stripBrackets(title)
	name = stripCategorySuffix(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		name = strings.TrimSpace(title)
	}
	if src := SourceOf(facilityID); src != "" {
		return src + ":" + name
	}
	return name
}

// stripBrackets removes (...) and [...] annotations, including the
// full-width variants Korean facility titles use.
func stripBrackets(s string) string {
	pairs := [][2]rune{{'(', ')'}, {'[', ']'}, {'（', '）'}, {'〔', '〕'}}
	var b strings.Builder
	depth := 0
	for _, r := range s {
		opened := false
		for _, p := range pairs {
			if r == p[0] {
				depth++
				opened = true
				break
			}
			if r == p[1] {
				if depth > 0 {
					depth--
				}
				opened = true
				break
			}
		}
		if opened {
			continue
		}
		if depth == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripCategorySuffix drops a trailing category marker and any court number
// glued to it ("성라코트" → "성라", "대화 테니스장" → "대화",
// "토당코트 3" → "토당").
func stripCategorySuffix(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "0123456789 ")
	for _, suffix := range categorySuffixes {
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
			return strings.TrimSpace(strings.TrimSuffix(s, suffix))
		}
	}
	return s
}
