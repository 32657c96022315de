package domain

// Matcher holds a normalized query composition. Main slots match positionally
// and exactly; special slots match as a set, so the non-empty query specials
// must be a subset of the record's two specials. Empty query slots are
// wildcards.
type Matcher struct {
	main     [MainSlots]string
	specials []string
}

// NewMatcher normalizes query once. Callers reject an all-empty query before
// building a matcher; an empty matcher matches every record.
func NewMatcher(query Composition) Matcher {
	q := NormalizeComposition(query)
	var m Matcher
	copy(m.main[:], q[:MainSlots])
	for _, s := range q[MainSlots:] {
		if s != "" {
			m.specials = append(m.specials, s)
		}
	}
	return m
}

// Empty reports whether every query slot normalized to "".
func (m Matcher) Empty() bool {
	for _, s := range m.main {
		if s != "" {
			return false
		}
	}
	return len(m.specials) == 0
}

// Matches compares the query against the six characters of side in rec.
func (m Matcher) Matches(rec BattleRecord, side Side) bool {
	chars := rec.Team(side).Characters
	for i, want := range m.main {
		if want != "" && Normalize(chars[i]) != want {
			return false
		}
	}
	if len(m.specials) == 0 {
		return true
	}
	sp1 := Normalize(chars[MainSlots])
	sp2 := Normalize(chars[MainSlots+1])
	for _, want := range m.specials {
		if want != sp1 && want != sp2 {
			return false
		}
	}
	return true
}
