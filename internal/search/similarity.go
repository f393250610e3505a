package search

import "strings"

// similarity scores how well a candidate result title matches the
// search query: an exact match scores highest, a substring match next,
// and anything else falls back to Jaccard similarity over word sets.
func similarity(query, candidate string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	c := strings.ToLower(strings.TrimSpace(candidate))

	if q == c {
		return 1.0
	}
	if q == "" || c == "" {
		return 0.0
	}
	if strings.Contains(c, q) {
		return 0.9
	}
	return jaccard(strings.Fields(q), strings.Fields(c))
}

func jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
