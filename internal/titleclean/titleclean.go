// Package titleclean builds the search query actually sent to the
// remote platform from a raw home-automation media title: strip noise,
// collapse long titles to their salient terms, and optionally fold in
// the artist name.
package titleclean

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	maxTitleLength = 500
	maxQueryLength = 500
	longTitleCutoff = 100
)

var (
	emojiPattern        = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F1E0}-\x{1F1FF}\x{2702}-\x{27B0}\x{24C2}-\x{1F251}]+`)
	specialCharsPattern = regexp.MustCompile(`[^\w\s\-'"]+`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

var suffixesToRemove = []string{
	" (Official Video)", " (Official Audio)", " (Lyric Video)", " (Lyrics Video)",
	" (Audio)", " (Video)",
	" [Official Video]", " [Official Audio]", " [Lyric Video]", " [Audio]", " [Video]",
}

// eventKeywords is the closed list of phrases worth preserving when a
// long title is collapsed to its salient terms.
var eventKeywords = []string{
	"Super Bowl", "Halftime Show", "Concert", "Live", "Performance",
	"Awards", "Festival", "Tour", "Show",
}

// BuildSearchQuery runs the eight-step pipeline over a raw title and an
// optional artist name, producing the query string to send to the
// remote platform's search endpoint.
func BuildSearchQuery(title string, artist string) string {
	sanitized := sanitizeTitle(title)

	cleaned := cleanTitle(sanitized)
	cleaned = simplifyLongTitle(cleaned)
	query := whitespacePattern.ReplaceAllString(cleaned, " ")
	query = strings.TrimSpace(query)
	query = enhanceWithArtist(query, artist)

	if len(query) > maxQueryLength {
		query = truncateRunes(query, maxQueryLength)
	}
	return query
}

// sanitizeTitle implements step 1: NFC-normalize and truncate to 500
// runes. Truncation happens after normalization so a normalization
// attack cannot extend the effective length past the limit.
func sanitizeTitle(title string) string {
	normalized := norm.NFC.String(title)
	normalized = strings.TrimSpace(normalized)
	if utf8.RuneCountInString(normalized) > maxTitleLength {
		normalized = truncateRunes(normalized, maxTitleLength)
	}
	return normalized
}

// cleanTitle implements steps 2-4: strip emoji/special characters, keep
// only the leading pipe-delimited segment, and drop known noise
// suffixes.
func cleanTitle(title string) string {
	clean := emojiPattern.ReplaceAllString(title, "")
	clean = specialCharsPattern.ReplaceAllString(clean, " ")

	if strings.Contains(clean, "|") {
		parts := strings.Split(clean, "|")
		first := strings.TrimSpace(parts[0])
		if len(first) < 10 && len(parts) > 1 {
			clean = strings.TrimSpace(parts[0]) + " " + strings.TrimSpace(parts[1])
		} else {
			clean = first
		}
	}

	for _, suffix := range suffixesToRemove {
		if strings.HasSuffix(clean, suffix) {
			clean = strings.TrimSpace(clean[:len(clean)-len(suffix)])
			break
		}
	}

	return clean
}

// simplifyLongTitle implements step 5: for titles over 100 characters,
// extract an "Artist's ..." possessive name and any event-keyword
// phrases, replacing the title with just those salient terms.
func simplifyLongTitle(title string) string {
	if len(title) <= longTitleCutoff {
		return title
	}

	var parts []string
	if artist := extractPossessiveArtist(title); artist != "" {
		parts = append(parts, artist)
	}
	parts = append(parts, extractEventPhrases(title)...)

	if len(parts) == 0 {
		return title
	}
	return strings.Join(parts, " ")
}

func extractPossessiveArtist(title string) string {
	idx := strings.Index(title, "'s ")
	if idx < 0 {
		return ""
	}
	candidate := title[:idx]
	if len(candidate) < 30 {
		return candidate
	}
	return ""
}

func extractEventPhrases(title string) []string {
	words := strings.Fields(title)
	var phrases []string
	for _, keyword := range eventKeywords {
		keywordWords := strings.Fields(keyword)
		for i := range words {
			end := i + len(keywordWords)
			if end > len(words) {
				break
			}
			if strings.Contains(strings.Join(words[i:end], " "), keyword) {
				start := max(0, i-2)
				stop := min(len(words), end+2)
				phrases = append(phrases, strings.Join(words[start:stop], " "))
				break
			}
		}
	}
	return phrases
}

// enhanceWithArtist implements step 7: append the artist name if it is
// non-generic and not already present in the query.
func enhanceWithArtist(query, artist string) string {
	artist = strings.TrimSpace(artist)
	if artist == "" {
		return query
	}
	lower := strings.ToLower(artist)
	if lower == "youtube" || lower == "unknown" {
		return query
	}

	cleanArtist := emojiPattern.ReplaceAllString(artist, "")
	cleanArtist = specialCharsPattern.ReplaceAllString(cleanArtist, " ")
	cleanArtist = strings.TrimSpace(whitespacePattern.ReplaceAllString(cleanArtist, " "))
	if cleanArtist == "" {
		return query
	}

	if strings.Contains(strings.ToLower(query), strings.ToLower(cleanArtist)) {
		return query
	}

	return query + " " + cleanArtist
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
