package titleclean

import (
	"strings"
	"testing"
)

func TestBuildSearchQuery_RemovesSuffixAndNoise(t *testing.T) {
	got := BuildSearchQuery("Yesterday (Official Video) 🎸🔥", "")
	if got != "Yesterday" {
		t.Errorf("BuildSearchQuery() = %q, want %q", got, "Yesterday")
	}
}

func TestBuildSearchQuery_PipeSplitsOnFirstSegment(t *testing.T) {
	got := BuildSearchQuery("Song Title | Additional Info About The Video", "")
	if got != "Song Title" {
		t.Errorf("BuildSearchQuery() = %q, want %q", got, "Song Title")
	}
}

func TestBuildSearchQuery_ShortFirstSegmentKeepsSecond(t *testing.T) {
	got := BuildSearchQuery("Hi | actually the real title here", "")
	if !strings.Contains(got, "actually the real title here") {
		t.Errorf("BuildSearchQuery() = %q, want second segment retained", got)
	}
}

func TestBuildSearchQuery_AppendsNonGenericArtist(t *testing.T) {
	got := BuildSearchQuery("Flowers", "Miley Cyrus")
	if got != "Flowers Miley Cyrus" {
		t.Errorf("BuildSearchQuery() = %q, want %q", got, "Flowers Miley Cyrus")
	}
}

func TestBuildSearchQuery_SkipsGenericArtist(t *testing.T) {
	for _, artist := range []string{"YouTube", "Unknown", "", "  "} {
		got := BuildSearchQuery("Flowers", artist)
		if got != "Flowers" {
			t.Errorf("BuildSearchQuery(artist=%q) = %q, want %q", artist, got, "Flowers")
		}
	}
}

func TestBuildSearchQuery_SkipsArtistAlreadyInQuery(t *testing.T) {
	got := BuildSearchQuery("The Verve - Bittersweet Symphony", "The Verve")
	if strings.Count(strings.ToLower(got), "the verve") != 1 {
		t.Errorf("BuildSearchQuery() = %q, artist should not be duplicated", got)
	}
}

func TestBuildSearchQuery_TruncatesLongTitle(t *testing.T) {
	long := strings.Repeat("a", 600)
	got := BuildSearchQuery(long, "")
	if len([]rune(got)) > maxQueryLength {
		t.Errorf("BuildSearchQuery() length = %d, want <= %d", len([]rune(got)), maxQueryLength)
	}
}

func TestBuildSearchQuery_SimplifiesLongTitleWithPossessiveAndEvent(t *testing.T) {
	title := "Rihanna's incredible performance at the Super Bowl Halftime Show was a career defining moment for everyone watching live that night"
	got := BuildSearchQuery(title, "")
	if !strings.Contains(got, "Rihanna") {
		t.Errorf("BuildSearchQuery() = %q, want possessive artist retained", got)
	}
	if !strings.Contains(got, "Super Bowl") {
		t.Errorf("BuildSearchQuery() = %q, want event phrase retained", got)
	}
}

func TestSanitizeTitle_TruncatesAt500(t *testing.T) {
	long := strings.Repeat("x", 600)
	got := sanitizeTitle(long)
	if len([]rune(got)) != maxTitleLength {
		t.Errorf("sanitizeTitle() length = %d, want %d", len([]rune(got)), maxTitleLength)
	}
}

func TestSanitizeTitle_ExactLengthPasses(t *testing.T) {
	exact := strings.Repeat("x", maxTitleLength)
	got := sanitizeTitle(exact)
	if len([]rune(got)) != maxTitleLength {
		t.Errorf("sanitizeTitle() length = %d, want %d", len([]rune(got)), maxTitleLength)
	}
}
