package matching

import (
	"testing"

	"tunesync/internal/models"
)

func track(title, artist, isrc string) models.NormalizedTrack {
	return models.NormalizedTrack{Title: title, Artists: []string{artist}, ISRC: isrc}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello, World!", "hello world"},
		{"  Multiple   Spaces  ", "multiple spaces"},
		{"UPPER case", "upper case"},
		{"Track (feat. Someone)", "track feat someone"},
		{"Déjà Vu", "déjà vu"},
		{"", ""},
		{"!!!", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKey(t *testing.T) {
	if got := Key("Song Title!", "The Artist"); got != "song title|the artist" {
		t.Errorf("Key = %q, want %q", got, "song title|the artist")
	}

	if Key("A", "B") == Key("AB", "") {
		t.Error("distinct title/artist splits should not collide")
	}
}

func TestSimilarity(t *testing.T) {
	t.Run("identical strings score 1", func(t *testing.T) {
		if got := similarity("abc", "abc"); got != 1 {
			t.Errorf("similarity = %v, want 1", got)
		}
	})

	t.Run("empty pair scores 1", func(t *testing.T) {
		if got := similarity("", ""); got != 1 {
			t.Errorf("similarity = %v, want 1", got)
		}
	})

	t.Run("disjoint strings score low", func(t *testing.T) {
		if got := similarity("abcd", "wxyz"); got != 0 {
			t.Errorf("similarity = %v, want 0", got)
		}
	})

	t.Run("one empty side", func(t *testing.T) {
		if got := similarity("abc", ""); got != 0 {
			t.Errorf("similarity = %v, want 0", got)
		}
	})
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		left, right string
		want        int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
	}

	for _, tt := range tests {
		if got := levenshtein(tt.left, tt.right); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.left, tt.right, got, tt.want)
		}
	}
}

func TestFindBestMatch(t *testing.T) {
	m := NewMatcher(nil)

	t.Run("no candidates", func(t *testing.T) {
		if got := m.FindBestMatch(track("Song", "Artist", ""), nil); got != nil {
			t.Errorf("FindBestMatch = %v, want nil", got)
		}
	})

	t.Run("isrc wins over better title", func(t *testing.T) {
		source := track("Song", "Artist", "USRC17607839")
		candidates := []models.NormalizedTrack{
			track("Song", "Artist", "OTHER000000"),
			track("Completely Different", "Someone Else", "usrc17607839"),
		}

		got := m.FindBestMatch(source, candidates)
		if got == nil || got.Title != "Completely Different" {
			t.Fatalf("FindBestMatch = %+v, want the ISRC candidate", got)
		}
	})

	t.Run("normalized exact match", func(t *testing.T) {
		source := track("Hello, World!", "The Artist", "")
		candidates := []models.NormalizedTrack{
			track("Unrelated", "Nobody", ""),
			track("hello world", "the artist", ""),
		}

		got := m.FindBestMatch(source, candidates)
		if got == nil || got.Title != "hello world" {
			t.Fatalf("FindBestMatch = %+v, want normalized exact candidate", got)
		}
	})

	t.Run("fuzzy match above threshold", func(t *testing.T) {
		source := track("Midnight City", "M83", "")
		candidates := []models.NormalizedTrack{
			track("Midnight Cty", "M83", ""),
		}

		got := m.FindBestMatch(source, candidates)
		if got == nil {
			t.Fatal("FindBestMatch = nil, want fuzzy candidate")
		}
	})

	t.Run("below threshold yields nil", func(t *testing.T) {
		source := track("Midnight City", "M83", "")
		candidates := []models.NormalizedTrack{
			track("Some Other Song", "Another Band", ""),
		}

		if got := m.FindBestMatch(source, candidates); got != nil {
			t.Errorf("FindBestMatch = %+v, want nil", got)
		}
	})

	t.Run("ties break by candidate order", func(t *testing.T) {
		source := track("Song", "Artist", "")
		candidates := []models.NormalizedTrack{
			{Title: "Song", Artists: []string{"Artist"}, ExternalIDs: map[string]string{"spotifyId": "first"}},
			{Title: "Song", Artists: []string{"Artist"}, ExternalIDs: map[string]string{"spotifyId": "second"}},
		}

		got := m.FindBestMatch(source, candidates)
		if got == nil || got.ExternalID("spotifyId") != "first" {
			t.Fatalf("FindBestMatch = %+v, want first candidate", got)
		}
	})
}
