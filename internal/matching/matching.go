// Package matching resolves a source track to the best candidate from a
// destination catalog.
//
// Precedence: ISRC equality, then normalized exact title+artist equality,
// then fuzzy similarity scoring with a fixed acceptance threshold. Every
// attempt is logged with the resulting confidence.
package matching

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/log"
	"tunesync/internal/models"
)

// FuzzyThreshold is the minimum combined similarity score a fuzzy match must
// reach to be accepted.
const FuzzyThreshold = 0.80

// Matcher finds the best destination-catalog candidate for a source track.
// Stateless apart from its logger.
type Matcher struct {
	logger *log.Logger
}

// NewMatcher creates a Matcher logging match attempts to the given logger.
func NewMatcher(logger *log.Logger) *Matcher {
	return &Matcher{logger: logger}
}

// FindBestMatch returns the best candidate for source, or nil when no
// candidate qualifies. Ties are broken by candidate order.
func (m *Matcher) FindBestMatch(source models.NormalizedTrack, candidates []models.NormalizedTrack) *models.NormalizedTrack {
	if len(candidates) == 0 {
		m.logAttempt(source, 0, false)
		return nil
	}

	if isrc := strings.TrimSpace(source.ISRC); isrc != "" {
		for i := range candidates {
			if candidates[i].ISRC != "" && strings.EqualFold(candidates[i].ISRC, isrc) {
				m.logAttempt(source, 1, true)
				return &candidates[i]
			}
		}
	}

	normTitle := Normalize(source.Title)
	normArtist := Normalize(source.PrimaryArtist())

	for i := range candidates {
		if Normalize(candidates[i].Title) == normTitle && Normalize(candidates[i].PrimaryArtist()) == normArtist {
			m.logAttempt(source, 1, true)
			return &candidates[i]
		}
	}

	bestIdx := -1
	bestScore := 0.0
	for i := range candidates {
		score := similarity(normTitle, Normalize(candidates[i].Title))*0.7 +
			similarity(normArtist, Normalize(candidates[i].PrimaryArtist()))*0.3
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx < 0 || bestScore < FuzzyThreshold {
		m.logAttempt(source, bestScore, false)
		return nil
	}

	m.logAttempt(source, bestScore, true)
	return &candidates[bestIdx]
}

func (m *Matcher) logAttempt(source models.NormalizedTrack, confidence float64, matched bool) {
	if m.logger == nil {
		return
	}
	artist := source.PrimaryArtist()
	if artist == "" {
		artist = "unknown"
	}
	if matched {
		m.logger.Info("matched track", "title", source.Title, "artist", artist, "confidence", confidence)
	} else {
		m.logger.Info("no track match", "title", source.Title, "artist", artist, "confidence", confidence)
	}
}

// Normalize lowercases, strips everything but letters, digits, and
// whitespace, and collapses runs of whitespace to single spaces.
func Normalize(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Key builds the normalized (title, artist) dedupe key used when comparing
// playlist contents across providers.
func Key(title, artist string) string {
	return Normalize(title) + "|" + Normalize(artist)
}

// similarity maps Levenshtein distance to [0, 1]; identical strings score 1,
// including the empty pair.
func similarity(left, right string) float64 {
	if len(left) == 0 && len(right) == 0 {
		return 1
	}

	maxLen := len(left)
	if len(right) > maxLen {
		maxLen = len(right)
	}

	return 1 - float64(levenshtein(left, right))/float64(maxLen)
}

// levenshtein computes edit distance over bytes with the full dynamic
// programming matrix.
func levenshtein(left, right string) int {
	rows := len(left) + 1
	cols := len(right) + 1

	prev := make([]int, cols)
	curr := make([]int, cols)

	for j := 0; j < cols; j++ {
		prev[j] = j
	}

	for i := 1; i < rows; i++ {
		curr[0] = i
		for j := 1; j < cols; j++ {
			cost := 1
			if left[i-1] == right[j-1] {
				cost = 0
			}

			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost

			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
		}
		prev, curr = curr, prev
	}

	return prev[cols-1]
}
