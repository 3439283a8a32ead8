package lyrics

import (
	"regexp"
	"strings"

	"audiolyrics/internal/models"
)

const titleSeparator = " - "

var (
	decorativePrefix = regexp.MustCompile(`(?i)\(\s*(?:official|music|lyric|audio|video)[^)]*\)`)
	decorativeInner  = regexp.MustCompile(`(?i)\([^)]*(?:remaster|version|mix)[^)]*\)`)
	bracketed        = regexp.MustCompile(`\[[^\]]*\]`)
	whitespace       = regexp.MustCompile(`\s+`)

	topicSuffix = regexp.MustCompile(`(?i)\s+-\s+topic$`)
	vevoSuffix  = regexp.MustCompile(`(?i)vevo\s*$`)
)

// Normalize turns a raw video title (and optional artist) into an
// (artist, track) pair suitable for a lyrics search.
func Normalize(title, artist string) models.NormalizedQuery {
	title = strings.TrimSpace(title)
	artist = strings.TrimSpace(artist)

	track := title
	if artist == "" {
		if before, after, ok := strings.Cut(title, titleSeparator); ok {
			artist = before
			track = after
		}
	}

	return models.NormalizedQuery{
		Artist: cleanArtist(artist),
		Track:  cleanTrack(track),
	}
}

func cleanTrack(s string) string {
	s = decorativePrefix.ReplaceAllString(s, " ")
	s = decorativeInner.ReplaceAllString(s, " ")
	s = bracketed.ReplaceAllString(s, " ")
	return collapse(s)
}

func cleanArtist(s string) string {
	s = topicSuffix.ReplaceAllString(s, "")
	s = vevoSuffix.ReplaceAllString(s, "")
	return collapse(s)
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
