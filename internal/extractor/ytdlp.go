package extractor

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"audiolyrics/internal/models"
)

var (
	youtubeURLPattern = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/.+`)
	downloadProgress  = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%`)
)

// ValidURL reports whether raw looks like a YouTube video URL.
func ValidURL(raw string) bool {
	return youtubeURLPattern.MatchString(strings.TrimSpace(raw))
}

func probeArgs(sourceURL string) []string {
	return []string{
		"--dump-json",
		"--no-playlist",
		"--no-warnings",
		"--skip-download",
		sourceURL,
	}
}

// extractArgs asks yt-dlp to write <outputPath without ext>.<format>; the
// template keeps yt-dlp from appending a second extension after conversion.
func extractArgs(sourceURL, outputPath, format, quality string) []string {
	template := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".%(ext)s"
	return []string{
		"--extract-audio",
		"--audio-format", format,
		"--audio-quality", quality,
		"--no-playlist",
		"--no-continue",
		"--no-part",
		"--no-warnings",
		"--newline",
		"-o", template,
		sourceURL,
	}
}

type probeInfo struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// parseProbe decodes the first JSON document from yt-dlp --dump-json output.
func parseProbe(out []byte) (models.VideoMetadata, error) {
	var info probeInfo
	dec := json.NewDecoder(strings.NewReader(string(out)))
	if err := dec.Decode(&info); err != nil {
		return models.VideoMetadata{}, err
	}
	return models.VideoMetadata{Title: info.Title, Duration: info.Duration}, nil
}

// parseProgress extracts the percentage from a yt-dlp --newline download line.
func parseProgress(line string) (int, bool) {
	m := downloadProgress.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return int(pct), true
}

// lastLine returns the last non-empty line of tool output.
func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
