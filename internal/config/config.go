package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings read from the environment.
type Config struct {
	Addr     string
	AudioDir string
	LogLevel slog.Level

	YtDlpPath      string
	AudioFormat    string
	AudioExt       string
	AudioQuality   string
	ProbeTimeout   time.Duration
	ExtractTimeout time.Duration

	LyricsBaseURL  string
	LyricsTimeout  time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	LyricsCacheTTL time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads .env (if present) and then the process environment.
// The returned bool reports whether a .env file was loaded.
func Load() (Config, bool) {
	loaded := godotenv.Load() == nil
	return FromEnv(), loaded
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	format, ext := audioFormatOrDefault("AUDIO_FORMAT")
	return Config{
		Addr:     envOrDefault("APP_ADDR", ":3001"),
		AudioDir: envOrDefault("AUDIO_DIR", "temp_audio"),
		LogLevel: envLevelOrDefault("LOG_LEVEL", slog.LevelInfo),

		YtDlpPath:      envOrDefault("YTDLP_PATH", "yt-dlp"),
		AudioFormat:    format,
		AudioExt:       ext,
		AudioQuality:   envOrDefault("AUDIO_QUALITY", "192K"),
		ProbeTimeout:   envDurationOrDefault("PROBE_TIMEOUT", 60*time.Second),
		ExtractTimeout: envDurationOrDefault("EXTRACT_TIMEOUT", 10*time.Minute),

		LyricsBaseURL:  strings.TrimRight(envOrDefault("LYRICS_BASE_URL", "https://lrclib.net/api"), "/"),
		LyricsTimeout:  envDurationOrDefault("LYRICS_TIMEOUT", 10*time.Second),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        envIntOrDefault("REDIS_DB", 0),
		LyricsCacheTTL: envDurationOrDefault("LYRICS_CACHE_TTL", 24*time.Hour),

		RateLimitRPS:   envFloatOrDefault("RATE_LIMIT_RPS", 10),
		RateLimitBurst: envIntOrDefault("RATE_LIMIT_BURST", 20),
	}
}

// audioFormats maps yt-dlp --audio-format values to the extension of the file
// they produce. "best" is absent since its extension depends on the source.
var audioFormats = map[string]string{
	"mp3":    "mp3",
	"m4a":    "m4a",
	"aac":    "m4a",
	"alac":   "m4a",
	"opus":   "opus",
	"vorbis": "ogg",
	"flac":   "flac",
	"wav":    "wav",
}

func audioFormatOrDefault(key string) (format, ext string) {
	format = strings.ToLower(envOrDefault(key, "mp3"))
	ext, ok := audioFormats[format]
	if !ok {
		return "mp3", "mp3"
	}
	return format, ext
}

func envOrDefault(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloatOrDefault(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envDurationOrDefault(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envLevelOrDefault(key string, fallback slog.Level) slog.Level {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(val)); err != nil {
		return fallback
	}
	return level
}
