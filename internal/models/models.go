package models

import "time"

// JobStatus represents the current state of an extraction job.
type JobStatus string

const (
	StatusProbing    JobStatus = "probing"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// ExtractionRequest is the inbound extraction payload.
type ExtractionRequest struct {
	URL string `json:"url"`
}

// ExtractionJob lives only for the duration of one request; the file at
// OutputPath is the only thing that outlives it.
type ExtractionJob struct {
	ID         string    `json:"id"`
	SourceURL  string    `json:"source_url"`
	OutputPath string    `json:"output_path"`
	CreatedAt  time.Time `json:"created_at"`
}

// VideoMetadata is the subset of the probe output we use.
type VideoMetadata struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// ExtractionResult is returned by a successful extraction.
type ExtractionResult struct {
	AssetID  string  `json:"asset_id"`
	FileName string  `json:"file_name"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// ProgressEvent is sent to clients over WebSocket.
type ProgressEvent struct {
	ID       string    `json:"id,omitempty"`
	Stage    string    `json:"stage"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message,omitempty"`
	AudioURL string    `json:"audioUrl,omitempty"`
	Title    string    `json:"title,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Error    string    `json:"error,omitempty"`
	Details  string    `json:"details,omitempty"`
}

// NormalizedQuery is the cleaned (artist, track) pair sent to the lyrics index.
type NormalizedQuery struct {
	Artist string `json:"artist"`
	Track  string `json:"track"`
}

// LyricsResult mirrors one entry of the lyrics index search response.
// Lyrics fields are pointers because the index returns null for missing text.
type LyricsResult struct {
	ID           int64   `json:"id,omitempty"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental,omitempty"`
	PlainLyrics  *string `json:"plainLyrics"`
	SyncedLyrics *string `json:"syncedLyrics"`
}

// HasSyncedLyrics reports whether the entry carries non-empty timed lyrics.
func (r LyricsResult) HasSyncedLyrics() bool {
	return r.SyncedLyrics != nil && *r.SyncedLyrics != ""
}

// LyricsResolution is the outcome of a lyrics lookup. Result is nil when
// nothing matched; Query is always what was actually searched.
type LyricsResolution struct {
	Result   *LyricsResult   `json:"result,omitempty"`
	Strategy string          `json:"strategy,omitempty"`
	Query    NormalizedQuery `json:"query"`
}

func (r *LyricsResolution) Found() bool {
	return r != nil && r.Result != nil
}
