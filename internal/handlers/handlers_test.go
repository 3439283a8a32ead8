package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"audiolyrics/internal/apperr"
	"audiolyrics/internal/extractor"
	"audiolyrics/internal/models"
)

type fakeExtractor struct {
	result   *models.ExtractionResult
	err      error
	version  string
	verErr   error
	calls    int
	deadline time.Time
}

func (f *fakeExtractor) Extract(ctx context.Context, sourceURL string, cb extractor.ProgressCallback) (*models.ExtractionResult, error) {
	f.calls++
	f.deadline, _ = ctx.Deadline()
	if cb != nil {
		cb(0, models.StatusProbing, "fetching video information")
		cb(50, models.StatusProcessing, "downloading audio")
	}
	return f.result, f.err
}

func (f *fakeExtractor) Version(ctx context.Context) (string, error) {
	return f.version, f.verErr
}

type fakeResolver struct {
	res *models.LyricsResolution
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, title, artist string) (*models.LyricsResolution, error) {
	return f.res, f.err
}

func strPtr(s string) *string { return &s }

func newTestApp(t *testing.T, ex *fakeExtractor, lr *fakeResolver, opts Options) *App {
	t.Helper()
	if ex == nil {
		ex = &fakeExtractor{}
	}
	if lr == nil {
		lr = &fakeResolver{}
	}
	if opts.AudioDir == "" {
		opts.AudioDir = t.TempDir()
	}
	return NewApp(slog.New(slog.NewTextHandler(io.Discard, nil)), ex, lr, opts)
}

func do(t *testing.T, app *App, method, target string, body io.Reader) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	var payload map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
		}
	}
	return rec, payload
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, &fakeExtractor{verErr: errors.New("missing")}, nil, Options{})
	rec, body := do(t, app, http.MethodGet, "/api/health", nil)

	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", rec.Code, body)
	}
	ts, _ := body["timestamp"].(string)
	if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		t.Fatalf("timestamp %q not RFC3339: %v", ts, err)
	}
	if !strings.HasSuffix(ts, "Z") {
		t.Fatalf("timestamp %q not UTC", ts)
	}
}

func TestExtractSuccess(t *testing.T) {
	ex := &fakeExtractor{result: &models.ExtractionResult{AssetID: "abc", FileName: "abc.mp3", Title: "Song", Duration: 212}}
	app := newTestApp(t, ex, nil, Options{})

	rec, body := do(t, app, http.MethodPost, "/api/youtube/extract", strings.NewReader(`{"url":"https://youtu.be/x"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if body["success"] != true || body["audioUrl"] != "/audio/abc.mp3" || body["title"] != "Song" || body["duration"] != 212.0 {
		t.Fatalf("body = %v", body)
	}
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, "Invalid JSON body"},
		{"invalid url", `{"url":"not a url"}`, apperr.New(apperr.KindInvalidInput, "Invalid YouTube URL"), http.StatusBadRequest, "Invalid YouTube URL"},
		{"extraction failed", `{"url":"https://youtu.be/x"}`, &apperr.Error{Kind: apperr.KindExtractionFailed, Message: "Failed to extract audio", Details: "ERROR: boom", Hint: "update"}, http.StatusInternalServerError, "Failed to extract audio"},
		{"unexpected", `{"url":"https://youtu.be/x"}`, errors.New("kaboom"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, &fakeExtractor{err: tt.err}, nil, Options{})
			rec, body := do(t, app, http.MethodPost, "/api/youtube/extract", strings.NewReader(tt.body))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if body["error"] != tt.wantError {
				t.Fatalf("error = %v, want %q", body["error"], tt.wantError)
			}
		})
	}

	app := newTestApp(t, &fakeExtractor{err: &apperr.Error{Kind: apperr.KindMetadataFetchFailed, Message: "Failed to fetch video information", Details: "ERROR: Video unavailable"}}, nil, Options{})
	_, body := do(t, app, http.MethodPost, "/api/youtube/extract", strings.NewReader(`{"url":"https://youtu.be/x"}`))
	if body["details"] != "ERROR: Video unavailable" {
		t.Fatalf("details = %v", body["details"])
	}
}

func TestCheckYtDlp(t *testing.T) {
	app := newTestApp(t, &fakeExtractor{version: "2024.08.06"}, nil, Options{})
	_, body := do(t, app, http.MethodGet, "/api/check-ytdlp", nil)
	if body["available"] != true || body["version"] != "2024.08.06" {
		t.Fatalf("body = %v", body)
	}

	app = newTestApp(t, &fakeExtractor{verErr: errors.New("exec: not found")}, nil, Options{})
	rec, body := do(t, app, http.MethodGet, "/api/check-ytdlp", nil)
	if rec.Code != http.StatusOK || body["available"] != false || body["message"] == "" {
		t.Fatalf("unavailable = %d %v", rec.Code, body)
	}
}

func TestSearchLyricsFound(t *testing.T) {
	lr := &fakeResolver{res: &models.LyricsResolution{
		Strategy: "primary",
		Query:    models.NormalizedQuery{Artist: "Daft Punk", Track: "Get Lucky"},
		Result: &models.LyricsResult{
			TrackName: "Get Lucky", ArtistName: "Daft Punk", AlbumName: "RAM", Duration: 248,
			PlainLyrics: strPtr("Like the legend"),
		},
	}}
	app := newTestApp(t, nil, lr, Options{})

	rec, body := do(t, app, http.MethodGet, "/api/lyrics/search?title=Get+Lucky&artist=Daft+Punk", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["success"] != true || body["source"] != "lrclib" || body["trackName"] != "Get Lucky" || body["albumName"] != "RAM" {
		t.Fatalf("body = %v", body)
	}
	if v, ok := body["syncedLyrics"]; !ok || v != nil {
		t.Fatalf("syncedLyrics should be present and null, got %v (present=%v)", v, ok)
	}
}

func TestSearchLyricsNotFound(t *testing.T) {
	lr := &fakeResolver{res: &models.LyricsResolution{Query: models.NormalizedQuery{Artist: "Someone", Track: "Song"}}}
	app := newTestApp(t, nil, lr, Options{})

	rec, body := do(t, app, http.MethodGet, "/api/lyrics/search?title=Song", nil)
	if rec.Code != http.StatusOK || body["success"] != false || body["error"] == "" {
		t.Fatalf("not found = %d %v", rec.Code, body)
	}
	searched, _ := body["searchedFor"].(map[string]any)
	if searched["artist"] != "Someone" || searched["track"] != "Song" {
		t.Fatalf("searchedFor = %v", body["searchedFor"])
	}
}

func TestSearchLyricsErrors(t *testing.T) {
	app := newTestApp(t, nil, nil, Options{})
	rec, body := do(t, app, http.MethodGet, "/api/lyrics/search?artist=x", nil)
	if rec.Code != http.StatusBadRequest || body["error"] != "Title is required" {
		t.Fatalf("missing title = %d %v", rec.Code, body)
	}

	app = newTestApp(t, nil, &fakeResolver{err: apperr.New(apperr.KindLyricsQueryFailed, "Failed to decode lyrics response")}, Options{})
	rec, body = do(t, app, http.MethodGet, "/api/lyrics/search?title=x", nil)
	if rec.Code != http.StatusInternalServerError || body["error"] == "" {
		t.Fatalf("query failed = %d %v", rec.Code, body)
	}
}

func TestAudio(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "abc.mp3"), []byte("ID3audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	app := newTestApp(t, nil, nil, Options{AudioDir: dir})

	rec, _ := do(t, app, http.MethodGet, "/audio/abc.mp3", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ID3audio" {
		t.Fatalf("audio = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q", ct)
	}

	for _, path := range []string{"/audio/missing.mp3", "/audio/", "/audio/.hidden"} {
		rec, _ := do(t, app, http.MethodGet, path, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, rec.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	app := newTestApp(t, nil, nil, Options{})
	rec, _ := do(t, app, http.MethodOptions, "/api/youtube/extract", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}

func TestRateLimit(t *testing.T) {
	app := newTestApp(t, &fakeExtractor{version: "1"}, nil, Options{RateLimitRPS: 0.001, RateLimitBurst: 2})

	for i := 0; i < 2; i++ {
		if rec, _ := do(t, app, http.MethodGet, "/api/check-ytdlp", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}
	rec, body := do(t, app, http.MethodGet, "/api/check-ytdlp", nil)
	if rec.Code != http.StatusTooManyRequests || body["error"] == "" {
		t.Fatalf("limited = %d %v", rec.Code, body)
	}

	if rec, _ := do(t, app, http.MethodGet, "/api/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health must not be rate limited, got %d", rec.Code)
	}
}

func TestIndex(t *testing.T) {
	app := newTestApp(t, &fakeExtractor{version: "2024.08.06"}, nil, Options{})
	rec, _ := do(t, app, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("/api/lyrics/search")) {
		t.Fatalf("index = %d %q", rec.Code, rec.Body.String())
	}
}

func readEvents(t *testing.T, conn *websocket.Conn) []models.ProgressEvent {
	t.Helper()
	var events []models.ProgressEvent
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var evt models.ProgressEvent
		if err := conn.ReadJSON(&evt); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return events
			}
			t.Fatalf("read: %v", err)
		}
		events = append(events, evt)
	}
}

func TestExtractWebSocket(t *testing.T) {
	ex := &fakeExtractor{result: &models.ExtractionResult{AssetID: "abc", FileName: "abc.mp3", Title: "Song", Duration: 10}}
	srv := httptest.NewServer(newTestApp(t, ex, nil, Options{}).Router())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/youtube/extract/ws?url=https://youtu.be/x", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	events := readEvents(t, conn)
	if len(events) != 3 {
		t.Fatalf("events = %+v", events)
	}
	if events[1].Progress != 50 || events[1].Status != models.StatusProcessing {
		t.Fatalf("progress event = %+v", events[1])
	}
	last := events[len(events)-1]
	if last.Status != models.StatusCompleted || last.AudioURL != "/audio/abc.mp3" || last.Title != "Song" {
		t.Fatalf("final event = %+v", last)
	}
}

func TestExtractWebSocketFailure(t *testing.T) {
	ex := &fakeExtractor{err: &apperr.Error{Kind: apperr.KindExtractionFailed, Message: "Failed to extract audio", Details: "ERROR: boom"}}
	srv := httptest.NewServer(newTestApp(t, ex, nil, Options{}).Router())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/youtube/extract/ws?url=https://youtu.be/x", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	events := readEvents(t, conn)
	last := events[len(events)-1]
	if last.Status != models.StatusFailed || last.Error != "Failed to extract audio" || last.Details != "ERROR: boom" {
		t.Fatalf("final event = %+v", last)
	}
}

func TestRequestTimeoutFollowsOptions(t *testing.T) {
	ex := &fakeExtractor{result: &models.ExtractionResult{AssetID: "a", FileName: "a.mp3"}}
	app := newTestApp(t, ex, nil, Options{RequestTimeout: 40 * time.Minute})

	rec, _ := do(t, app, http.MethodPost, "/api/youtube/extract", strings.NewReader(`{"url":"https://youtu.be/x"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ex.deadline.IsZero() {
		t.Fatal("extraction ran without a deadline")
	}
	if left := time.Until(ex.deadline); left < 39*time.Minute {
		t.Fatalf("deadline in %v, want about 40m", left)
	}
}

func TestRequestTimeoutDefault(t *testing.T) {
	ex := &fakeExtractor{result: &models.ExtractionResult{AssetID: "a", FileName: "a.mp3"}}
	app := newTestApp(t, ex, nil, Options{})

	do(t, app, http.MethodPost, "/api/youtube/extract", strings.NewReader(`{"url":"https://youtu.be/x"}`))
	if left := time.Until(ex.deadline); left > defaultRequestTimeout || left < defaultRequestTimeout-time.Minute {
		t.Fatalf("deadline in %v, want about %v", left, defaultRequestTimeout)
	}
}
