package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"audiolyrics/internal/apperr"
	"audiolyrics/internal/extractor"
	"audiolyrics/internal/models"
	"audiolyrics/internal/web"
)

const (
	timestampLayout       = "2006-01-02T15:04:05.000Z07:00"
	defaultRequestTimeout = 15 * time.Minute
)

// Extractor turns a video URL into a stored audio asset.
type Extractor interface {
	Extract(ctx context.Context, sourceURL string, cb extractor.ProgressCallback) (*models.ExtractionResult, error)
	Version(ctx context.Context) (string, error)
}

// LyricsResolver finds lyrics for a raw title and optional artist.
type LyricsResolver interface {
	Resolve(ctx context.Context, title, artist string) (*models.LyricsResolution, error)
}

type Options struct {
	AudioDir       string
	RateLimitRPS   float64
	RateLimitBurst int
	// RequestTimeout bounds every request; it should cover a full extraction.
	RequestTimeout time.Duration
}

type App struct {
	logger *slog.Logger

	router    *chi.Mux
	extractor Extractor
	lyrics    LyricsResolver
	limiter   *rate.Limiter

	audioDir       string
	requestTimeout time.Duration
	upgrader       websocket.Upgrader
}

func NewApp(logger *slog.Logger, ex Extractor, lyrics LyricsResolver, opts Options) *App {
	app := &App{
		logger:         logger,
		router:         chi.NewRouter(),
		extractor:      ex,
		lyrics:         lyrics,
		audioDir:       opts.AudioDir,
		requestTimeout: opts.RequestTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if app.requestTimeout <= 0 {
		app.requestTimeout = defaultRequestTimeout
	}
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		app.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}

	app.registerRoutes()
	return app
}

func (a *App) Router() http.Handler {
	return a.router
}

var endpoints = []web.Endpoint{
	{Method: "POST", Path: "/api/youtube/extract", Description: "extract audio from a YouTube URL"},
	{Method: "GET", Path: "/api/youtube/extract/ws?url=", Description: "extract audio with live progress over WebSocket"},
	{Method: "GET", Path: "/api/lyrics/search?title=&artist=", Description: "search lyrics for a song"},
	{Method: "GET", Path: "/api/check-ytdlp", Description: "report yt-dlp availability"},
	{Method: "GET", Path: "/api/health", Description: "health check"},
	{Method: "GET", Path: "/audio/{file}", Description: "download an extracted file (kept for one hour)"},
}

func (a *App) registerRoutes() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Timeout(a.requestTimeout))
	a.router.Use(a.corsMiddleware)

	a.router.Get("/", a.index)
	a.router.Get("/api/health", a.health)

	a.router.Group(func(r chi.Router) {
		r.Use(a.rateLimit)
		r.Post("/api/youtube/extract", a.extract)
		r.Get("/api/youtube/extract/ws", a.extractWS)
		r.Get("/api/lyrics/search", a.searchLyrics)
		r.Get("/api/check-ytdlp", a.checkYtDlp)
	})

	a.router.Get("/audio/*", a.audio)
}

func (a *App) index(w http.ResponseWriter, r *http.Request) {
	version, err := a.extractor.Version(r.Context())
	a.render(w, r, web.IndexPage(web.IndexData{
		YtDlpAvailable: err == nil,
		YtDlpVersion:   version,
		Endpoints:      endpoints,
	}))
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(timestampLayout),
	})
}

func (a *App) checkYtDlp(w http.ResponseWriter, r *http.Request) {
	version, err := a.extractor.Version(r.Context())
	if err != nil {
		a.logger.Warn("yt-dlp check failed", "error", err)
		a.respondJSON(w, http.StatusOK, map[string]any{
			"available": false,
			"message":   "yt-dlp is not installed or not in PATH. Install it with: pip install yt-dlp",
		})
		return
	}
	a.respondJSON(w, http.StatusOK, map[string]any{
		"available": true,
		"version":   version,
	})
}

type extractResponse struct {
	Success  bool    `json:"success"`
	AudioURL string  `json:"audioUrl"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

func (a *App) extract(w http.ResponseWriter, r *http.Request) {
	var req models.ExtractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return
	}

	res, err := a.extractor.Extract(r.Context(), req.URL, nil)
	if err != nil {
		a.respondError(w, err)
		return
	}

	a.respondJSON(w, http.StatusOK, extractResponse{
		Success:  true,
		AudioURL: audioURL(res.FileName),
		Title:    res.Title,
		Duration: res.Duration,
	})
}

func (a *App) extractWS(w http.ResponseWriter, r *http.Request) {
	sourceURL := r.URL.Query().Get("url")

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// a client that goes away cancels the extraction
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	var mu sync.Mutex
	send := func(evt models.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(evt); err != nil {
			a.logger.Debug("websocket write failed", "error", err)
		}
	}

	res, err := a.extractor.Extract(ctx, sourceURL, func(percent int, status models.JobStatus, message string) {
		send(models.ProgressEvent{Stage: "extraction", Status: status, Progress: percent, Message: message})
	})
	if err != nil {
		body, _ := errorBody(err)
		send(models.ProgressEvent{
			Stage:   "extraction",
			Status:  models.StatusFailed,
			Error:   body.Error,
			Details: body.Details,
		})
	} else {
		send(models.ProgressEvent{
			ID:       res.AssetID,
			Stage:    "extraction",
			Status:   models.StatusCompleted,
			Progress: 100,
			AudioURL: audioURL(res.FileName),
			Title:    res.Title,
			Duration: res.Duration,
		})
	}

	mu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	mu.Unlock()
}

type lyricsResponse struct {
	Success      bool    `json:"success"`
	Source       string  `json:"source"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	PlainLyrics  *string `json:"plainLyrics"`
	SyncedLyrics *string `json:"syncedLyrics"`
}

type lyricsNotFound struct {
	Success     bool                   `json:"success"`
	Error       string                 `json:"error"`
	SearchedFor models.NormalizedQuery `json:"searchedFor"`
}

func (a *App) searchLyrics(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	artist := r.URL.Query().Get("artist")
	if strings.TrimSpace(title) == "" {
		a.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "Title is required"})
		return
	}

	res, err := a.lyrics.Resolve(r.Context(), title, artist)
	if err != nil {
		a.logger.Error("lyrics search failed", "title", title, "artist", artist, "error", err)
		if apperr.Is(err, apperr.KindInvalidInput) {
			a.respondError(w, err)
			return
		}
		a.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to search lyrics"})
		return
	}

	if !res.Found() {
		a.respondJSON(w, http.StatusOK, lyricsNotFound{
			Success:     false,
			Error:       "No lyrics found",
			SearchedFor: res.Query,
		})
		return
	}

	l := res.Result
	a.respondJSON(w, http.StatusOK, lyricsResponse{
		Success:      true,
		Source:       "lrclib",
		TrackName:    l.TrackName,
		ArtistName:   l.ArtistName,
		AlbumName:    l.AlbumName,
		Duration:     l.Duration,
		PlainLyrics:  l.PlainLyrics,
		SyncedLyrics: l.SyncedLyrics,
	})
}

// audio serves stored files by name; directory listings are refused.
func (a *App) audio(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if name == "" || strings.Contains(name, "/") || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	if ct, ok := audioContentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, filepath.Join(a.audioDir, name))
}

// the stdlib mime table lacks most audio types on minimal images
var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".opus": "audio/ogg",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".wav":  "audio/wav",
}

func audioURL(fileName string) string {
	return "/audio/" + fileName
}

func (a *App) render(w http.ResponseWriter, r *http.Request, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		a.logger.Error("failed to render template", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

func (a *App) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("failed to encode json", "error", err)
	}
}

func (a *App) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.limiter != nil && !a.limiter.Allow() {
			a.respondJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many requests, please try again later"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *App) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
