package extractor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/google/uuid"

	"audiolyrics/internal/apperr"
	"audiolyrics/internal/models"
)

const (
	DefaultTitle = "YouTube Audio"

	hintInstall = "Make sure yt-dlp is installed and available in PATH (pip install -U yt-dlp)"
	hintUpdate  = "The video may be unavailable, or yt-dlp may need an update (yt-dlp -U)"
)

// ProgressCallback receives updates while an extraction runs.
type ProgressCallback func(percent int, status models.JobStatus, message string)

// AssetStore is where extracted files land.
type AssetStore interface {
	Path(id string) string
	Exists(id string) bool
	Delete(id string) error
	Tags(id string) (tag.Metadata, error)
}

type Options struct {
	Binary         string
	Format         string
	Quality        string
	ProbeTimeout   time.Duration
	ExtractTimeout time.Duration
}

// Service drives yt-dlp to turn a video URL into a stored audio file.
type Service struct {
	logger *slog.Logger
	runner Runner
	store  AssetStore
	opts   Options
	newID  func() string
}

func NewService(logger *slog.Logger, runner Runner, store AssetStore, opts Options) *Service {
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.Format == "" {
		opts.Format = "mp3"
	}
	if opts.Quality == "" {
		opts.Quality = "192K"
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = time.Minute
	}
	if opts.ExtractTimeout <= 0 {
		opts.ExtractTimeout = 10 * time.Minute
	}
	return &Service{
		logger: logger,
		runner: runner,
		store:  store,
		opts:   opts,
		newID:  uuid.NewString,
	}
}

// Extract probes sourceURL, extracts its audio into the store and returns the
// new asset. On failure no file for the generated id is left behind.
func (s *Service) Extract(ctx context.Context, sourceURL string, cb ProgressCallback) (*models.ExtractionResult, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "YouTube URL is required")
	}
	if !ValidURL(sourceURL) {
		return nil, apperr.New(apperr.KindInvalidInput, "Invalid YouTube URL")
	}
	if cb == nil {
		cb = func(int, models.JobStatus, string) {}
	}

	id := s.newID()
	job := models.ExtractionJob{
		ID:         id,
		SourceURL:  sourceURL,
		OutputPath: s.store.Path(id),
		CreatedAt:  time.Now(),
	}
	logger := s.logger.With("asset_id", job.ID)
	logger.Info("extraction started", "url", job.SourceURL)

	cb(0, models.StatusProbing, "fetching video information")
	meta, err := s.probe(ctx, job)
	if err != nil {
		s.discard(logger, job)
		logger.Error("metadata probe failed", "error", err)
		return nil, err
	}

	cb(1, models.StatusProcessing, "downloading audio")
	if err := s.extract(ctx, job, cb); err != nil {
		s.discard(logger, job)
		logger.Error("extraction failed", "error", err)
		return nil, err
	}

	if !s.store.Exists(job.ID) {
		s.discard(logger, job)
		err := apperr.New(apperr.KindOutputMissing, "Audio file was not created")
		err.Hint = hintUpdate
		logger.Error("output missing after successful exit", "path", job.OutputPath)
		return nil, err
	}

	res := &models.ExtractionResult{
		AssetID:  job.ID,
		FileName: filepath.Base(job.OutputPath),
		Title:    s.title(logger, job.ID, meta),
		Duration: meta.Duration,
	}
	cb(100, models.StatusCompleted, "extraction complete")
	logger.Info("extraction completed", "output", job.OutputPath, "elapsed", time.Since(job.CreatedAt).String())
	return res, nil
}

func (s *Service) probe(ctx context.Context, job models.ExtractionJob) (models.VideoMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()

	res, err := s.runner.Run(ctx, Command{Name: s.opts.Binary, Args: probeArgs(job.SourceURL)})
	if err != nil {
		return models.VideoMetadata{}, s.runError(apperr.KindMetadataFetchFailed, "Failed to fetch video information", s.opts.ProbeTimeout, err)
	}
	if res.ExitCode != 0 {
		return models.VideoMetadata{}, exitError(apperr.KindMetadataFetchFailed, "Failed to fetch video information", res)
	}

	meta, err := parseProbe(res.Stdout)
	if err != nil {
		return models.VideoMetadata{}, apperr.Wrap(apperr.KindMetadataParseFailed, "Failed to parse video information", err)
	}
	return meta, nil
}

func (s *Service) extract(ctx context.Context, job models.ExtractionJob, cb ProgressCallback) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ExtractTimeout)
	defer cancel()

	cmd := Command{
		Name: s.opts.Binary,
		Args: extractArgs(job.SourceURL, job.OutputPath, s.opts.Format, s.opts.Quality),
		OnStdoutLine: func(line string) {
			if pct, ok := parseProgress(line); ok {
				if pct < 1 {
					pct = 1
				}
				if pct > 99 {
					pct = 99
				}
				cb(pct, models.StatusProcessing, "downloading audio")
				return
			}
			if strings.HasPrefix(line, "[ExtractAudio]") {
				cb(99, models.StatusProcessing, "converting audio")
			}
		},
	}

	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return s.runError(apperr.KindExtractionFailed, "Failed to extract audio", s.opts.ExtractTimeout, err)
	}
	if res.ExitCode != 0 {
		return exitError(apperr.KindExtractionFailed, "Failed to extract audio", res)
	}
	return nil
}

// title picks the probe title, then the embedded tag title, then a default.
func (s *Service) title(logger *slog.Logger, id string, meta models.VideoMetadata) string {
	if t := strings.TrimSpace(meta.Title); t != "" {
		return t
	}
	tags, err := s.store.Tags(id)
	if err != nil {
		logger.Debug("no readable tags on output", "error", err)
		return DefaultTitle
	}
	if t := strings.TrimSpace(tags.Title()); t != "" {
		return t
	}
	return DefaultTitle
}

func (s *Service) discard(logger *slog.Logger, job models.ExtractionJob) {
	if err := s.store.Delete(job.ID); err != nil {
		logger.Warn("failed to remove partial output", "path", job.OutputPath, "error", err)
	}
}

// Version returns the downloader's version string.
func (s *Service) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := s.runner.Run(ctx, Command{Name: s.opts.Binary, Args: []string{"--version"}})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s --version exited with code %d: %s", s.opts.Binary, res.ExitCode, lastLine(res.Stderr))
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

func (s *Service) runError(kind apperr.Kind, message string, timeout time.Duration, err error) *apperr.Error {
	e := apperr.Wrap(kind, message, err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Message = fmt.Sprintf("%s: timed out after %s", message, timeout)
	case errors.Is(err, context.Canceled):
		e.Message = message + ": request cancelled"
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		e.Details = fmt.Sprintf("%s not found", s.opts.Binary)
		e.Hint = hintInstall
	default:
		e.Details = err.Error()
		e.Hint = hintInstall
	}
	return e
}

func exitError(kind apperr.Kind, message string, res Result) *apperr.Error {
	e := apperr.New(kind, message)
	e.Details = strings.TrimSpace(string(res.Stderr))
	if e.Details == "" {
		e.Details = fmt.Sprintf("yt-dlp exited with code %d", res.ExitCode)
	}
	e.Hint = hintUpdate
	return e
}
