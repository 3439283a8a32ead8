package lyrics

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"audiolyrics/internal/apperr"
	"audiolyrics/internal/models"
)

const (
	StrategyPrimary  = "primary"
	StrategyFallback = "fallback"
)

type searchAttempt struct {
	strategy string
	params   url.Values
}

// Resolver turns a noisy (title, artist) into lyrics from an Index.
type Resolver struct {
	logger *slog.Logger
	index  Index
	cache  Cache
}

// NewResolver builds a Resolver. cache may be nil.
func NewResolver(logger *slog.Logger, index Index, cache Cache) *Resolver {
	if cache == nil {
		cache = nopCache{}
	}
	return &Resolver{logger: logger, index: index, cache: cache}
}

// Resolve searches by exact track/artist first and, when an artist is known,
// falls back to a free-text query. A resolution without Result means nothing
// matched; its Query holds what was searched.
func (r *Resolver) Resolve(ctx context.Context, title, artist string) (*models.LyricsResolution, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "Title is required")
	}

	q := Normalize(title, artist)
	logger := r.logger.With("artist", q.Artist, "track", q.Track)

	if cached, err := r.cache.Get(ctx, q); err != nil {
		logger.Warn("lyrics cache read failed", "error", err)
	} else if cached.Found() {
		logger.Debug("lyrics cache hit")
		return cached, nil
	}

	primary := url.Values{}
	primary.Set("track_name", q.Track)
	if q.Artist != "" {
		primary.Set("artist_name", q.Artist)
	}

	attempts := []searchAttempt{{StrategyPrimary, primary}}
	if q.Artist != "" {
		fallback := url.Values{}
		fallback.Set("q", q.Artist+" "+q.Track)
		attempts = append(attempts, searchAttempt{StrategyFallback, fallback})
	}

	for _, attempt := range attempts {
		results, err := r.index.Search(ctx, attempt.params)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				logger.Warn("lyrics search unavailable", "strategy", attempt.strategy, "error", err)
				continue
			}
			if apperr.KindOf(err) != apperr.KindLyricsQueryFailed {
				err = apperr.Wrap(apperr.KindLyricsQueryFailed, "Lyrics search failed", err)
			}
			return nil, err
		}

		best := SelectBest(results)
		if best == nil {
			logger.Debug("lyrics search returned no results", "strategy", attempt.strategy)
			continue
		}

		res := &models.LyricsResolution{Result: best, Strategy: attempt.strategy, Query: q}
		if err := r.cache.Set(ctx, q, res); err != nil {
			logger.Warn("lyrics cache write failed", "error", err)
		}
		logger.Info("lyrics found", "strategy", attempt.strategy, "synced", best.HasSyncedLyrics())
		return res, nil
	}

	logger.Info("lyrics not found")
	return &models.LyricsResolution{Query: q}, nil
}

// SelectBest prefers the first entry with synced lyrics, else the first entry.
func SelectBest(results []models.LyricsResult) *models.LyricsResult {
	if len(results) == 0 {
		return nil
	}
	for i := range results {
		if results[i].HasSyncedLyrics() {
			best := results[i]
			return &best
		}
	}
	best := results[0]
	return &best
}
