package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
)

const (
	// Retention is how long an extracted file is kept before the sweeper removes it.
	Retention = time.Hour
	// SweepInterval is how often the sweeper runs.
	SweepInterval = 30 * time.Minute
)

// Store owns a flat directory of extracted audio files named <id>.<ext>.
type Store struct {
	logger *slog.Logger
	dir    string
	ext    string
	now    func() time.Time
}

func New(logger *slog.Logger, dir, ext string) *Store {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "mp3"
	}
	return &Store{logger: logger, dir: dir, ext: ext, now: time.Now}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Ext() string {
	return s.ext
}

// EnsureDir creates the store directory if it does not exist.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create audio dir %s: %w", s.dir, err)
	}
	return nil
}

// FileName returns the on-disk name for id.
func (s *Store) FileName(id string) string {
	return filepath.Base(id) + "." + s.ext
}

// Path returns the file path for id. It does not check existence.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, s.FileName(id))
}

func (s *Store) Exists(id string) bool {
	info, err := os.Stat(s.Path(id))
	return err == nil && info.Mode().IsRegular()
}

// Delete removes the file for id along with any intermediate <id>.* files the
// downloader left behind. Deleting a missing file is not an error.
func (s *Store) Delete(id string) error {
	paths := []string{s.Path(id)}
	base := filepath.Base(id)
	if !strings.ContainsAny(base, `*?[\`) {
		if matches, err := filepath.Glob(filepath.Join(s.dir, base+".*")); err == nil {
			paths = append(paths, matches...)
		}
	}

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", id, err)
	}
	return nil
}

// Tags reads embedded audio tags from the stored file.
func (s *Store) Tags(id string) (tag.Metadata, error) {
	f, err := os.Open(s.Path(id))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags for %s: %w", id, err)
	}
	return meta, nil
}

// Sweep deletes every entry older than maxAge and returns how many were removed.
// Entries that cannot be inspected or removed are skipped.
func (s *Store) Sweep(maxAge time.Duration) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("sweep: cannot read audio dir", "dir", s.dir, "error", err)
		return 0
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Debug("sweep: remove failed", "path", path, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("cleanup completed", "removed_files", removed)
	}
	return removed
}

// Sweeper is the handle of a running periodic sweep.
type Sweeper struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartSweeper runs Sweep(maxAge) every interval until ctx is cancelled or Stop is called.
func (s *Store) StartSweeper(ctx context.Context, interval, maxAge time.Duration) *Sweeper {
	ctx, cancel := context.WithCancel(ctx)
	sw := &Sweeper{cancel: cancel, done: make(chan struct{})}

	if interval <= 0 || maxAge <= 0 {
		close(sw.done)
		return sw
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer close(sw.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(maxAge)
			}
		}
	}()
	return sw
}

// Stop cancels the sweeper and waits for its goroutine to exit.
func (sw *Sweeper) Stop() {
	sw.once.Do(sw.cancel)
	<-sw.done
}
