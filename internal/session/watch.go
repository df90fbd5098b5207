package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// watchSettle coalesces the burst of events a single save produces
// (tmp write then rename).
const watchSettle = 100 * time.Millisecond

// Watch reloads the store whenever the session file changes and calls fn
// with the new identity, or nil after logout. It returns once the watcher
// is installed; watching stops when ctx is done.
func (s *Store) Watch(ctx context.Context, logger zerolog.Logger, fn func(*Identity)) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create session watcher: %w", err)
	}
	// The directory is watched because the file is replaced by rename.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()

		var settle <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
					continue
				}
				settle = time.After(watchSettle)
			case <-settle:
				settle = nil
				sess, err := s.Load()
				if err != nil {
					logger.Debug().Err(err).Msg("session changed: no active session")
					fn(nil)
					continue
				}
				id := sess.User
				logger.Info().Int64("user_id", id.ID).Msg("session changed")
				fn(&id)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("session watcher error")
			}
		}
	}()
	return nil
}
