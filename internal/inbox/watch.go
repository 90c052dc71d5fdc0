package inbox

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch calls fn whenever messages are delivered to new/, batching bursts
// that arrive within quiet of each other. It blocks until ctx is done.
func (m *Maildir) Watch(ctx context.Context, quiet time.Duration, fn func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Join(m.dir, "new")); err != nil {
		return err
	}
	if quiet <= 0 {
		quiet = 500 * time.Millisecond
	}

	timer := time.NewTimer(quiet)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			m.logger.Debug("maildir delivery", zap.String("file", ev.Name))
			timer.Reset(quiet)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("maildir watch error", zap.Error(err))
		case <-timer.C:
			fn(ctx)
		}
	}
}
