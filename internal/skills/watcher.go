package skills

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the registry whenever anything under root changes. It blocks
// until ctx is done. Reload failures are logged, never fatal.
func (r *Registry) Watch(ctx context.Context, root string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.LoadDir(root); err != nil {
				r.logger.Warn("skill reload failed", "root", root, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("skill watcher error", "error", err)
		}
	}
}
