package hooks

import (
	"context"
	"os"

	"github.com/fsnotify/fsnotify"
)

// Watch watches the hooks directory for added, removed, or modified scripts
// so a hook dropped in mid-run is picked up on its next invocation without
// restarting the engine. onChange is called (best-effort, never blocking
// the watch loop) whenever the directory changes; Watch itself never
// re-reads scripts; Runner.Run always stats the hook path fresh, so the
// only thing Watch needs to do is keep the directory registered and notify
// an observer that something changed. Returns once ctx is canceled.
func (r *Runner) Watch(ctx context.Context, onChange func(name string)) error {
	if err := os.MkdirAll(r.HooksDir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(r.HooksDir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if onChange != nil {
				onChange(ev.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}
}
