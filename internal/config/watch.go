package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watch reloads the refresh section when the config file changes on disk
// and reports the new values through onReload. Other sections require a
// restart. Blocks until ctx is done.
func (c *Config) Watch(ctx context.Context, path string, onReload func(RefreshConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace the file, which drops a
	// watch registered on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(path)

	var debounce *time.Timer
	reload := func() {
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(reloadDebounce, func() {
			fresh, err := Load(path)
			if err != nil {
				slog.Warn("config reload failed", "path", path, "error", err)
				return
			}
			c.SetRefresh(fresh.Refresh)
			slog.Info("config reloaded",
				"list_interval_sec", fresh.Refresh.ListIntervalSec,
				"thread_interval_sec", fresh.Refresh.ThreadIntervalSec)
			if onReload != nil {
				onReload(fresh.Refresh)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if strings.HasSuffix(ev.Name, base) && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
