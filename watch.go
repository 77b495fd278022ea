package dnssd

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"

	"github.com/axondata/go-dnssd/internal/logging"
)

// configWatcher warns when the service table changes on disk. The table is
// loaded once per process, so a change only takes effect after a restart.
type configWatcher struct {
	path     string
	debounce time.Duration
	logger   *logging.Logger
	onChange func()
}

// start watches the config directory (editors often replace the file rather
// than write it in place) until sctx is stopping.
func (w *configWatcher) start(sctx *stopper.Context) error {
	dir := filepath.Dir(w.path)
	name := filepath.Base(w.path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	debounce := w.debounce
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	var mu sync.Mutex
	var debouncer *time.Timer

	notify := func() {
		if sctx.IsStopping() {
			return
		}
		w.logger.Warn("service table changed on disk; restart the service to apply it", "path", w.path)
		if w.onChange != nil {
			w.onChange()
		}
	}

	sctx.Go(func(sctx *stopper.Context) error {
		defer func() {
			mu.Lock()
			if debouncer != nil {
				debouncer.Stop()
			}
			mu.Unlock()
			_ = watcher.Close()
		}()

		for {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}

				mu.Lock()
				if debouncer != nil {
					debouncer.Stop()
				}
				debouncer = time.AfterFunc(debounce, notify)
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if err != nil {
					w.logger.Warn("config watch error", "error", err.Error())
				}
			}
		}
	})

	return nil
}
