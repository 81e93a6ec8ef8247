// Package watch monitors the kotlin-ls config file and triggers a
// callback when it changes. Changes that alter the project context
// force an analyzer restart; the debouncer absorbs the write bursts
// editors produce when saving.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ConfigWatcher monitors the config file names in a directory.
type ConfigWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	dir       string
	names     map[string]struct{}
	onChange  func()
	log       *zap.Logger
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewConfigWatcher creates a watcher for the given config file names
// (e.g. kotlin-ls.yml, kotlin-ls.yaml) inside dir.
func NewConfigWatcher(dir string, names []string, log *zap.Logger, onChange func()) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	nameSet := make(map[string]struct{}, len(names))
	for _, n := range names {
		nameSet[n] = struct{}{}
	}

	cw := &ConfigWatcher{
		watcher:   watcher,
		debouncer: newDebouncer(200 * time.Millisecond),
		dir:       dir,
		names:     nameSet,
		onChange:  onChange,
		log:       log.Named("watch"),
		stopChan:  make(chan struct{}),
	}
	cw.debouncer.callback = cw.onChange
	return cw, nil
}

// Start begins watching. The parent directory is watched rather than
// the file itself so atomic-rename saves are still observed.
func (cw *ConfigWatcher) Start() error {
	if err := cw.watcher.Add(cw.dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", cw.dir, err)
	}

	cw.wg.Add(1)
	go cw.watch()
	return nil
}

// Stop stops the watcher.
func (cw *ConfigWatcher) Stop() error {
	select {
	case <-cw.stopChan:
		return nil
	default:
		close(cw.stopChan)
	}
	cw.wg.Wait()
	cw.debouncer.stop()
	return cw.watcher.Close()
}

// watch is the main event loop.
func (cw *ConfigWatcher) watch() {
	defer cw.wg.Done()

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if _, watched := cw.names[filepath.Base(event.Name)]; !watched {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				cw.log.Debug("config file changed", zap.String("file", event.Name))
				cw.debouncer.trigger()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.Warn("watch error", zap.Error(err))

		case <-cw.stopChan:
			return
		}
	}
}

// debouncer coalesces change bursts into one callback after a delay.
type debouncer struct {
	duration time.Duration
	timer    *time.Timer
	mutex    sync.Mutex
	callback func()
	stopped  bool
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{duration: duration}
}

func (d *debouncer) trigger() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, func() {
		d.mutex.Lock()
		cb := d.callback
		stopped := d.stopped
		d.mutex.Unlock()
		if cb != nil && !stopped {
			cb()
		}
	})
}

func (d *debouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
