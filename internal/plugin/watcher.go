package plugin

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/berfenger/virtualdevices/internal/core/domain"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DEFAULT_DEBOUNCE = 500 * time.Millisecond

// Watcher reports plugin and mixin source changes in the loader's
// directories. Bursts of events on one file are debounced.
type Watcher struct {
	watcher  *fsnotify.Watcher
	loader   *Loader
	notify   func(domain.PluginChangedEvent)
	debounce time.Duration
	timers   map[string]*time.Timer
	mu       sync.Mutex
	stopped  bool
	done     chan struct{}
	logger   *zap.Logger
}

func NewWatcher(loader *Loader, notify func(domain.PluginChangedEvent), logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		loader:   loader,
		notify:   notify,
		debounce: DEFAULT_DEBOUNCE,
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
		logger:   logger.With(zap.String("component", "plugin_watcher")),
	}, nil
}

func (w *Watcher) Start() error {
	w.loader.ensureDirs()
	for _, d := range w.loader.dirs() {
		for _, dir := range []string{d.dir, filepath.Join(d.dir, MIXIN_DIR)} {
			if err := w.watcher.Add(dir); err != nil {
				return err
			}
			w.logger.Debug("plugin_watcher: watching", zap.String("dir", dir))
		}
	}
	go w.handleEvents()
	return nil
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()

	close(w.done)
	w.watcher.Close()
}

func (w *Watcher) handleEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, PLUGIN_EXT) || strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			w.debounceFile(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("plugin_watcher: error", zap.Error(err))
		}
	}
}

func (w *Watcher) debounceFile(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.fire(path)
	})
}

// fire reports a settled change. A timer that already fired when Stop ran
// reports nothing.
func (w *Watcher) fire(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	delete(w.timers, path)
	w.loader.Invalidate(path)
	w.notify(changeFor(path))
}

func changeFor(path string) domain.PluginChangedEvent {
	name := strings.TrimSuffix(filepath.Base(path), PLUGIN_EXT)
	return domain.PluginChangedEvent{
		Name:  name,
		Mixin: filepath.Base(filepath.Dir(path)) == MIXIN_DIR,
	}
}
