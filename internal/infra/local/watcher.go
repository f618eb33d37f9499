package local

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"toolpak/internal/domain"
)

const refreshDebounce = 200 * time.Millisecond

// Watcher maintains a snapshot of the unpackaged tool directories under the
// local tools root, refreshed when the filesystem changes underneath it.
// A tool directory counts as a tool once it carries a config.json.
type Watcher struct {
	logger *zap.Logger
	root   string

	mu    sync.RWMutex
	tools map[string]domain.ToolConfig

	watchOnce sync.Once
}

func NewWatcher(root string, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		logger: logger.Named("local_tools"),
		root:   root,
		tools:  make(map[string]domain.ToolConfig),
	}
}

func (w *Watcher) Root() string {
	return w.root
}

// Refresh rescans the local tools root. A missing root is not an error; it
// simply yields an empty snapshot.
func (w *Watcher) Refresh() error {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		if os.IsNotExist(err) {
			w.replace(map[string]domain.ToolConfig{})
			return nil
		}
		return err
	}
	tools := make(map[string]domain.ToolConfig)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(w.root, entry.Name(), domain.ConfigFileName))
		if err != nil {
			continue
		}
		var cfg domain.ToolConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			w.logger.Warn("skipping local tool with malformed config",
				zap.String("tool", entry.Name()),
				zap.Error(err),
			)
			continue
		}
		tools[entry.Name()] = cfg
	}
	w.replace(tools)
	return nil
}

// Tools returns the names in the current snapshot, sorted.
func (w *Watcher) Tools() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.tools))
	for name := range w.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the parsed config of a local tool, if present.
func (w *Watcher) Lookup(name string) (domain.ToolConfig, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cfg, ok := w.tools[name]
	return cfg, ok
}

// Start begins watching the root for changes. Safe to call more than once;
// only the first call starts the loop.
func (w *Watcher) Start(ctx context.Context) {
	w.watchOnce.Do(func() {
		go w.run(ctx)
	})
}

func (w *Watcher) run(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("local tools watcher failed", zap.Error(err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.root); err != nil {
		w.logger.Warn("local tools watcher add failed", zap.String("path", w.root), zap.Error(err))
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-watcher.Errors:
			if err != nil {
				w.logger.Warn("local tools watcher error", zap.Error(err))
			}
		case <-watcher.Events:
			if timer == nil {
				timer = time.NewTimer(refreshDebounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(refreshDebounce)
		case <-timerChan(timer):
			timer = nil
			if err := w.Refresh(); err != nil {
				w.logger.Warn("local tools refresh failed", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) replace(tools map[string]domain.ToolConfig) {
	w.mu.Lock()
	w.tools = tools
	w.mu.Unlock()
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
