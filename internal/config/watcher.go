package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Limits are the runtime-tunable request limits. They live in their own
// YAML file so operators can adjust them without a restart.
type Limits struct {
	// MaxThesisQuantity caps how many theses one plan may request.
	MaxThesisQuantity int `yaml:"max_thesis_quantity"`
	// MaxCategoriesPerConcept caps the graph size accepted at submission.
	MaxCategoriesPerConcept int `yaml:"max_categories_per_concept"`
	// MaxConcurrentAsyncPlans caps in-flight async submissions.
	MaxConcurrentAsyncPlans int `yaml:"max_concurrent_async_plans"`
}

// DefaultLimits returns the limits used when no limits file exists.
func DefaultLimits() Limits {
	return Limits{
		MaxThesisQuantity:       50,
		MaxCategoriesPerConcept: 100,
		MaxConcurrentAsyncPlans: 32,
	}
}

// Watcher watches the limits file and reloads it on change.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	mu       sync.RWMutex
	current  Limits
	onChange []func(Limits)
	logger   *zap.Logger
	stopCh   chan struct{}
}

// NewWatcher loads the limits file and begins watching it for changes. A
// missing file is not an error; defaults apply until it appears.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	current := DefaultLimits()
	if loaded, err := loadLimits(path); err == nil {
		current = loaded
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load limits: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory rather than the file so atomic saves (write to
	// temp, rename over) keep being observed.
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch limits directory: %w", err)
	}

	w := &Watcher{
		path:    path,
		watcher: fsWatcher,
		current: current,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

// Stop stops watching.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
}

// Limits returns the current limits.
func (w *Watcher) Limits() Limits {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked after every successful reload.
func (w *Watcher) OnChange(handler func(Limits)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, handler)
}

func (w *Watcher) watchLoop() {
	var debounce *time.Timer
	for {
		select {
		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("limits watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	limits, err := loadLimits(w.path)
	if err != nil {
		w.logger.Error("failed to reload limits, keeping current", zap.Error(err))
		return
	}
	if err := validateLimits(limits); err != nil {
		w.logger.Error("invalid limits, keeping current", zap.Error(err))
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = limits
	handlers := append([]func(Limits){}, w.onChange...)
	w.mu.Unlock()

	w.logger.Info("limits reloaded",
		zap.Int("max_thesis_quantity", limits.MaxThesisQuantity),
		zap.Int("max_categories_per_concept", limits.MaxCategoriesPerConcept),
		zap.Int("max_concurrent_async_plans", limits.MaxConcurrentAsyncPlans),
	)
	if old != limits {
		for _, handler := range handlers {
			go handler(limits)
		}
	}
}

func loadLimits(path string) (Limits, error) {
	limits := DefaultLimits()
	data, err := os.ReadFile(path)
	if err != nil {
		return limits, err
	}
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return limits, err
	}
	return limits, nil
}

func validateLimits(limits Limits) error {
	if limits.MaxThesisQuantity <= 0 {
		return fmt.Errorf("max_thesis_quantity must be positive")
	}
	if limits.MaxCategoriesPerConcept <= 0 {
		return fmt.Errorf("max_categories_per_concept must be positive")
	}
	if limits.MaxConcurrentAsyncPlans <= 0 {
		return fmt.Errorf("max_concurrent_async_plans must be positive")
	}
	return nil
}
