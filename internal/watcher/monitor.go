package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/blackwell-systems/stackup/internal/catalog"
	"github.com/blackwell-systems/stackup/internal/health"
	"github.com/blackwell-systems/stackup/internal/logging"
)

// DefaultReloadEvery is the minimum spacing between catalog reloads.
const DefaultReloadEvery = 2 * time.Second

// TargetLoader rebuilds the set of health targets, typically by reloading
// the catalog from disk.
type TargetLoader func(ctx context.Context) ([]health.Target, error)

// Watcher periodically checks unit health.
type Watcher struct {
	checker    *health.Checker
	catalogDir string
	interval   time.Duration
	load       TargetLoader
	limiter    *rate.Limiter

	// OnResults, when set, receives every round of results.
	OnResults func([]*health.Result)

	mu      sync.Mutex
	targets []health.Target
	rounds  int
	reloads int
}

// New creates a watcher checking every interval.
func New(checker *health.Checker, catalogDir string, interval time.Duration, load TargetLoader) *Watcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Watcher{
		checker:    checker,
		catalogDir: catalogDir,
		interval:   interval,
		load:       load,
		limiter:    rate.NewLimiter(rate.Every(DefaultReloadEvery), 1),
	}
}

// SetReloadLimit changes how often catalog changes may trigger a reload.
func (w *Watcher) SetReloadLimit(every time.Duration) {
	w.limiter = rate.NewLimiter(rate.Every(every), 1)
}

// Run checks immediately, then on every tick and after each catalog
// change, until ctx is done. A failed reload keeps the previous targets.
func (w *Watcher) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)

	targets, err := w.load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load health targets: %w", err)
	}
	w.setTargets(targets)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if w.catalogDir != "" {
		if err := fsw.Add(w.catalogDir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", w.catalogDir, err)
		}
	}

	log.Info("watcher started", "interval", w.interval, "catalog", w.catalogDir, "units", len(targets))
	w.check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	reload := time.NewTimer(0)
	if !reload.Stop() {
		<-reload.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			log.Info("watcher stopped", "rounds", w.Rounds())
			return nil

		case <-ticker.C:
			w.check(ctx)

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !IsCatalogFile(ev.Name) || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			log.Debug("catalog changed", "file", ev.Name, "op", ev.Op.String())
			if !pending {
				pending = true
				reload.Reset(w.limiter.Reserve().Delay())
			}

		case <-reload.C:
			pending = false
			targets, err := w.load(ctx)
			if err != nil {
				log.Warn("catalog reload failed, keeping previous units", "error", err)
				continue
			}
			w.setTargets(targets)
			w.mu.Lock()
			w.reloads++
			w.mu.Unlock()
			log.Info("catalog reloaded", "units", len(targets))
			w.check(ctx)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	results, err := w.checker.CheckAll(ctx, w.Targets())
	if err != nil {
		if ctx.Err() == nil {
			logging.FromContext(ctx).Warn("health round failed", "error", err)
		}
		return
	}

	w.mu.Lock()
	w.rounds++
	w.mu.Unlock()

	for _, r := range results {
		if !r.Up() {
			logging.FromContext(ctx).Warn("unit not healthy", "unit", r.Unit, "status", r.Status, "detail", r.Detail)
		}
	}
	if w.OnResults != nil {
		w.OnResults(results)
	}
}

func (w *Watcher) setTargets(t []health.Target) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.targets = t
}

// Targets returns the current targets.
func (w *Watcher) Targets() []health.Target {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]health.Target(nil), w.targets...)
}

// Rounds returns how many check rounds have completed.
func (w *Watcher) Rounds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rounds
}

// Reloads returns how many times targets were rebuilt after a change.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// IsCatalogFile reports whether path is one of the files a catalog is
// loaded from.
func IsCatalogFile(path string) bool {
	switch filepath.Base(path) {
	case catalog.CatalogFile, catalog.TableFile:
		return true
	}
	return false
}
