package taskboard

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultWatchInterval is the board directory polling cadence.
const DefaultWatchInterval = 200 * time.Millisecond

// Watcher polls the board directory and reloads board files edited outside
// the engine. A board that fails to parse is logged and skipped, leaving the
// engine's last good model for that agent untouched.
type Watcher struct {
	engine   *Engine
	interval time.Duration
}

// NewWatcher creates a watcher over the engine's board directory. An
// interval of zero uses DefaultWatchInterval.
func NewWatcher(engine *Engine, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{engine: engine, interval: interval}
}

// Run polls until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Scan()
		}
	}
}

// Scan performs one polling pass: reload changed or new board files and drop
// tasks for boards whose files were removed.
func (w *Watcher) Scan() {
	e := w.engine

	entries, err := os.ReadDir(e.dir)
	if err != nil {
		log.Printf("[TaskBoard] Watch failed to read board directory: %v", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	changed := false
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(e.dir, entry.Name())
		seen[path] = true

		info, err := entry.Info()
		if err != nil {
			continue
		}
		last, known := e.fileStates[path]
		if known && last.modTime.Equal(info.ModTime()) && last.size == info.Size() {
			continue
		}

		if err := e.loadBoardFile(path); err != nil {
			// Keep the last good model; the engine's next own write
			// restores the file to canonical form.
			log.Printf("[TaskBoard] Ignoring unparseable board %s: %v", entry.Name(), err)
			e.recordFileState(path)
			continue
		}
		changed = true
		log.Printf("[TaskBoard] Reloaded board %s", entry.Name())
	}

	// A deleted board file drops that agent's tasks from the model.
	for path := range e.fileStates {
		if seen[path] {
			continue
		}
		agentID := strings.TrimSuffix(filepath.Base(path), ".md")
		for id, task := range e.tasks {
			if task.AgentID == agentID {
				delete(e.tasks, id)
			}
		}
		changed = true
		delete(e.fileStates, path)
		log.Printf("[TaskBoard] Board %s removed, dropped its tasks", filepath.Base(path))
	}

	// An external edit can complete or delete a dependency that lives on a
	// different board than its dependents.
	if changed {
		if touched := e.resyncDerivedLocked(); len(touched) > 0 {
			if err := e.persistAgentsLocked(touched); err != nil {
				log.Printf("[TaskBoard] Failed to persist re-derived boards: %v", err)
			}
		}
	}
}
