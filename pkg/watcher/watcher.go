package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ritzau/deps-builder/pkg/finder"
	"github.com/ritzau/deps-builder/pkg/logging"
	"github.com/ritzau/deps-builder/pkg/moduleyaml"
)

// ChangeType represents the type of file change detected
type ChangeType int

const (
	// ChangeTypeModuleFile is an edited, created or removed module.yaml
	ChangeTypeModuleFile ChangeType = iota
	// ChangeTypeCheckout is a moved HEAD, i.e. a module switched revision
	ChangeTypeCheckout
	// ChangeTypeModuleDir is a module directory appearing in or leaving the workspace
	ChangeTypeModuleDir
)

func (t ChangeType) String() string {
	switch t {
	case ChangeTypeModuleFile:
		return "module-file"
	case ChangeTypeCheckout:
		return "checkout"
	case ChangeTypeModuleDir:
		return "module-dir"
	}
	return fmt.Sprintf("ChangeType(%d)", int(t))
}

// ChangeEvent represents a batch of file system changes
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

// flushDelay batches the burst of events a single save or checkout produces
const flushDelay = 100 * time.Millisecond

// FileWatcher watches a workspace of module checkouts
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	workspace string
	events    chan ChangeEvent
	done      chan struct{}
	stopOnce  sync.Once
}

// NewFileWatcher creates a new file system watcher for a workspace
func NewFileWatcher(workspace string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher:   watcher,
		workspace: workspace,
		events:    make(chan ChangeEvent, 100),
		done:      make(chan struct{}),
	}

	return fw, nil
}

// Start begins watching for file changes
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := fw.watcher.Add(fw.workspace); err != nil {
		return fmt.Errorf("failed to watch workspace: %w", err)
	}

	modules, err := finder.FindModules(fw.workspace)
	if err != nil {
		return fmt.Errorf("failed to list workspace: %w", err)
	}
	for _, m := range modules {
		fw.watchModule(filepath.Join(fw.workspace, m))
	}

	logging.Info("started watching workspace", "path", fw.workspace, "modules", len(modules))

	// Process events
	go fw.processEvents(ctx)

	return nil
}

// watchModule watches a module directory for its module.yaml and its .git directory for HEAD moves
func (fw *FileWatcher) watchModule(dir string) {
	if err := fw.watcher.Add(dir); err != nil {
		logging.Warn("failed to watch module", "path", dir, "error", err)
		return
	}
	gitDir := filepath.Join(dir, ".git")
	if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
		if err := fw.watcher.Add(gitDir); err != nil {
			logging.Warn("failed to watch git directory", "path", gitDir, "error", err)
		}
	}
}

// classify maps a raw event to a change type; ok is false for irrelevant files
func (fw *FileWatcher) classify(event fsnotify.Event) (ChangeType, bool) {
	name := filepath.Base(event.Name)
	parent := filepath.Dir(event.Name)

	switch {
	case name == moduleyaml.FileName:
		return ChangeTypeModuleFile, true
	case name == "HEAD" && filepath.Base(parent) == ".git":
		return ChangeTypeCheckout, true
	case filepath.Clean(parent) == filepath.Clean(fw.workspace) && !strings.HasPrefix(name, "."):
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				fw.watchModule(event.Name)
				return ChangeTypeModuleDir, true
			}
			return 0, false
		}
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			return ChangeTypeModuleDir, true
		}
	}
	return 0, false
}

// processEvents processes file system events and batches them by type
func (fw *FileWatcher) processEvents(ctx context.Context) {
	// Batch events to avoid sending one event per file
	pending := make(map[ChangeType][]string)

	flushTimer := time.NewTimer(flushDelay)
	flushTimer.Stop()

	flush := func() {
		for _, t := range []ChangeType{ChangeTypeModuleDir, ChangeTypeModuleFile, ChangeTypeCheckout} {
			if paths := pending[t]; len(paths) > 0 {
				fw.events <- ChangeEvent{Type: t, Paths: paths, Timestamp: time.Now()}
			}
		}
		pending = make(map[ChangeType][]string)
	}

	defer close(fw.events)
	for {
		select {
		case <-ctx.Done():
			fw.Stop()
			return

		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if t, relevant := fw.classify(event); relevant {
				pending[t] = append(pending[t], event.Name)
				flushTimer.Reset(flushDelay)
			}

		case <-flushTimer.C:
			flush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events. It is closed when watching stops.
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Stop stops the file watcher
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.done)
		err = fw.watcher.Close()
	})
	return err
}
