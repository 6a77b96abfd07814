package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ritzau/emit-scheduler/pkg/finder"
	"github.com/ritzau/emit-scheduler/pkg/logging"
)

// ChangeType classifies a file system change by how much of the project it
// can invalidate.
type ChangeType int

const (
	// ChangeTypeManifest is a change to the project manifest.
	ChangeTypeManifest ChangeType = iota
	// ChangeTypeDirectory is a directory created, removed, or renamed; the
	// file set has to be rediscovered.
	ChangeTypeDirectory
	// ChangeTypeSource is a source file written, created, or removed.
	ChangeTypeSource
)

func (t ChangeType) String() string {
	switch t {
	case ChangeTypeManifest:
		return "manifest"
	case ChangeTypeDirectory:
		return "directory"
	default:
		return "source"
	}
}

// ChangeEvent is one or more changes of the same type.
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

// FileWatcher watches a workspace's source directories and its manifest.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	root     string
	manifest string
	skip     map[string]bool
	watched  map[string]bool
	events   chan ChangeEvent
	logger   *logging.Logger
}

// NewFileWatcher creates a watcher for root. skip names directories,
// relative to root, that are never watched, such as the output directory.
func NewFileWatcher(root, manifest string, skip ...string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher:  watcher,
		root:     filepath.Clean(root),
		manifest: filepath.Clean(manifest),
		skip:     make(map[string]bool),
		watched:  make(map[string]bool),
		events:   make(chan ChangeEvent, 100),
		logger:   logging.New("watcher"),
	}
	for _, dir := range skip {
		if dir != "" {
			fw.skip[filepath.Join(fw.root, dir)] = true
		}
	}
	return fw, nil
}

// Start watches every source directory and the manifest's directory, then
// forwards classified events until ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := fw.watchTree(fw.root); err != nil {
		fw.watcher.Close()
		return err
	}
	if dir := filepath.Dir(fw.manifest); !fw.watched[dir] {
		if err := fw.add(dir); err != nil {
			fw.logger.Warn("failed to watch manifest directory", "path", dir, "error", err)
		}
	}

	fw.logger.Info("started watching workspace", "path", fw.root, "directories", len(fw.watched))
	go fw.processEvents(ctx)
	return nil
}

func (fw *FileWatcher) ignored(path, name string) bool {
	if path == fw.root {
		return false
	}
	return name == "node_modules" || strings.HasPrefix(name, ".") || fw.skip[path]
}

// watchTree adds dir and every directory below it.
func (fw *FileWatcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("failed to walk workspace: %w", err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if fw.ignored(path, d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.add(path); err != nil {
			fw.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (fw *FileWatcher) add(dir string) error {
	if err := fw.watcher.Add(dir); err != nil {
		return err
	}
	fw.watched[dir] = true
	return nil
}

// classify maps an fsnotify event to a change, or reports false when the
// event is irrelevant. New directories are watched as a side effect.
func (fw *FileWatcher) classify(event fsnotify.Event) (ChangeType, bool) {
	path := filepath.Clean(event.Name)
	if path == fw.manifest {
		return ChangeTypeManifest, true
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if fw.ignored(path, info.Name()) {
				return 0, false
			}
			if err := fw.watchTree(path); err != nil {
				fw.logger.Warn("failed to watch new directory", "path", path, "error", err)
			}
			return ChangeTypeDirectory, true
		}
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		if fw.watched[path] {
			delete(fw.watched, path)
			return ChangeTypeDirectory, true
		}
	}

	if finder.IsSourceFile(filepath.Base(path)) && !event.Has(fsnotify.Chmod) {
		return ChangeTypeSource, true
	}
	return 0, false
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)
	defer fw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			kind, relevant := fw.classify(event)
			if !relevant {
				continue
			}
			fw.logger.Trace("file system event", "path", event.Name, "op", event.Op.String(), "type", kind)

			select {
			case fw.events <- ChangeEvent{Type: kind, Paths: []string{event.Name}, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events. It is closed when the
// watcher stops.
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}
