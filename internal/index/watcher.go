package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/relnotes/internal/embedstore"
	"github.com/starford/relnotes/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventCallback is called after a watcher-driven catalog change.
type EventCallback func(kind, noteID, path string)

// Watcher keeps the catalog in step with note records across all mounts.
type Watcher struct {
	db     *DB
	mounts *storage.Mounts
	store  *embedstore.Store
	logger *slog.Logger
	cb     EventCallback
	fsw    *fsnotify.Watcher
}

// NewWatcher creates a watcher over every current mount. Call Run to start
// processing events and Close when done.
func NewWatcher(db *DB, mounts *storage.Mounts, logger *slog.Logger, cb EventCallback) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{db: db, mounts: mounts, store: embedstore.New(), logger: logger, cb: cb, fsw: fsw}
	for _, m := range mounts.List() {
		if err := addDirsRecursive(fsw, m.Root()); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// AddRoot starts watching a newly mounted root.
func (w *Watcher) AddRoot(root string) error {
	return addDirsRecursive(w.fsw, root)
}

// RemoveRoot stops watching root and everything below it.
func (w *Watcher) RemoveRoot(root string) {
	for _, p := range w.fsw.WatchList() {
		if p == root || strings.HasPrefix(p, root+string(os.PathSeparator)) {
			_ = w.fsw.Remove(p)
		}
	}
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Watch is a convenience that creates a Watcher, runs it until ctx is
// cancelled and closes it.
func Watch(ctx context.Context, db *DB, mounts *storage.Mounts, logger *slog.Logger, cb EventCallback) error {
	w, err := NewWatcher(db, mounts, logger, cb)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Run(ctx)
}

// Run processes file change events until ctx is cancelled.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass that removes stale
// catalog entries whose records no longer exist on disk. Removing a note
// record also removes its embedding sidecar.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watcher: started", slog.Int("mounts", len(w.mounts.List())))

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			w.reconcile()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev, scheduleReconcile)

		case watchErr, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event, scheduleReconcile func()) {
	absPath := ev.Name

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(w.fsw, absPath); addErr != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", absPath),
					slog.String("error", addErr.Error()))
			} else {
				w.logger.Debug("watcher: watching new dir", slog.String("path", absPath))
			}
			w.indexNewDir(absPath)
			return
		}
	}

	// Only note records from here on; sidecars and temp files are ignored.
	if !storage.IsNoteFile(filepath.Base(absPath)) {
		return
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		row, err := IndexFile(w.db, w.mounts, absPath)
		if errors.Is(err, ErrShadowed) {
			w.logger.Debug("watcher: duplicate id skipped", slog.String("path", absPath))
			return
		}
		if err != nil {
			w.logger.Warn("watcher: index failed", slog.String("path", absPath), slog.String("error", err.Error()))
			return
		}
		kind := EventUpdated
		if ev.Op&fsnotify.Create != 0 {
			kind = EventCreated
		}
		w.logger.Debug("watcher: indexed", slog.String("path", absPath), slog.String("op", kind))
		w.emit(kind, row.ID, absPath)

	case ev.Op&fsnotify.Remove != 0:
		id, err := w.db.DeleteByPath(absPath)
		if err != nil {
			w.logger.Warn("watcher: delete failed", slog.String("path", absPath), slog.String("error", err.Error()))
			return
		}
		if id == "" {
			id = storage.NoteIDFromFile(filepath.Base(absPath))
		}
		if err := w.store.Delete(id, filepath.Dir(absPath)); err != nil {
			w.logger.Warn("watcher: sidecar delete failed", slog.String("note_id", id), slog.String("error", err.Error()))
		}
		w.logger.Debug("watcher: deleted", slog.String("path", absPath))
		w.emit(EventDeleted, id, absPath)
		// A copy of the same id in a later mount takes over.
		scheduleReconcile()

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify fires Rename on the OLD path only. The new path arrives
		// as a separate Create when it stays within a watched dir. The
		// sidecar is left alone because the record may only have moved.
		id, err := w.db.DeleteByPath(absPath)
		if err != nil {
			w.logger.Warn("watcher: rename delete failed", slog.String("path", absPath), slog.String("error", err.Error()))
		} else if id != "" {
			w.logger.Debug("watcher: rename old deleted", slog.String("path", absPath))
			w.emit(EventDeleted, id, absPath)
		}
		scheduleReconcile()
	}
}

// reconcile does a lightweight sync using batch lookups: it removes catalog
// entries without a record on disk and indexes records the catalog lacks.
func (w *Watcher) reconcile() {
	checksums, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string)
	for _, m := range w.mounts.List() {
		metas, err := m.List("")
		if err != nil {
			w.logger.Warn("reconcile: list failed", slog.String("root", m.Root()), slog.String("error", err.Error()))
			return
		}
		for _, meta := range metas {
			if abs, err := m.Abs(meta.Path); err == nil {
				disk[abs] = meta.Checksum
			}
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if id, err := w.db.DeleteByPath(p); err == nil && id != "" {
			w.logger.Debug("reconcile: removed stale", slog.String("path", p))
			w.emit(EventDeleted, id, p)
		}
	}

	for p, cs := range disk {
		if checksums[p] == cs {
			continue
		}
		if row, err := IndexFile(w.db, w.mounts, p); err == nil {
			w.logger.Debug("reconcile: indexed new", slog.String("path", p))
			w.emit(EventCreated, row.ID, p)
		}
	}
}

// indexNewDir indexes any note records found in a newly created directory.
func (w *Watcher) indexNewDir(dirPath string) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsNoteFile(d.Name()) {
			return nil
		}
		if row, idxErr := IndexFile(w.db, w.mounts, path); idxErr == nil {
			w.logger.Debug("watcher: indexed from new dir", slog.String("path", path))
			w.emit(EventCreated, row.ID, path)
		}
		return nil
	})
}

func (w *Watcher) emit(kind, id, path string) {
	if w.cb != nil {
		w.cb(kind, id, path)
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
