package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/relnotes/internal/apperr"
	"github.com/starford/relnotes/internal/models"
	"github.com/starford/relnotes/internal/storage"
)

func discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// watcherTestEnv sets up a mount, its storage and a DB for watcher tests.
func watcherTestEnv(t *testing.T) (*storage.FS, *storage.Mounts, *DB) {
	t.Helper()
	mounts, err := storage.NewMounts(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return mounts.List()[0], mounts, testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func writeRecord(t *testing.T, fs *storage.FS, dir, id string) string {
	t.Helper()
	rel, err := fs.WriteNote(dir, &models.Note{ID: id, Title: "Title " + id})
	if err != nil {
		t.Fatal(err)
	}
	abs, _ := fs.Abs(rel)
	return abs
}

func indexed(db *DB, id string) bool {
	_, err := db.GetNote(id)
	return err == nil
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	fs, mounts, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, mounts, discard(), func(kind, id, path string) {
		mu.Lock()
		events = append(events, kind+":"+id)
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	writeRecord(t, fs, "", "new")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexed(db, "new")
	}, "new note not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:new" || e == "updated:new" {
				return true
			}
		}
		return false
	}, "expected callback for new")
}

func TestWatcher_IgnoresSidecars(t *testing.T) {
	fs, mounts, db := watcherTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, db, mounts, discard(), nil)
	time.Sleep(100 * time.Millisecond)

	os.WriteFile(filepath.Join(fs.Root(), "x"+storage.EmbeddingExt), []byte(`{"version":1}`), 0o644)
	writeRecord(t, fs, "", "marker")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool { return indexed(db, "marker") }, "marker not indexed")
	if indexed(db, "x") || indexed(db, "x.embedding") {
		t.Error("sidecar must not be catalogued")
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	fs, mounts, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, mounts, discard(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.MkdirAll(filepath.Join(fs.Root(), "subdir"), 0o755)
	time.Sleep(100 * time.Millisecond)

	writeRecord(t, fs, "subdir", "deep")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexed(db, "deep")
	}, "note in new subdir not indexed by watcher")
}

func TestWatcher_DeleteRemovesRowAndSidecar(t *testing.T) {
	fs, mounts, db := watcherTestEnv(t)

	path := writeRecord(t, fs, "", "del")
	sidecar := filepath.Join(fs.Root(), "del"+storage.EmbeddingExt)
	os.WriteFile(sidecar, []byte(`{}`), 0o644)
	Sync(db, mounts, discard())
	if !indexed(db, "del") {
		t.Fatal("precondition: note should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, db, mounts, discard(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(path)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetNote("del")
		return errors.Is(err, apperr.ErrNotFound)
	}, "deleted note still in index")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := os.Stat(sidecar)
		return errors.Is(err, os.ErrNotExist)
	}, "sidecar should be removed with its note")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	fs, mounts, db := watcherTestEnv(t)

	old := writeRecord(t, fs, "", "mv")
	Sync(db, mounts, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, db, mounts, discard(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.MkdirAll(filepath.Join(fs.Root(), "moved"), 0o755)
	time.Sleep(100 * time.Millisecond)
	newPath := filepath.Join(fs.Root(), "moved", "mv.json")
	_ = os.Rename(old, newPath)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		r, err := db.GetNote("mv")
		return err == nil && r.Path == newPath
	}, "rename reconciliation failed: note should point at its new path")
}

func TestWatcher_MultipleMountsAndAddRoot(t *testing.T) {
	fs, mounts, db := watcherTestEnv(t)
	w, err := NewWatcher(db, mounts, discard(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	second, err := mounts.Add(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AddRoot(second.Root()); err != nil {
		t.Fatal(err)
	}

	writeRecord(t, fs, "", "in-first")
	writeRecord(t, second, "", "in-second")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexed(db, "in-first") && indexed(db, "in-second")
	}, "notes in both mounts should be indexed")

	r, _ := db.GetNote("in-second")
	if r != nil && r.Root != second.Root() {
		t.Errorf("root = %s, want %s", r.Root, second.Root())
	}

	w.RemoveRoot(second.Root())
	for _, p := range w.fsw.WatchList() {
		if p == second.Root() {
			t.Error("removed root still watched")
		}
	}
}
