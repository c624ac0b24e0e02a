// Package testutil provides shared test helpers for setting up mounts,
// databases and a deterministic embedding provider.
package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/relnotes/internal/apperr"
	"github.com/starford/relnotes/internal/embedstore"
	"github.com/starford/relnotes/internal/index"
	"github.com/starford/relnotes/internal/models"
	"github.com/starford/relnotes/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "relnotes-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestMount creates a temporary mount directory with its storage.FS.
func TestMount(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return fs.Root(), fs
}

// WriteNote stores a note with the given id, title and content under dir
// (relative to the mount) and returns the absolute record path.
func WriteNote(t *testing.T, fs *storage.FS, dir, id, title, content string) string {
	t.Helper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rel, err := fs.WriteNote(dir, &models.Note{ID: id, Title: title, Content: content, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatal(err)
	}
	abs, err := fs.Abs(rel)
	if err != nil {
		t.Fatal(err)
	}
	return abs
}

// WriteEmbedding stores a sidecar for the note whose record is at notePath.
func WriteEmbedding(t *testing.T, notePath, id string, vec []float32) string {
	t.Helper()
	path, err := embedstore.New().Save(id, filepath.Dir(notePath), vec, FakeModel)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

// Eventually polls fn until it returns true or the timeout expires.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// FakeModel is the model id reported by Embedder.
const FakeModel = "fake-embedding"

// Embedder is a deterministic in-memory embedding provider. Texts listed in
// Vectors get that vector; everything else goes through Fallback, or fails
// when Fallback is nil.
type Embedder struct {
	Vectors  map[string][]float32
	Fallback func(text string) []float32
	Err      error
	Dims     int
	Delay    time.Duration

	mu    sync.Mutex
	calls []string
}

// NewEmbedder returns an Embedder with an empty vector table.
func NewEmbedder() *Embedder {
	return &Embedder{Vectors: make(map[string][]float32)}
}

// Embed implements embedding.Provider.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, text)
	e.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return nil, errors.Join(apperr.ErrEmbeddingFailed, apperr.ErrInvalidInput)
	}
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return nil, errors.Join(apperr.ErrEmbeddingFailed, apperr.ErrTimeout, ctx.Err())
		}
	}
	if e.Err != nil {
		return nil, errors.Join(apperr.ErrEmbeddingFailed, e.Err)
	}
	if v, ok := e.Vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	if e.Fallback != nil {
		return e.Fallback(text), nil
	}
	return nil, errors.Join(apperr.ErrEmbeddingFailed, errors.New("no vector for text"))
}

// Model implements embedding.Provider.
func (e *Embedder) Model() string { return FakeModel }

// Dimensions implements embedding.Provider.
func (e *Embedder) Dimensions() int { return e.Dims }

// Calls returns the texts embedded so far.
func (e *Embedder) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}
