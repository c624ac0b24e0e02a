// Package embedstore persists one embedding sidecar per note, next to the
// note record, as {noteId}.embedding.json.
package embedstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/relnotes/internal/apperr"
	"github.com/starford/relnotes/internal/models"
	"github.com/starford/relnotes/internal/storage"
)

// Store reads and writes embedding sidecars. It is stateless; the zero value
// is ready to use.
type Store struct {
	now func() time.Time
}

// New returns a Store.
func New() *Store {
	return &Store{now: time.Now}
}

// PathFor returns the sidecar path for noteID inside dir.
func PathFor(dir, noteID string) string {
	return filepath.Join(dir, noteID+storage.EmbeddingExt)
}

// ValidID reports whether id can name a sidecar file: it must be non-empty and
// must not contain a path separator or "..".
func ValidID(id string) bool {
	return id != "" && id != "." &&
		!strings.ContainsAny(id, `/\`) &&
		!strings.Contains(id, "..")
}

// Save writes the sidecar for noteID into dir, overwriting any existing one,
// and returns its path.
func (s *Store) Save(noteID, dir string, vector []float32, model string) (string, error) {
	if noteID == "" {
		return "", fmt.Errorf("embedstore: note id is required: %w", apperr.ErrInvalidInput)
	}
	if !ValidID(noteID) {
		return "", fmt.Errorf("embedstore: note id %q is not a file name: %w", noteID, apperr.ErrInvalidInput)
	}
	if len(vector) == 0 {
		return "", fmt.Errorf("embedstore: empty vector: %w", apperr.ErrInvalidInput)
	}
	now := time.Now
	if s != nil && s.now != nil {
		now = s.now
	}
	rec := models.EmbeddingRecord{
		Version:    models.EmbeddingSchemaVersion,
		NoteID:     noteID,
		Model:      model,
		Dimensions: len(vector),
		Vector:     vector,
		CreatedAt:  now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("embedstore: encode: %w", err)
	}
	path := PathFor(dir, noteID)
	if err := storage.AtomicWrite(path, data); err != nil {
		return "", fmt.Errorf("embedstore: save %s: %w", noteID, err)
	}
	return path, nil
}

// Exists reports whether a regular file exists at path.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Load reads and validates the sidecar at path.
func (s *Store) Load(path string) (*models.EmbeddingRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("embedstore: read %s: %w: %w", path, apperr.ErrCorruptEmbedding, err)
	}
	var rec models.EmbeddingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("embedstore: decode %s: %w: %w", path, apperr.ErrCorruptEmbedding, err)
	}
	if err := validate(&rec); err != nil {
		return nil, fmt.Errorf("embedstore: %s: %w: %w", path, apperr.ErrCorruptEmbedding, err)
	}
	return &rec, nil
}

// Delete removes the sidecar for noteID in dir. A missing sidecar is not an error.
func (s *Store) Delete(noteID, dir string) error {
	if !ValidID(noteID) {
		return nil
	}
	err := os.Remove(PathFor(dir, noteID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("embedstore: delete %s: %w", noteID, err)
	}
	return nil
}

func validate(rec *models.EmbeddingRecord) error {
	switch {
	case rec.Version != models.EmbeddingSchemaVersion:
		return fmt.Errorf("unsupported schema version %d", rec.Version)
	case len(rec.Vector) == 0:
		return errors.New("empty vector")
	case rec.Dimensions != len(rec.Vector):
		return fmt.Errorf("dimensions %d do not match vector length %d", rec.Dimensions, len(rec.Vector))
	}
	return nil
}
