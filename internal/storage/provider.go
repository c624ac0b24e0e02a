// Package storage defines the note file-system abstraction over one or more
// mount roots.
package storage

import (
	"log/slog"
	"strings"

	"github.com/starford/relnotes/internal/models"
)

// File suffixes. Sidecars share the note suffix, so classification must check
// the longer compound suffix first.
const (
	NoteExt      = ".json"
	EmbeddingExt = ".embedding.json"
	tmpPrefix    = ".relnotes-tmp-"
)

// Provider is the interface for note file operations inside one mount.
// All paths are relative to the mount root.
type Provider interface {
	// Root returns the absolute mount root.
	Root() string
	// Tree builds the folder/note tree for the whole mount.
	Tree(logger *slog.Logger) (*models.DirectoryNode, error)
	// List returns metadata for every note record under dir.
	List(dir string) ([]FileMeta, error)
	// ReadNote reads and decodes the note record at path and returns it with
	// the checksum of the bytes it was decoded from.
	ReadNote(path string) (*models.Note, string, error)
	// WriteNote atomically writes note as {id}.json inside dir and returns its path.
	WriteNote(dir string, note *models.Note) (string, error)
	// Delete removes the file at path.
	Delete(path string) error
	// Mkdir creates dir and any missing parents.
	Mkdir(dir string) error
	// DeleteDir removes dir and everything below it. The root itself cannot be removed.
	DeleteDir(dir string) error
}

// IsNoteFile reports whether name is a primary note record.
func IsNoteFile(name string) bool {
	return strings.HasSuffix(name, NoteExt) &&
		!strings.HasSuffix(name, EmbeddingExt) &&
		!strings.HasPrefix(name, ".")
}

// IsEmbeddingFile reports whether name is an embedding sidecar.
func IsEmbeddingFile(name string) bool {
	return strings.HasSuffix(name, EmbeddingExt) && !strings.HasPrefix(name, ".")
}

// NoteIDFromFile returns the note id encoded in a record or sidecar file name.
func NoteIDFromFile(name string) string {
	if IsEmbeddingFile(name) {
		return strings.TrimSuffix(name, EmbeddingExt)
	}
	return strings.TrimSuffix(name, NoteExt)
}

// NoteFileName returns the record file name for id.
func NoteFileName(id string) string {
	return id + NoteExt
}
