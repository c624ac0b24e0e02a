// Package scanner walks mount trees and yields notes that have an embedding
// sidecar next to them.
package scanner

import (
	"iter"
	"path/filepath"

	"github.com/starford/relnotes/internal/embedstore"
	"github.com/starford/relnotes/internal/models"
)

// Candidate is a note with a sidecar, ready to be loaded and ranked.
type Candidate struct {
	NoteID        string
	NotePath      string
	EmbeddingPath string
}

// Scan walks roots depth-first in declaration order and yields every note
// whose sidecar exists. Notes without one, or whose id cannot name a file
// next to the note, are silently skipped. Each range
// over the result walks the trees again.
func Scan(roots []*models.DirectoryNode, exists func(path string) bool) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		for _, root := range roots {
			if !walk(root, exists, yield) {
				return
			}
		}
	}
}

func walk(n *models.DirectoryNode, exists func(string) bool, yield func(Candidate) bool) bool {
	if n == nil {
		return true
	}
	if n.IsNote() {
		if !embedstore.ValidID(n.Note.ID) {
			return true
		}
		emb := embedstore.PathFor(filepath.Dir(n.FullPath), n.Note.ID)
		if exists(emb) {
			if !yield(Candidate{NoteID: n.Note.ID, NotePath: n.FullPath, EmbeddingPath: emb}) {
				return false
			}
		}
		return true
	}
	for _, child := range n.Children {
		if !walk(child, exists, yield) {
			return false
		}
	}
	return true
}
