// Package models defines the domain types for relnotes.
package models

import (
	"encoding/json"
	"math"
	"time"
)

// Note is a user-authored document stored as {id}.json inside a mount.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NoteMetadata is the lightweight part of a note carried by tree nodes.
type NoteMetadata struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Node types.
const (
	NodeFolder = "folder"
	NodeNote   = "note"
)

// DirectoryNode is one folder or note in a mount's directory tree.
// Trees are built fresh from disk and never persisted.
type DirectoryNode struct {
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	FullPath string           `json:"fullPath"`
	Note     *NoteMetadata    `json:"note,omitempty"`
	Children []*DirectoryNode `json:"children,omitempty"`
}

// IsNote reports whether the node is a note with usable metadata.
func (n *DirectoryNode) IsNote() bool {
	return n.Type == NodeNote && n.Note != nil && n.Note.ID != ""
}

// EmbeddingSchemaVersion is the current sidecar schema version.
const EmbeddingSchemaVersion = 1

// EmbeddingRecord is the persisted sidecar for one note.
type EmbeddingRecord struct {
	Version    int       `json:"version"`
	NoteID     string    `json:"noteId,omitempty"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Vector     []float32 `json:"vector"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SimilarNote is a note summary augmented with its similarity score.
type SimilarNote struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	ContentSnippet string  `json:"contentSnippet"`
	Score          float64 `json:"score"`
}

// MarshalJSON encodes a non-finite score as null, which encoding/json
// cannot represent otherwise.
func (s SimilarNote) MarshalJSON() ([]byte, error) {
	type plain SimilarNote
	if math.IsInf(s.Score, 0) || math.IsNaN(s.Score) {
		return json.Marshal(struct {
			plain
			Score *float64 `json:"score"`
		}{plain: plain(s)})
	}
	return json.Marshal(plain(s))
}
