// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// Similarity search taxonomy.
	ErrEmbeddingFailed   = errors.New("embedding generation failed")
	ErrCorruptEmbedding  = errors.New("corrupt or missing embedding")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrSearchFailed      = errors.New("similarity search failed")
	ErrTimeout           = errors.New("operation timed out")
)
