package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/relnotes/internal/apperr"
	"github.com/starford/relnotes/internal/embedstore"
	"github.com/starford/relnotes/internal/index"
	"github.com/starford/relnotes/internal/models"
	"github.com/starford/relnotes/internal/storage"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	models.Note
	Path         string `json:"path"`
	Root         string `json:"root"`
	Checksum     string `json:"checksum"`
	HasEmbedding bool   `json:"hasEmbedding"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateInput describes a new note. Root selects the mount (first mount when
// empty) and Dir a folder relative to it.
type CreateInput struct {
	Root    string
	Dir     string
	Title   string
	Content string
	Tags    []string
}

// UpdateInput carries the fields to change; nil fields are kept.
type UpdateInput struct {
	Title   *string
	Content *string
	Tags    []string
	IfMatch string
}

// MountHook is told about mount roots added or removed at runtime.
type MountHook func(root string, added bool)

// Service coordinates storage, catalog and sidecar operations.
type Service struct {
	mounts  *storage.Mounts
	db      index.NoteIndex
	store   *embedstore.Store
	logger  *slog.Logger
	now     func() time.Time
	onMount MountHook
}

// NewService creates a new note service.
func NewService(mounts *storage.Mounts, db index.NoteIndex, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{mounts: mounts, db: db, store: embedstore.New(), logger: logger, now: time.Now}
}

// OnMountChange registers fn to follow runtime mount changes.
func (s *Service) OnMountChange(fn MountHook) {
	s.onMount = fn
}

// NotePath resolves a note id to the absolute path of its record. The
// catalog is consulted first; notes it has not seen yet are found by walking
// the mounts.
func (s *Service) NotePath(_ context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("note id is required: %w", apperr.ErrInvalidInput)
	}
	row, err := s.db.GetNote(id)
	if err == nil {
		if _, statErr := os.Stat(row.Path); statErr == nil {
			return row.Path, nil
		}
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}

	trees, err := s.mounts.Trees(s.logger)
	if err != nil {
		return "", err
	}
	if p := findInTree(trees, id); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("note %s: %w", id, apperr.ErrNotFound)
}

func findInTree(nodes []*models.DirectoryNode, id string) string {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if n.IsNote() && n.Note.ID == id {
			return n.FullPath
		}
		if p := findInTree(n.Children, id); p != "" {
			return p
		}
	}
	return ""
}

// GetNote reads a note record by id.
func (s *Service) GetNote(ctx context.Context, id string) (*NoteDetail, error) {
	path, err := s.NotePath(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(path)
}

// CreateNote writes a new note with a fresh id and catalogs it.
func (s *Service) CreateNote(_ context.Context, in CreateInput) (*NoteDetail, error) {
	fs, err := s.mount(in.Root)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	note := &models.Note{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(in.Title),
		Content:   in.Content,
		Tags:      in.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rel, err := fs.WriteNote(in.Dir, note)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	abs, _ := fs.Abs(rel)
	if _, err := index.IndexFile(s.db, s.mounts, abs); err != nil {
		return nil, err
	}
	s.logger.Info("note created", slog.String("note_id", note.ID), slog.String("path", abs))
	return s.detail(abs)
}

// UpdateNote rewrites a note with optimistic concurrency on the record
// checksum. The embedding sidecar is left untouched and may become stale.
func (s *Service) UpdateNote(ctx context.Context, id string, in UpdateInput) (*NoteDetail, error) {
	path, err := s.NotePath(ctx, id)
	if err != nil {
		return nil, err
	}
	fs, rel, ok := s.mounts.Locate(path)
	if !ok {
		return nil, fmt.Errorf("note %s is outside every mount: %w", id, apperr.ErrNotFound)
	}
	note, cs, err := fs.ReadNote(rel)
	if err != nil {
		return nil, notFound(id, err)
	}
	if in.IfMatch != "" && in.IfMatch != cs {
		return nil, apperr.ErrConflict
	}
	if in.Title != nil {
		note.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		note.Content = *in.Content
	}
	if in.Tags != nil {
		note.Tags = in.Tags
	}
	note.UpdatedAt = s.now().UTC()

	if _, err := fs.WriteNote(filepath.Dir(rel), note); err != nil {
		return nil, err
	}
	if _, err := index.IndexFile(s.db, s.mounts, path); err != nil {
		return nil, err
	}
	return s.detail(path)
}

// DeleteNote removes the note record, its embedding sidecar and its catalog row.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	path, err := s.NotePath(ctx, id)
	if err != nil {
		return err
	}
	fs, rel, ok := s.mounts.Locate(path)
	if !ok {
		return fmt.Errorf("note %s is outside every mount: %w", id, apperr.ErrNotFound)
	}
	if err := fs.Delete(rel); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	if err := s.store.Delete(id, filepath.Dir(path)); err != nil {
		return err
	}
	if err := s.db.DeleteNote(id); err != nil {
		return err
	}
	s.logger.Info("note deleted", slog.String("note_id", id))
	return nil
}

// ListNotes returns a page of catalogued notes.
func (s *Service) ListNotes(_ context.Context, limit, offset int) ([]NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			ID:        r.ID,
			Title:     r.Title,
			Path:      r.Path,
			Tags:      nonNilSlice(r.Tags),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the catalog.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Tree builds a fresh directory tree per mount.
func (s *Service) Tree(_ context.Context) ([]*models.DirectoryNode, error) {
	return s.mounts.Trees(s.logger)
}

// Mounts returns the mount roots in declaration order.
func (s *Service) Mounts(_ context.Context) []string {
	list := s.mounts.List()
	out := make([]string, len(list))
	for i, fs := range list {
		out[i] = fs.Root()
	}
	return out
}

// AddMount folds a directory into the corpus, persists it and catalogs its notes.
func (s *Service) AddMount(_ context.Context, path string) (string, error) {
	fs, err := s.mounts.Add(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	if err := s.db.AddMount(fs.Root()); err != nil {
		return "", err
	}
	if err := index.Sync(s.db, s.mounts, s.logger); err != nil {
		return "", err
	}
	if s.onMount != nil {
		s.onMount(fs.Root(), true)
	}
	s.logger.Info("mount added", slog.String("root", fs.Root()))
	return fs.Root(), nil
}

// RemoveMount drops a mount root and uncatalogs its notes. Files on disk are
// not touched.
func (s *Service) RemoveMount(_ context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	if !s.mounts.Remove(abs) {
		return fmt.Errorf("mount %s: %w", abs, apperr.ErrNotFound)
	}
	if _, err := s.db.RemoveMount(abs); err != nil {
		return err
	}
	if err := index.Sync(s.db, s.mounts, s.logger); err != nil {
		return err
	}
	if s.onMount != nil {
		s.onMount(abs, false)
	}
	s.logger.Info("mount removed", slog.String("root", abs))
	return nil
}

// CreateFolder creates dir, and any missing parents, inside a mount.
func (s *Service) CreateFolder(_ context.Context, root, dir string) error {
	fs, err := s.mount(root)
	if err != nil {
		return err
	}
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("folder path is required: %w", apperr.ErrInvalidInput)
	}
	if err := fs.Mkdir(dir); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	return nil
}

// DeleteFolder removes dir with every note and sidecar below it, then drops
// the vanished notes from the catalog. The mount root itself cannot be removed.
func (s *Service) DeleteFolder(_ context.Context, root, dir string) error {
	fs, err := s.mount(root)
	if err != nil {
		return err
	}
	abs, err := fs.Abs(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return fmt.Errorf("folder %s: %w", dir, apperr.ErrNotFound)
	}
	if err := fs.DeleteDir(dir); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	if err := index.Sync(s.db, s.mounts, s.logger); err != nil {
		return err
	}
	s.logger.Info("folder deleted", slog.String("root", fs.Root()), slog.String("dir", dir))
	return nil
}

func (s *Service) mount(root string) (*storage.FS, error) {
	if root == "" {
		list := s.mounts.List()
		if len(list) == 0 {
			return nil, fmt.Errorf("no mount configured: %w", apperr.ErrInvalidInput)
		}
		return list[0], nil
	}
	fs, ok := s.mounts.Get(root)
	if !ok {
		return nil, fmt.Errorf("mount %s: %w", root, apperr.ErrNotFound)
	}
	return fs, nil
}

func (s *Service) detail(path string) (*NoteDetail, error) {
	note, cs, err := storage.ReadNoteSum(path)
	if err != nil {
		return nil, notFound(filepath.Base(path), err)
	}
	d := &NoteDetail{
		Note:         *note,
		Path:         path,
		Checksum:     cs,
		HasEmbedding: s.store.Exists(embedstore.PathFor(filepath.Dir(path), note.ID)),
	}
	if fs, _, ok := s.mounts.Locate(path); ok {
		d.Root = fs.Root()
	}
	d.Tags = nonNilSlice(d.Tags)
	return d, nil
}

func notFound(id string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("note %s: %w", id, apperr.ErrNotFound)
	}
	return err
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
