// Package similarity answers "which notes are like this text" by a linear
// scan over every persisted embedding, and generates those embeddings on
// request.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/relnotes/internal/apperr"
	"github.com/starford/relnotes/internal/embedding"
	"github.com/starford/relnotes/internal/embedstore"
	"github.com/starford/relnotes/internal/models"
	"github.com/starford/relnotes/internal/parser"
	"github.com/starford/relnotes/internal/ranker"
	"github.com/starford/relnotes/internal/scanner"
	"github.com/starford/relnotes/internal/storage"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultConcurrency = 8
)

// Corpus supplies a fresh directory tree per mount root, in declaration order.
type Corpus interface {
	Trees(logger *slog.Logger) ([]*models.DirectoryNode, error)
}

// NoteLocator resolves a note id to the absolute path of its record.
type NoteLocator interface {
	NotePath(ctx context.Context, noteID string) (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithQueryProvider embeds search queries with p instead of the main provider,
// typically a cached wrapper around it.
func WithQueryProvider(p embedding.Provider) Option {
	return func(s *Service) { s.query = p }
}

// WithTimeout bounds every search and generation call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithConcurrency bounds parallel sidecar loads within one search.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithEmbeddedHook registers fn to run after a sidecar has been written.
func WithEmbeddedHook(fn func(rec *models.EmbeddingRecord, path string)) Option {
	return func(s *Service) { s.onEmbedded = fn }
}

// Service runs similarity searches and writes embedding sidecars.
type Service struct {
	corpus      Corpus
	locator     NoteLocator
	provider    embedding.Provider
	query       embedding.Provider
	store       *embedstore.Store
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
	onEmbedded  func(*models.EmbeddingRecord, string)
}

// New creates a Service.
func New(corpus Corpus, locator NoteLocator, provider embedding.Provider, opts ...Option) *Service {
	s := &Service{
		corpus:      corpus,
		locator:     locator,
		provider:    provider,
		store:       embedstore.New(),
		timeout:     defaultTimeout,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.query == nil {
		s.query = s.provider
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultConcurrency
	}
	return s
}

// loaded is a candidate whose sidecar and record were read successfully.
type loaded struct {
	note   *models.Note
	vector []float32
}

// FindSimilar embeds queryText and returns up to ranker.TopK notes ranked by
// cosine similarity. excludeNoteID, when set, never appears in the result.
// The call is all-or-nothing: a failed query embedding or an unreadable
// mount root fails it with ErrSearchFailed, while an individual bad sidecar
// is logged and skipped.
func (s *Service) FindSimilar(ctx context.Context, queryText, excludeNoteID string) ([]models.SimilarNote, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, fmt.Errorf("%w: %w: empty query", apperr.ErrSearchFailed, apperr.ErrInvalidInput)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	qvec, err := s.query.Embed(ctx, queryText)
	if err != nil {
		return nil, searchFailed(ctx, fmt.Errorf("embed query: %w", err))
	}

	trees, err := s.corpus.Trees(s.logger)
	if err != nil {
		return nil, searchFailed(ctx, fmt.Errorf("scan corpus: %w", err))
	}

	var cands []scanner.Candidate
	for c := range scanner.Scan(trees, s.store.Exists) {
		if c.NoteID != excludeNoteID {
			cands = append(cands, c)
		}
	}

	slots, err := s.load(ctx, cands)
	if err != nil {
		return nil, searchFailed(ctx, err)
	}

	// A note id found in several mounts is scored once: the first copy in
	// scan order that loaded cleanly.
	ranked := make([]ranker.Candidate, 0, len(slots))
	notes := make([]*models.Note, 0, len(slots))
	seen := make(map[string]struct{}, len(slots))
	for i, l := range slots {
		if l == nil {
			continue
		}
		if _, dup := seen[cands[i].NoteID]; dup {
			continue
		}
		seen[cands[i].NoteID] = struct{}{}
		ranked = append(ranked, ranker.Candidate{ID: l.note.ID, Vector: l.vector})
		notes = append(notes, l.note)
	}

	top := ranker.Rank(qvec, ranked, s.logger)
	out := make([]models.SimilarNote, 0, len(top))
	for _, r := range top {
		n := notes[r.Index]
		out = append(out, models.SimilarNote{
			ID:             n.ID,
			Title:          n.Title,
			ContentSnippet: parser.Snippet(n.Content, parser.DefaultSnippetRunes),
			Score:          r.Score,
		})
	}

	s.logger.Debug("similarity search",
		slog.Int("candidates", len(cands)),
		slog.Int("scored", len(ranked)),
		slog.Int("results", len(out)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// FindSimilarToNote uses the note's own canonical text as the query and
// leaves the note itself out of the result.
func (s *Service) FindSimilarToNote(ctx context.Context, noteID string) ([]models.SimilarNote, error) {
	note, _, err := s.readNote(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrSearchFailed, err)
	}
	return s.FindSimilar(ctx, parser.EmbeddingText(note.Title, note.Content), note.ID)
}

// GenerateEmbedding embeds the note's canonical text and writes its sidecar,
// replacing any previous one.
func (s *Service) GenerateEmbedding(ctx context.Context, noteID string) (*models.EmbeddingRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	note, path, err := s.readNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if !embedstore.ValidID(note.ID) {
		return nil, fmt.Errorf("note id %q cannot name a sidecar: %w", note.ID, apperr.ErrInvalidInput)
	}
	vec, err := s.provider.Embed(ctx, parser.EmbeddingText(note.Title, note.Content))
	if err != nil {
		return nil, err
	}
	sidecar, err := s.store.Save(note.ID, filepath.Dir(path), vec, s.provider.Model())
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Load(sidecar)
	if err != nil {
		return nil, err
	}
	s.logger.Info("embedding generated",
		slog.String("note_id", note.ID),
		slog.String("model", rec.Model),
		slog.Int("dimensions", rec.Dimensions),
	)
	if s.onEmbedded != nil {
		s.onEmbedded(rec, sidecar)
	}
	return rec, nil
}

// load reads sidecars and records in parallel. The result is aligned with
// cands; a nil slot marks a skipped candidate.
func (s *Service) load(ctx context.Context, cands []scanner.Candidate) ([]*loaded, error) {
	slots := make([]*loaded, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, c := range cands {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := s.store.Load(c.EmbeddingPath)
			if err != nil {
				s.logger.Warn("similarity: skip embedding",
					slog.String("note_id", c.NoteID),
					slog.String("path", c.EmbeddingPath),
					slog.String("error", err.Error()),
				)
				return nil
			}
			note, err := storage.ReadNoteFile(c.NotePath)
			if err != nil {
				s.logger.Warn("similarity: skip note",
					slog.String("note_id", c.NoteID),
					slog.String("path", c.NotePath),
					slog.String("error", err.Error()),
				)
				return nil
			}
			slots[i] = &loaded{note: note, vector: rec.Vector}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	return slots, nil
}

func (s *Service) readNote(ctx context.Context, noteID string) (*models.Note, string, error) {
	if noteID == "" {
		return nil, "", fmt.Errorf("note id is required: %w", apperr.ErrInvalidInput)
	}
	path, err := s.locator.NotePath(ctx, noteID)
	if err != nil {
		return nil, "", err
	}
	note, err := storage.ReadNoteFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read note %s: %w", noteID, err)
	}
	return note, path, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func searchFailed(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if !errors.Is(err, apperr.ErrTimeout) {
			return fmt.Errorf("%w: %w: %w", apperr.ErrSearchFailed, apperr.ErrTimeout, err)
		}
	}
	return fmt.Errorf("%w: %w", apperr.ErrSearchFailed, err)
}
