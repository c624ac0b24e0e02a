// Package embedding wraps third-party embedding models behind a single
// Provider interface.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/relnotes/internal/apperr"
)

// Provider kinds.
const (
	KindOpenAI = "openai"
	KindOllama = "ollama"
)

// Provider converts text into a fixed-length vector.
type Provider interface {
	// Embed returns the embedding of text. Empty text is rejected.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model returns the model identifier recorded with every vector.
	Model() string
	// Dimensions returns the expected vector length, or 0 when unknown.
	Dimensions() int
}

// Options configures a provider.
type Options struct {
	Kind              string
	Endpoint          string
	Model             string
	APIKey            string
	Dimensions        int
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	// Logger receives circuit breaker state changes. Nil means slog.Default.
	Logger *slog.Logger
}

var knownDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
}

// DimensionsFor returns the native dimensionality of a known model.
func DimensionsFor(model string) int {
	return knownDimensions[model]
}

// New builds the provider selected by opts.Kind.
func New(opts Options) (Provider, error) {
	switch strings.ToLower(opts.Kind) {
	case "", KindOpenAI:
		p, err := NewOpenAI(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindOllama:
		p, err := NewOllama(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", opts.Kind)
	}
}

// fail wraps err as an embedding failure; deadline errors also carry ErrTimeout.
func fail(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %w", apperr.ErrEmbeddingFailed, apperr.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", apperr.ErrEmbeddingFailed, err)
}

func checkInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: %w: empty input", apperr.ErrEmbeddingFailed, apperr.ErrInvalidInput)
	}
	return nil
}

func checkVector(vec []float32, want int) error {
	if len(vec) == 0 {
		return errors.New("provider returned an empty vector")
	}
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", apperr.ErrDimensionMismatch, len(vec), want)
	}
	return nil
}
