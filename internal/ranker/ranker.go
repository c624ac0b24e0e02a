// Package ranker scores candidate vectors against a query by cosine
// similarity and keeps the best few.
package ranker

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/starford/relnotes/internal/apperr"
)

// TopK is the fixed number of results a ranking returns.
const TopK = 5

// Candidate is one stored vector to score.
type Candidate struct {
	ID     string
	Vector []float32
}

// Result is a scored candidate. Index points back into the input slice.
type Result struct {
	ID    string
	Index int
	Score float64
}

// Cosine returns dot(a,b) / (|a|*|b|). Vectors of different or zero length
// are rejected with ErrDimensionMismatch. A zero-magnitude vector scores -Inf
// so it always sorts last instead of poisoning the order with NaN.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("%w: %d vs %d", apperr.ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return math.Inf(-1), nil
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return max(-1, min(1, s)), nil
}

// Rank scores every candidate against query and returns at most TopK results
// in descending score order. Equal scores keep their input order. Candidates
// whose dimensionality differs from the query are dropped with a warning.
func Rank(query []float32, candidates []Candidate, logger *slog.Logger) []Result {
	if logger == nil {
		logger = slog.Default()
	}
	results := make([]Result, 0, len(candidates))
	for i, c := range candidates {
		score, err := Cosine(query, c.Vector)
		if err != nil {
			logger.Warn("ranker: candidate excluded",
				slog.String("note_id", c.ID),
				slog.Int("query_dims", len(query)),
				slog.Int("candidate_dims", len(c.Vector)),
			)
			continue
		}
		results = append(results, Result{ID: c.ID, Index: i, Score: score})
	}
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(results) > TopK {
		results = results[:TopK]
	}
	return results
}
