package memory

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"unicode"
)

// Scorer turns a message text and a reference context into a relevance
// score. Lexical scores fall in [0,1]; cosine scores in [-1,1]. Scorers
// carry no shared mutable state: every call is independent.
type Scorer interface {
	Score(ctx context.Context, text, reference string) float64
}

// Embedder is the injected embedding capability consumed by the vector
// scoring strategy. Implementations are fallible and timeout-bounded.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LexicalScorer scores by token-set overlap: both texts are lowercased and
// split on non-word runs, and the score is |A∩B| / sqrt(|A|·|B|) over the
// unique token sets. Either set being empty yields 0.
type LexicalScorer struct{}

// Compile-time interface check.
var _ Scorer = LexicalScorer{}

// Score implements Scorer.
func (LexicalScorer) Score(_ context.Context, text, reference string) float64 {
	return lexicalSimilarity(text, reference)
}

func lexicalSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	// Iterate the smaller set.
	if len(setB) < len(setA) {
		setA, setB = setB, setA
	}
	shared := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}
	return float64(shared) / math.Sqrt(float64(len(setA))*float64(len(setB)))
}

// tokenSet lowercases s and splits it on runs of non-word characters,
// returning the set of unique tokens.
func tokenSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if len(fields) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// VectorScorer scores by cosine similarity of embedding vectors obtained
// from the injected Embedder. Any embedder failure degrades that single
// call to the lexical score; errors never reach the caller.
type VectorScorer struct {
	embedder Embedder
	fallback LexicalScorer
	logger   *slog.Logger
}

// Compile-time interface check.
var _ Scorer = (*VectorScorer)(nil)

// NewVectorScorer creates a vector scorer backed by the given embedder.
// A nil logger discards degradation warnings.
func NewVectorScorer(embedder Embedder, logger *slog.Logger) *VectorScorer {
	if logger == nil {
		logger = discardLogger()
	}
	return &VectorScorer{embedder: embedder, logger: logger}
}

// Score implements Scorer.
func (s *VectorScorer) Score(ctx context.Context, text, reference string) float64 {
	v1, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Debug("embedding failed, falling back to lexical score", "error", err)
		return s.fallback.Score(ctx, text, reference)
	}
	v2, err := s.embedder.Embed(ctx, reference)
	if err != nil {
		s.logger.Debug("embedding failed, falling back to lexical score", "error", err)
		return s.fallback.Score(ctx, text, reference)
	}
	return CosineSimilarity(v1, v2)
}

// CosineSimilarity returns dot(a,b) / (|a|·|b|), bounded in [-1,1].
// Mismatched dimensionality or a zero-magnitude vector yields 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
