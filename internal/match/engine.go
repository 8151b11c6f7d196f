// Package match scores probe embeddings against enrolled people.
package match

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/ege-eker/BiometricCheckIn/internal/database"
)

const (
	// DefaultTopK is how many candidate people the store query returns.
	DefaultTopK = 3

	// goodSimilarityFloor is the similarity an embedding must exceed to
	// count towards the confidence boost.
	goodSimilarityFloor = 0.70

	boostPerEmbedding = 0.02
	maxBoost          = 0.10
)

// Result is the outcome of matching one probe against the enrolled set.
type Result struct {
	Person        database.Person
	RawSimilarity float64
	Similarity    float64 // raw plus confidence boost, capped at 1.0
	GoodMatches   int     // embeddings of the person above the boost floor
	Accepted      bool    // Similarity reached the acceptance threshold
}

// Engine ranks enrolled people by similarity to a probe embedding and
// applies a confidence boost based on how many of the best candidate's
// embeddings agree with the probe.
type Engine struct {
	store         database.PersonReader
	minSimilarity float64
	topK          int
}

// NewEngine creates a match engine. minSimilarity is the inclusive
// acceptance threshold; topK <= 0 falls back to DefaultTopK.
func NewEngine(store database.PersonReader, minSimilarity float64, topK int) *Engine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Engine{
		store:         store,
		minSimilarity: minSimilarity,
		topK:          topK,
	}
}

// Match finds the best-matching person for the probe. Returns nil when no
// person is enrolled. A non-nil result with Accepted false means the best
// candidate stayed below the acceptance threshold.
func (e *Engine) Match(ctx context.Context, probe []float32) (*Result, error) {
	matches, err := e.store.BestMatchPerPerson(ctx, probe, e.topK)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	best := matches[0]
	goodCount, err := e.store.CountEmbeddingsAbove(ctx, best.Person.ID, probe, goodSimilarityFloor)
	if err != nil {
		return nil, fmt.Errorf("count agreeing embeddings: %w", err)
	}

	boost := float64(goodCount) * boostPerEmbedding
	if boost > maxBoost {
		boost = maxBoost
	}
	adjusted := best.Similarity + boost
	if adjusted > 1.0 {
		adjusted = 1.0
	}

	result := &Result{
		Person:        best.Person,
		RawSimilarity: best.Similarity,
		Similarity:    adjusted,
		GoodMatches:   goodCount,
		Accepted:      adjusted >= e.minSimilarity,
	}

	log.Debug("match scored",
		"person_id", best.Person.ID,
		"raw", best.Similarity,
		"boost", boost,
		"adjusted", adjusted,
		"accepted", result.Accepted,
	)
	return result, nil
}
