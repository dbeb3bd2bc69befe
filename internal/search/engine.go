// Package search fuses full-text and vector retrieval under a tunable
// mixing weight.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/raphaelgruber/slackvault/internal/models"
	"github.com/raphaelgruber/slackvault/internal/store"
	"github.com/raphaelgruber/slackvault/internal/vector"
)

// DefaultLimit is used when the caller does not pass a result limit.
const DefaultLimit = 50

// Lexical is the full-text side of the fusion.
type Lexical interface {
	SearchText(ctx context.Context, query string, limit int) ([]store.TextHit, error)
}

// Vectors is the semantic side of the fusion.
type Vectors interface {
	Query(ctx context.Context, embedding []float32, n int) ([]vector.QueryHit, error)
}

// Embedder embeds the query string.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine executes hybrid queries. It is stateless; result consistency
// depends on the indexer's dual-write discipline.
type Engine struct {
	lexical  Lexical
	vectors  Vectors
	embedder Embedder
}

// New creates a search engine over the two stores.
func New(lexical Lexical, vectors Vectors, embedder Embedder) *Engine {
	return &Engine{lexical: lexical, vectors: vectors, embedder: embedder}
}

// candidate accumulates the two scores for one message.
type candidate struct {
	result   models.SearchResult
	lexScore float64
	vecScore float64
}

// Search runs a hybrid query. alpha 0 is pure lexical, 1 pure vector; an
// empty query returns no results.
func (e *Engine) Search(ctx context.Context, query string, alpha float64, limit int) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	// Each side contributes up to 2K candidates before fusion.
	pool := limit * 2
	candidates := make(map[string]*candidate)

	if alpha < 1 {
		hits, err := e.lexical.SearchText(ctx, query, pool)
		if err != nil {
			return nil, fmt.Errorf("lexical search: %w", err)
		}
		for _, hit := range hits {
			candidates[hit.Message.ID] = &candidate{
				result: models.SearchResult{
					MessageID:      hit.Message.ID,
					ConversationID: hit.Message.ConversationID,
					Username:       hit.Message.Username,
					Text:           hit.Message.Text,
					TS:             hit.Message.TS,
					KeywordMatch:   true,
				},
				lexScore: hit.Score,
			}
		}
	}

	if alpha > 0 {
		queryVector, err := e.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		hits, err := e.vectors.Query(ctx, queryVector, pool)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		for _, hit := range hits {
			c := candidates[hit.ID]
			if c == nil {
				c = &candidate{result: resultFromVector(hit)}
				candidates[hit.ID] = c
			}
			c.result.SemanticMatch = true
			c.vecScore = hit.Similarity
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	fused := fuse(candidates, alpha)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

// resultFromVector reconstructs result fields from the vector metadata
// snapshot; the stored document is a snippet of the prepared text.
func resultFromVector(hit vector.QueryHit) models.SearchResult {
	result := models.SearchResult{
		MessageID: hit.ID,
		Text:      hit.Document,
	}
	if hit.Metadata != nil {
		result.ConversationID = hit.Metadata["conversation_id"]
		result.Username = hit.Metadata["username"]
		if ts, err := time.Parse(time.RFC3339, hit.Metadata["ts"]); err == nil {
			result.TS = ts
		}
	}
	return result
}

// fuse normalises each score set to [0,1] by min-max over its own
// candidates, mixes them, and ranks. A candidate absent from one side
// scores 0 there.
func fuse(candidates map[string]*candidate, alpha float64) []models.SearchResult {
	var lexScores, vecScores []float64
	for _, c := range candidates {
		if c.result.KeywordMatch {
			lexScores = append(lexScores, c.lexScore)
		}
		if c.result.SemanticMatch {
			vecScores = append(vecScores, c.vecScore)
		}
	}
	lexMin, lexMax := minMax(lexScores)
	vecMin, vecMax := minMax(vecScores)

	results := make([]models.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		var lex, vec float64
		if c.result.KeywordMatch {
			lex = normalise(c.lexScore, lexMin, lexMax)
		}
		if c.result.SemanticMatch {
			vec = normalise(c.vecScore, vecMin, vecMax)
		}
		c.result.Score = (1-alpha)*lex + alpha*vec
		results = append(results, c.result)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].TS.Equal(results[j].TS) {
			return results[i].TS.After(results[j].TS)
		}
		return results[i].ConversationID < results[j].ConversationID
	})
	return results
}

func minMax(scores []float64) (float64, float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return lo, hi
}

// normalise maps a score into [0,1]; a degenerate set (single candidate or
// all-equal scores) maps to 1 so the side still contributes.
func normalise(score, lo, hi float64) float64 {
	if hi == lo {
		return 1
	}
	return (score - lo) / (hi - lo)
}
