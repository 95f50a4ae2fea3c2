package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sous-voice-service/internal/models"
	"sous-voice-service/internal/observability/metrics"
)

var (
	ErrNotFound     = errors.New("retrieval: no matching content")
	ErrInvalidQuery = errors.New("retrieval: invalid query")
)

// GatewayConfig bounds retrieval and context assembly.
type GatewayConfig struct {
	TopK            int
	MaxChunks       int
	MaxContextChars int
}

// Gateway runs scoped similarity queries against a Store.
type Gateway struct {
	store   Store
	cfg     GatewayConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewGateway creates a Gateway, filling unset limits with defaults.
func NewGateway(store Store, cfg GatewayConfig) *Gateway {
	if cfg.TopK <= 0 {
		cfg.TopK = models.DefaultTopK
	}
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = DefaultMaxChunks
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = DefaultMaxContext
	}
	return &Gateway{
		store:   store,
		cfg:     cfg,
		metrics: metrics.DefaultMetrics,
		logger:  log.With().Str("component", "retrieval").Logger(),
	}
}

// Retrieve queries the store for documents matching q. Store failures and
// empty results both return an error wrapping ErrNotFound.
func (g *Gateway) Retrieve(ctx context.Context, q models.RetrievalQuery) ([][]string, error) {
	if strings.TrimSpace(q.Question) == "" {
		return nil, fmt.Errorf("%w: empty question", ErrInvalidQuery)
	}
	if q.RecipeID == "" || q.UserID == "" {
		return nil, fmt.Errorf("%w: recipe and user ids are required", ErrInvalidQuery)
	}
	topK := q.TopK
	if topK <= 0 {
		topK = g.cfg.TopK
	}

	docs, err := g.store.Query(ctx, q.Question, q.RecipeID, q.UserID, topK)
	if err != nil {
		g.logger.Error().
			Err(err).
			Str("recipeId", q.RecipeID).
			Str("userId", q.UserID).
			Msg("Store query failed")
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if len(docs) == 0 || len(docs[0]) == 0 {
		return nil, ErrNotFound
	}
	return docs, nil
}

// ContextFor answers a tool call. It never fails: misses and errors are
// returned as text so the live session keeps going.
func (g *Gateway) ContextFor(ctx context.Context, question, recipeID, userID string) string {
	start := time.Now()

	docs, err := g.Retrieve(ctx, models.RetrievalQuery{
		Question: question,
		RecipeID: recipeID,
		UserID:   userID,
		TopK:     g.cfg.TopK,
	})

	var out string
	switch {
	case errors.Is(err, ErrNotFound):
		out = NoMatchMessage
	case err != nil:
		out = ErrorMessage(err)
	default:
		out = BuildContextWithLimits(docs, g.cfg.MaxChunks, g.cfg.MaxContextChars)
	}

	g.metrics.RecordRetrieval(time.Since(start).Seconds(), len(out))
	g.logger.Debug().
		Str("recipeId", recipeID).
		Str("userId", userID).
		Int("contextChars", len(out)).
		Dur("duration", time.Since(start)).
		Msg("Context assembled")
	return out
}
