package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"sous-voice-service/internal/events"
	"sous-voice-service/internal/models"
	"sous-voice-service/internal/observability/logging"
	"sous-voice-service/internal/observability/metrics"
	"sous-voice-service/internal/service/chunk"
)

var ErrEmptyText = errors.New("retrieval: recipe text is empty")

// EventPublisher publishes recipe ingestion events.
type EventPublisher interface {
	PublishRecipe(ctx context.Context, key, eventType string, event any) error
}

// Indexer chunks recipe text and keeps the store in sync with uploads and deletes.
type Indexer struct {
	store        Store
	publisher    EventPublisher
	chunkSize    int
	chunkOverlap int
	metrics      *metrics.Metrics
}

// NewIndexer creates an Indexer. A nil publisher disables events.
func NewIndexer(store Store, publisher EventPublisher, chunkSize, chunkOverlap int) *Indexer {
	if chunkSize <= 0 {
		chunkSize = chunk.DefaultMaxChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = chunk.DefaultOverlap
	}
	return &Indexer{
		store:        store,
		publisher:    publisher,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		metrics:      metrics.DefaultMetrics,
	}
}

// Upload replaces the stored chunks of a user's recipe with chunks of text
// and returns how many were stored.
func (ix *Indexer) Upload(ctx context.Context, recipeID, userID, text string) (int, error) {
	logger := logging.WithRecipe(userID, recipeID)

	if strings.TrimSpace(text) == "" {
		return 0, ErrEmptyText
	}

	pieces, err := chunk.Split(text, ix.chunkSize, ix.chunkOverlap)
	if err != nil {
		return 0, fmt.Errorf("split recipe: %w", err)
	}

	records := make([]models.RecipeChunk, len(pieces))
	for i, p := range pieces {
		records[i] = models.RecipeChunk{
			ID:          models.ChunkID(recipeID, userID, i),
			RecipeID:    recipeID,
			UserID:      userID,
			ChunkIndex:  i,
			TotalChunks: len(pieces),
			ChunkType:   models.ChunkTypeRecipeContent,
			Text:        p,
		}
	}

	// Drop chunks from a previous, possibly longer, upload.
	if _, err := ix.store.Delete(ctx, recipeID, userID); err != nil {
		return 0, fmt.Errorf("clear previous chunks: %w", err)
	}
	if err := ix.store.Add(ctx, records); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	ix.metrics.RecordChunksStored(len(records))
	logger.Info().Int("chunks", len(records)).Msg("Recipe indexed")
	ix.publish(ctx, models.EventRecipeIndexed, recipeID, userID, len(records))
	return len(records), nil
}

// Delete removes all recipe content chunks for a user's recipe.
func (ix *Indexer) Delete(ctx context.Context, recipeID, userID string) (int, error) {
	n, err := ix.store.Delete(ctx, recipeID, userID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}

	ix.metrics.RecordChunksDeleted(n)
	logger := logging.WithRecipe(userID, recipeID)
	logger.Info().Int("chunks", n).Msg("Recipe deleted")
	ix.publish(ctx, models.EventRecipeDeleted, recipeID, userID, n)
	return n, nil
}

func (ix *Indexer) publish(ctx context.Context, eventType, recipeID, userID string, n int) {
	if ix.publisher == nil {
		return
	}
	event := models.RecipeEvent{
		EventID:   events.NewEventID(),
		EventType: eventType,
		RecipeID:  recipeID,
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
		Chunks:    n,
	}
	key := recipeID + ":" + userID
	if err := ix.publisher.PublishRecipe(ctx, key, eventType, event); err != nil {
		log.Warn().Err(err).Str("eventType", eventType).Str("key", key).Msg("Recipe event not published")
	}
}
