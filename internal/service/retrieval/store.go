// Package retrieval stores recipe chunks and assembles retrieval context for
// the voice agent's tool calls.
package retrieval

import (
	"context"

	"sous-voice-service/internal/models"
)

// Store is a similarity search backend for recipe chunks. Implementations
// must be safe for concurrent use by many sessions.
type Store interface {
	// Add writes chunks, replacing records with the same id.
	Add(ctx context.Context, chunks []models.RecipeChunk) error

	// Query returns up to n documents similar to question, restricted to
	// records whose recipe and user ids both match. Results are grouped per
	// query; a single question yields at most one group.
	Query(ctx context.Context, question, recipeID, userID string, n int) ([][]string, error)

	// Delete removes the recipe content chunks of one user's recipe and
	// reports how many were removed.
	Delete(ctx context.Context, recipeID, userID string) (int, error)

	// Close releases the backend connection.
	Close() error
}
