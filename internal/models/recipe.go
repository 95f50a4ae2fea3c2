// Package models defines the data structures shared across the service.
package models

import "fmt"

// ChunkTypeRecipeContent tags chunks produced from uploaded recipe text.
const ChunkTypeRecipeContent = "recipe_content"

// DefaultTopK is the number of fragments requested per retrieval.
const DefaultTopK = 6

// RecipeChunk is one stored piece of a recipe, addressed by its owner ids.
type RecipeChunk struct {
	ID          string `json:"id"`
	RecipeID    string `json:"recipeId"`
	UserID      string `json:"userId"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	ChunkType   string `json:"chunkType"`
	Text        string `json:"text"`
}

// ChunkID returns the stable record id for a chunk of a user's recipe.
func ChunkID(recipeID, userID string, index int) string {
	return fmt.Sprintf("recipe_%s_user_%s_chunk_%d", recipeID, userID, index)
}

// RetrievalQuery is created per tool call and scoped to one user's recipe.
type RetrievalQuery struct {
	Question string
	RecipeID string
	UserID   string
	TopK     int
}

// UploadRecipeRequest is the body of the recipe upload route.
type UploadRecipeRequest struct {
	RecipeID int    `json:"recipe_id"`
	UserID   int    `json:"user_id"`
	Text     string `json:"text"`
}

// DeleteRecipeRequest is the body of the recipe delete route.
type DeleteRecipeRequest struct {
	RecipeID int `json:"recipe_id"`
	UserID   int `json:"user_id"`
}

// ParseRecipeRequest holds the query parameters of the parse route.
type ParseRecipeRequest struct {
	URL      string
	Condense bool
}

// MessageResponse is the success envelope used by the HTTP routes.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the failure envelope used by the HTTP routes.
type ErrorResponse struct {
	Error string `json:"error"`
}
