package models

import "encoding/json"

// Event types published to Kafka.
const (
	EventConversationText = "conversation.text"
	EventRecipeIndexed    = "recipe.indexed"
	EventRecipeDeleted    = "recipe.deleted"
	EventSessionClosed    = "session.closed"
)

// ConversationTextEvent carries one agent conversation message for a session.
type ConversationTextEvent struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId"`
	RecipeID  string          `json:"recipeId"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// RecipeEvent records an ingestion change for a user's recipe.
type RecipeEvent struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	RecipeID  string `json:"recipeId"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
	Chunks    int    `json:"chunks"`
}

// SessionEvent records the end of a voice session.
type SessionEvent struct {
	EventID    string `json:"eventId"`
	EventType  string `json:"eventType"`
	SessionID  string `json:"sessionId"`
	UserID     string `json:"userId"`
	RecipeID   string `json:"recipeId"`
	Timestamp  int64  `json:"timestamp"`
	DurationMs int64  `json:"durationMs"`
	Reason     string `json:"reason,omitempty"`
}
