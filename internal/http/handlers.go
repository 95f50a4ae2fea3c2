package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"sous-voice-service/internal/models"
	"sous-voice-service/internal/observability/metrics"
	"sous-voice-service/internal/schema"
	"sous-voice-service/internal/service/relay"
)

const maxBodyBytes = 5 << 20

var errCondenseDisabled = errors.New("recipe condensing is not configured")

// RecipeIndexer stores and removes a user's recipe chunks.
type RecipeIndexer interface {
	Upload(ctx context.Context, recipeID, userID, text string) (int, error)
	Delete(ctx context.Context, recipeID, userID string) (int, error)
}

// RecipeScraper extracts recipe text from a page.
type RecipeScraper interface {
	FromURL(ctx context.Context, rawURL string) (string, error)
	PageText(ctx context.Context, rawURL string) (string, error)
}

// RecipeCondenser shortens recipe text with a language model.
type RecipeCondenser interface {
	Condense(ctx context.Context, text string) (string, error)
}

// SessionFactory builds a voice session for a client connection.
type SessionFactory func(userID, recipeID string, client relay.ClientConn) *relay.Session

// Handlers serves the REST routes and the voice WebSocket.
type Handlers struct {
	indexer   RecipeIndexer
	scraper   RecipeScraper
	condenser RecipeCondenser
	validator *schema.Validator
	sessions  SessionFactory
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func (h *Handlers) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Welcome to Sous!"})
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) UploadRecipe(w http.ResponseWriter, r *http.Request) {
	var req models.UploadRecipeRequest
	if !h.decode(w, r, &req) {
		return
	}

	recipeID, userID := strconv.Itoa(req.RecipeID), strconv.Itoa(req.UserID)
	n, err := h.indexer.Upload(r.Context(), recipeID, userID, req.Text)
	if err != nil {
		h.logger.Error().Err(err).
			Str("recipeId", recipeID).
			Str("userId", userID).
			Msg("Error uploading recipe")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, models.MessageResponse{
		Message: fmt.Sprintf("Chroma upload successful - %d chunks uploaded", n),
	})
}

func (h *Handlers) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteRecipeRequest
	if !h.decode(w, r, &req) {
		return
	}

	recipeID, userID := strconv.Itoa(req.RecipeID), strconv.Itoa(req.UserID)
	if _, err := h.indexer.Delete(r.Context(), recipeID, userID); err != nil {
		h.logger.Error().Err(err).
			Str("recipeId", recipeID).
			Str("userId", userID).
			Msg("Error deleting recipe")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Chroma delete successful"})
}

// ParseRecipe scrapes ?url=. With ?condense=true the raw page text is
// rewritten by the language model instead of cleaned line by line.
func (h *Handlers) ParseRecipe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	condense, _ := strconv.ParseBool(q.Get("condense"))
	req := models.ParseRecipeRequest{URL: q.Get("url"), Condense: condense}

	if err := h.validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	recipe, err := h.parse(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Str("url", req.URL).Msg("Error parsing recipe")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, models.MessageResponse{Message: recipe})
}

func (h *Handlers) parse(ctx context.Context, req models.ParseRecipeRequest) (string, error) {
	if !req.Condense {
		return h.scraper.FromURL(ctx, req.URL)
	}
	if h.condenser == nil {
		return "", errCondenseDisabled
	}
	text, err := h.scraper.PageText(ctx, req.URL)
	if err != nil {
		return "", err
	}
	return h.condenser.Condense(ctx, text)
}

// Listen upgrades to a WebSocket and runs a voice session until either side
// hangs up.
func (h *Handlers) Listen(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	recipeID := chi.URLParam(r, "recipe_id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := newWSClient(conn, h.logger)
	sess := h.sessions(userID, recipeID, client)
	if err := sess.Run(r.Context()); err != nil {
		h.logger.Warn().Err(err).
			Str("sessionId", sess.ID()).
			Msg("Voice session ended with error")
	}
}

// decode reads and validates a JSON body, replying 400 on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: malformed JSON body: %v", schema.ErrInvalidRequest, err))
		return false
	}
	if err := h.validator.Validate(dst); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
}
