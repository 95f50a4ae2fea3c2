package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"sous-voice-service/internal/models"
)

// MemoryStore is an in-process Store ranking chunks by shared terms with the
// question. It serves local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.RecipeChunk
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.RecipeChunk)}
}

func (s *MemoryStore) Add(_ context.Context, chunks []models.RecipeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.records[c.ID] = c
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, question, recipeID, userID string, n int) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := tokenize(question)

	type scored struct {
		chunk models.RecipeChunk
		score int
	}

	s.mu.RLock()
	var hits []scored
	for _, c := range s.records {
		if c.RecipeID != recipeID || c.UserID != userID {
			continue
		}
		hits = append(hits, scored{chunk: c, score: overlap(terms, tokenize(c.Text))})
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].chunk.ChunkIndex < hits[j].chunk.ChunkIndex
	})
	if n > 0 && len(hits) > n {
		hits = hits[:n]
	}

	docs := make([]string, len(hits))
	for i, h := range hits {
		docs[i] = h.chunk.Text
	}
	return [][]string{docs}, nil
}

func (s *MemoryStore) Delete(_ context.Context, recipeID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.records {
		if c.RecipeID == recipeID && c.UserID == userID && c.ChunkType == models.ChunkTypeRecipeContent {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Len reports how many records are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Chunks returns the stored chunks of one user's recipe ordered by index.
func (s *MemoryStore) Chunks(recipeID, userID string) []models.RecipeChunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.RecipeChunk
	for _, c := range s.records {
		if c.RecipeID == recipeID && c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

func (s *MemoryStore) Close() error { return nil }

func tokenize(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}
