package milvus

import (
	"context"
	"errors"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// fakeClient overrides the calls the store makes on the query path. Any
// other method panics through the nil embedded interface.
type fakeClient struct {
	client.Client

	searchExpr string
	searchTopK int
	texts      []string
	searchErr  error

	queryExpr  string
	matchedIDs []string
	deleteExpr string
	deleted    bool
	closed     bool
}

func (f *fakeClient) Search(_ context.Context, _ string, _ []string, expr string, _ []string, _ []entity.Vector, _ string, _ entity.MetricType, topK int, _ entity.SearchParam, _ ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	f.searchExpr = expr
	f.searchTopK = topK
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return []client.SearchResult{{
		ResultCount: len(f.texts),
		Fields:      []entity.Column{entity.NewColumnVarChar(fieldText, f.texts)},
	}}, nil
}

func (f *fakeClient) Query(_ context.Context, _ string, _ []string, expr string, _ []string, _ ...client.SearchQueryOptionFunc) (client.ResultSet, error) {
	f.queryExpr = expr
	return []entity.Column{entity.NewColumnVarChar(fieldID, f.matchedIDs)}, nil
}

func (f *fakeClient) Delete(_ context.Context, _ string, _ string, expr string) error {
	f.deleteExpr = expr
	f.deleted = true
	return nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

type fakeEmbedder struct {
	dim int
	err error
}

func (e fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dim)
	}
	return out, nil
}

func (e fakeEmbedder) Dimension() int { return e.dim }

func TestOwnerExpr(t *testing.T) {
	tests := []struct {
		recipe, user string
		want         string
	}{
		{"1", "1", `recipe_id == "1" && user_id == "1"`},
		{"42", "7", `recipe_id == "42" && user_id == "7"`},
		{`1" || recipe_id != "`, "1", `recipe_id == "1\" || recipe_id != \"" && user_id == "1"`},
	}

	for _, tt := range tests {
		if got := ownerExpr(tt.recipe, tt.user); got != tt.want {
			t.Errorf("ownerExpr(%q, %q) = %s, want %s", tt.recipe, tt.user, got, tt.want)
		}
	}
}

func TestDeleteExpr_IncludesChunkType(t *testing.T) {
	want := `recipe_id == "1" && user_id == "1" && chunk_type == "recipe_content"`
	if got := deleteExpr("1", "1"); got != want {
		t.Errorf("deleteExpr = %s, want %s", got, want)
	}
}

func TestStore_Query(t *testing.T) {
	fc := &fakeClient{texts: []string{"Use 500g pork.", "Braise two hours."}}
	s := newStore(fc, Config{CollectionName: "recipes", Dimension: 4}, fakeEmbedder{dim: 4})

	docs, err := s.Query(context.Background(), "how much pork?", "1", "2", 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || len(docs[0]) != 2 || docs[0][0] != "Use 500g pork." {
		t.Errorf("unexpected docs %v", docs)
	}
	if fc.searchExpr != `recipe_id == "1" && user_id == "2"` {
		t.Errorf("unexpected filter %s", fc.searchExpr)
	}
	if fc.searchTopK != 6 {
		t.Errorf("expected top-k 6, got %d", fc.searchTopK)
	}
}

func TestStore_Query_Errors(t *testing.T) {
	boom := errors.New("embed down")

	s := newStore(&fakeClient{}, Config{Dimension: 4}, fakeEmbedder{dim: 4, err: boom})
	if _, err := s.Query(context.Background(), "q", "1", "1", 6); !errors.Is(err, boom) {
		t.Errorf("expected embed error, got %v", err)
	}

	s = newStore(&fakeClient{}, Config{Dimension: 4}, fakeEmbedder{dim: 3})
	if _, err := s.Query(context.Background(), "q", "1", "1", 6); !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("expected ErrInvalidDimension, got %v", err)
	}

	s = newStore(&fakeClient{searchErr: errors.New("unavailable")}, Config{Dimension: 4}, fakeEmbedder{dim: 4})
	if _, err := s.Query(context.Background(), "q", "1", "1", 6); !errors.Is(err, ErrSearchFailed) {
		t.Errorf("expected ErrSearchFailed, got %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	fc := &fakeClient{matchedIDs: []string{"recipe_1_user_1_chunk_0", "recipe_1_user_1_chunk_1", "recipe_1_user_1_chunk_2"}}
	s := newStore(fc, Config{Dimension: 4}, fakeEmbedder{dim: 4})

	n, err := s.Delete(context.Background(), "1", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 deleted, got %d", n)
	}
	if fc.deleteExpr != fc.queryExpr || fc.deleteExpr != deleteExpr("1", "1") {
		t.Errorf("expected the same scoped expression for query and delete, got %s / %s", fc.queryExpr, fc.deleteExpr)
	}
}

func TestStore_Delete_NothingMatched(t *testing.T) {
	fc := &fakeClient{}
	s := newStore(fc, Config{Dimension: 4}, fakeEmbedder{dim: 4})

	n, err := s.Delete(context.Background(), "9", "9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 || fc.deleted {
		t.Errorf("expected no delete call, got n=%d deleted=%v", n, fc.deleted)
	}
}

func TestStore_Close(t *testing.T) {
	fc := &fakeClient{}
	s := newStore(fc, Config{Dimension: 4}, fakeEmbedder{dim: 4})
	if err := s.Close(); err != nil || !fc.closed {
		t.Errorf("expected client to be closed, err=%v", err)
	}
}

func TestNew_InvalidDimension(t *testing.T) {
	if _, err := New(context.Background(), Config{Dimension: 0}, fakeEmbedder{}); !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("expected ErrInvalidDimension, got %v", err)
	}
}
