// Package milvus implements the recipe chunk store on Milvus.
package milvus

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sous-voice-service/internal/models"
	"sous-voice-service/internal/service/embedding"
)

var (
	ErrInvalidDimension = errors.New("milvus: invalid vector dimension")
	ErrConnectionFailed = errors.New("milvus: failed to connect")
	ErrInsertFailed     = errors.New("milvus: failed to upsert records")
	ErrSearchFailed     = errors.New("milvus: failed to search vectors")
	ErrDeleteFailed     = errors.New("milvus: failed to delete records")
)

const (
	fieldID          = "id"
	fieldRecipeID    = "recipe_id"
	fieldUserID      = "user_id"
	fieldChunkType   = "chunk_type"
	fieldText        = "text"
	fieldChunkIndex  = "chunk_index"
	fieldTotalChunks = "total_chunks"
	fieldEmbedding   = "embedding"
)

// Config holds Milvus connection and collection settings.
type Config struct {
	Address        string
	CollectionName string
	Dimension      int

	// HNSW index parameters
	M              int
	EfConstruction int
	SearchEf       int
}

// Store keeps recipe chunks in a Milvus collection, embedding text on write
// and questions on query.
type Store struct {
	client   client.Client
	embedder embedding.Embedder
	config   Config
	logger   zerolog.Logger
}

// New connects to Milvus and ensures the collection exists.
func New(ctx context.Context, cfg Config, embedder embedding.Embedder) (*Store, error) {
	if cfg.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}

	c, err := client.NewGrpcClient(ctx, cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := newStore(c, cfg, embedder)
	if err := s.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}

	s.logger.Info().
		Str("address", cfg.Address).
		Str("collection", cfg.CollectionName).
		Int("dimension", cfg.Dimension).
		Msg("Milvus store ready")
	return s, nil
}

func newStore(c client.Client, cfg Config, embedder embedding.Embedder) *Store {
	if cfg.SearchEf <= 0 {
		cfg.SearchEf = 64
	}
	return &Store{
		client:   c,
		embedder: embedder,
		config:   cfg,
		logger:   log.With().Str("component", "milvus").Logger(),
	}
}

func (s *Store) ensureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.config.CollectionName)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if has {
		return s.client.LoadCollection(ctx, s.config.CollectionName, false)
	}

	varchar := func(name, maxLen string, pk bool) *entity.Field {
		return &entity.Field{
			Name:       name,
			DataType:   entity.FieldTypeVarChar,
			PrimaryKey: pk,
			TypeParams: map[string]string{"max_length": maxLen},
		}
	}

	schema := &entity.Schema{
		CollectionName: s.config.CollectionName,
		Description:    "recipe chunks",
		Fields: []*entity.Field{
			varchar(fieldID, "256", true),
			varchar(fieldRecipeID, "64", false),
			varchar(fieldUserID, "64", false),
			varchar(fieldChunkType, "32", false),
			varchar(fieldText, "65535", false),
			{Name: fieldChunkIndex, DataType: entity.FieldTypeInt64},
			{Name: fieldTotalChunks, DataType: entity.FieldTypeInt64},
			{
				Name:     fieldEmbedding,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(s.config.Dimension),
				},
			},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, s.config.M, s.config.EfConstruction)
	if err != nil {
		return fmt.Errorf("index config: %w", err)
	}
	if err := s.client.CreateIndex(ctx, s.config.CollectionName, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	if err := s.client.LoadCollection(ctx, s.config.CollectionName, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

// Add embeds and upserts chunks keyed by their id.
func (s *Store) Add(ctx context.Context, chunks []models.RecipeChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	n := len(chunks)
	ids := make([]string, n)
	recipeIDs := make([]string, n)
	userIDs := make([]string, n)
	chunkTypes := make([]string, n)
	indexes := make([]int64, n)
	totals := make([]int64, n)
	for i, c := range chunks {
		ids[i] = c.ID
		recipeIDs[i] = c.RecipeID
		userIDs[i] = c.UserID
		chunkTypes[i] = c.ChunkType
		indexes[i] = int64(c.ChunkIndex)
		totals[i] = int64(c.TotalChunks)
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldRecipeID, recipeIDs),
		entity.NewColumnVarChar(fieldUserID, userIDs),
		entity.NewColumnVarChar(fieldChunkType, chunkTypes),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnInt64(fieldChunkIndex, indexes),
		entity.NewColumnInt64(fieldTotalChunks, totals),
		entity.NewColumnFloatVector(fieldEmbedding, s.config.Dimension, vectors),
	}

	if _, err := s.client.Upsert(ctx, s.config.CollectionName, "", columns...); err != nil {
		return fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}
	if err := s.client.Flush(ctx, s.config.CollectionName, false); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Query embeds the question and returns the texts of the nearest chunks of
// one user's recipe as a single group.
func (s *Store) Query(ctx context.Context, question, recipeID, userID string, n int) ([][]string, error) {
	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vectors[0]) != s.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, s.config.Dimension, len(vectors[0]))
	}

	sp, err := entity.NewIndexHNSWSearchParam(s.config.SearchEf)
	if err != nil {
		return nil, fmt.Errorf("search params: %w", err)
	}

	results, err := s.client.Search(
		ctx,
		s.config.CollectionName,
		nil,
		ownerExpr(recipeID, userID),
		[]string{fieldText},
		[]entity.Vector{entity.FloatVector(vectors[0])},
		fieldEmbedding,
		entity.COSINE,
		n,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	texts := make([]string, 0, results[0].ResultCount)
	for _, field := range results[0].Fields {
		if field.Name() != fieldText {
			continue
		}
		if col, ok := field.(*entity.ColumnVarChar); ok {
			texts = append(texts, col.Data()...)
		}
	}
	return [][]string{texts}, nil
}

// Delete removes a recipe's content chunks and reports how many matched.
func (s *Store) Delete(ctx context.Context, recipeID, userID string) (int, error) {
	expr := deleteExpr(recipeID, userID)

	rs, err := s.client.Query(ctx, s.config.CollectionName, nil, expr, []string{fieldID})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	matched := 0
	for _, col := range rs {
		if col.Name() == fieldID {
			matched = col.Len()
		}
	}
	if matched == 0 {
		return 0, nil
	}

	if err := s.client.Delete(ctx, s.config.CollectionName, "", expr); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return matched, nil
}

func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ownerExpr filters records by exact recipe and user id. Values are quoted so
// ids cannot alter the expression.
func ownerExpr(recipeID, userID string) string {
	return fmt.Sprintf("%s == %s && %s == %s",
		fieldRecipeID, strconv.Quote(recipeID),
		fieldUserID, strconv.Quote(userID))
}

func deleteExpr(recipeID, userID string) string {
	return fmt.Sprintf("%s && %s == %s", ownerExpr(recipeID, userID), fieldChunkType, strconv.Quote(models.ChunkTypeRecipeContent))
}
