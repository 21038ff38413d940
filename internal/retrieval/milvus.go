package retrieval

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	rediscache "github.com/civic-agent/backend/internal/cache/redis"
	"github.com/civic-agent/backend/internal/llm"
	"github.com/civic-agent/backend/pkg/logger"
	"github.com/civic-agent/backend/pkg/utils"
)

const embeddingCacheTTL = 24 * time.Hour

// MilvusRetriever searches a vector collection of civic knowledge-base
// documents. The redis cache is optional; pass nil to embed on every call.
type MilvusRetriever struct {
	client         client.Client
	embedder       llm.Embedder
	cache          *rediscache.Client
	collectionName string
	vectorDim      int
	ready          atomic.Bool
}

func NewMilvusRetriever(endpoint, collectionName string, vectorDim int, embedder llm.Embedder, cache *rediscache.Client) (*MilvusRetriever, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &MilvusRetriever{
		client:         c,
		embedder:       embedder,
		cache:          cache,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *MilvusRetriever) Close() error {
	return m.client.Close()
}

// EnsureCollection creates and loads the document collection if it does
// not exist, and marks the retriever ready.
func (m *MilvusRetriever) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !has {
		schema := &entity.Schema{
			CollectionName: m.collectionName,
			Description:    "Civic knowledge base document embeddings",
			Fields: []*entity.Field{
				{
					Name:       "doc_id",
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{"max_length": "64"},
				},
				{
					Name:       "embedding",
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.vectorDim)},
				},
				{
					Name:       "title",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "512"},
				},
				{
					Name:       "text",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "4096"},
				},
				{
					Name:       "agency",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "128"},
				},
			},
		}

		err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	m.ready.Store(true)
	logger.Info("Collection loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *MilvusRetriever) Ready() bool {
	return m.ready.Load()
}

// Search embeds the query and runs a vector search. An unloaded or empty
// collection yields an empty slice, not an error.
func (m *MilvusRetriever) Search(ctx context.Context, query string, k int) ([]SourceDocument, error) {
	if !m.Ready() {
		logger.Warn("Vector search skipped, collection not loaded")
		return []SourceDocument{}, nil
	}

	embedding, err := m.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		"",
		[]string{"doc_id", "title", "text"},
		[]entity.Vector{entity.FloatVector(embedding)},
		"embedding",
		entity.L2,
		k,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SourceDocument, 0, k)
	for _, sr := range searchResult {
		docIDCol := sr.Fields.GetColumn("doc_id")
		titleCol := sr.Fields.GetColumn("title")
		textCol := sr.Fields.GetColumn("text")

		for i := 0; i < sr.ResultCount; i++ {
			docID, _ := docIDCol.Get(i)
			title, _ := titleCol.Get(i)
			text, _ := textCol.Get(i)

			results = append(results, SourceDocument{
				SourceID: docID.(string),
				Title:    title.(string),
				Snippet:  text.(string),
				Score:    l2ToSimilarity(sr.Scores[i]),
			})
		}
	}

	logger.Info("Vector search completed",
		zap.Int("k", k),
		zap.Int("results", len(results)),
	)

	return results, nil
}

func (m *MilvusRetriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	hash := utils.HashString(query)

	if m.cache != nil {
		embedding, hit, err := m.cache.GetEmbedding(ctx, hash)
		if err != nil {
			logger.Warn("Embedding cache lookup failed", zap.Error(err))
		} else if hit {
			return embedding, nil
		}
	}

	embedding, err := m.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		if err := m.cache.SetEmbedding(ctx, hash, embedding, embeddingCacheTTL); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}

	return embedding, nil
}

// l2ToSimilarity maps an L2 distance onto (0,1], larger meaning closer.
func l2ToSimilarity(distance float32) float64 {
	return 1.0 / (1.0 + float64(distance))
}
