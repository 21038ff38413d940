package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/civic-agent/backend/pkg/logger"
)

// fallbackRetriever tries the primary retriever first and falls back to
// the secondary only when the primary returns nothing. A primary error is
// logged and treated as an empty result so the fallback still runs.
type fallbackRetriever struct {
	primary   Retriever
	secondary Retriever
}

// WithFallback composes two retrievers. The secondary may be nil, in
// which case the primary is returned unchanged.
func WithFallback(primary, secondary Retriever) Retriever {
	if secondary == nil {
		return primary
	}
	return &fallbackRetriever{primary: primary, secondary: secondary}
}

func (f *fallbackRetriever) Search(ctx context.Context, query string, k int) ([]SourceDocument, error) {
	docs, err := f.primary.Search(ctx, query, k)
	if err != nil {
		logger.Warn("Primary retriever failed, using fallback", zap.Error(err))
		docs = nil
	}
	if len(docs) > 0 {
		return docs, nil
	}

	return f.secondary.Search(ctx, query, k)
}

func (f *fallbackRetriever) Ready() bool {
	return f.primary.Ready() || f.secondary.Ready()
}
