package relationships

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/videograph/internal/domain"
	"github.com/yungbote/videograph/internal/platform/logger"
)

// EmbeddingProvider supplies embeddings for concept texts. The OpenAI client
// satisfies it; a nil provider disables every similarity-based fallback.
type EmbeddingProvider interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// embeddingCache memoizes concept embeddings for one extraction run. Both
// detectors share one cache so a concept is embedded at most once. The first
// provider failure disables the cache for the rest of the run.
type embeddingCache struct {
	provider EmbeddingProvider
	log      *logger.Logger

	mu      sync.Mutex
	vectors map[uuid.UUID][]float32
	broken  bool
}

func newEmbeddingCache(provider EmbeddingProvider, log *logger.Logger) *embeddingCache {
	if provider == nil {
		return nil
	}
	return &embeddingCache{
		provider: provider,
		log:      log,
		vectors:  make(map[uuid.UUID][]float32),
	}
}

// vector returns the concept's embedding, or nil when unavailable.
func (c *embeddingCache) vector(ctx context.Context, concept *domain.Concept) []float32 {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return nil
	}
	if v, ok := c.vectors[concept.ID]; ok {
		return v
	}
	out, err := c.provider.Embed(ctx, []string{concept.EmbeddingText()})
	if err != nil || len(out) != 1 {
		c.log.Warn("Concept embedding failed; disabling similarity fallback for this run",
			"concept", concept.Name,
			"error", err,
		)
		c.broken = true
		return nil
	}
	c.vectors[concept.ID] = out[0]
	return out[0]
}
