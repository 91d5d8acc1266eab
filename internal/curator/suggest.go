package curator

import (
	"context"
	"fmt"
	"sort"

	"github.com/applypilot/applypilot/internal/ai"
	"github.com/applypilot/applypilot/internal/memory"
)

// Topic is a recurring question theme found in memory, a candidate for a
// new slot rule.
type Topic struct {
	Representative string
	Count          int
}

// SuggestTopics clusters every stored question loosely and returns the
// themes ordered by how often they recur. minSize and threshold fall back
// to the suggestion defaults when zero.
func SuggestTopics(ctx context.Context, doc *memory.Document, embedder ai.Embedder, minSize int, threshold float64) ([]Topic, error) {
	if minSize == 0 {
		minSize = SuggestMinCommunity
	}
	if threshold == 0 {
		threshold = SuggestThreshold
	}

	keys := make([]string, 0, len(doc.Questions))
	for key := range doc.Questions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if len(keys) < 2 {
		return nil, nil
	}

	vectors, err := embedder.EmbedBatch(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("embed questions: %w", err)
	}
	if len(vectors) != len(keys) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d questions", len(vectors), len(keys))
	}

	var topics []Topic
	for _, members := range communities(vectors, minSize, threshold) {
		topics = append(topics, Topic{
			Representative: keys[members[0]],
			Count:          len(members),
		})
	}

	sort.SliceStable(topics, func(i, j int) bool { return topics[i].Count > topics[j].Count })
	return topics, nil
}
