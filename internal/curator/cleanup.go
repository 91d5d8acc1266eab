package curator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/applypilot/applypilot/internal/ai"
	"github.com/applypilot/applypilot/internal/memory"
	"github.com/applypilot/applypilot/internal/textnorm"
)

// Conflict describes a group of semantically equivalent questions whose
// stored answers disagree. Questions preserves encounter order with the
// cluster seed first.
type Conflict struct {
	Representative string
	Questions      []string
	Answers        []memory.Answer
}

// Decider resolves an answer conflict, typically by asking the operator.
// Returning an error aborts the cleanup run.
type Decider interface {
	Resolve(c Conflict) (memory.Answer, error)
}

// CleanupOptions tune the semantic grouping pass.
type CleanupOptions struct {
	// MinCommunity and Threshold gate cluster formation. Zero values take
	// the package defaults.
	MinCommunity int
	Threshold    float64
	// NegativeTriggers overrides the boolean polarity keywords.
	NegativeTriggers []string
}

// CleanupStats summarizes one cleanup run.
type CleanupStats struct {
	Groups    int
	Merged    int
	Conflicts int
}

// group is one set of equivalent questions keyed into the source document.
type group struct {
	representative string
	keys           []string
}

// Cleanup deduplicates the question namespace of a memory document.
// Questions are bucketed by answer category, clustered semantically inside
// each bucket, and each cluster collapses to its representative question.
// Clusters whose answers disagree go through the decider. The input
// document is not modified.
func Cleanup(ctx context.Context, doc *memory.Document, embedder ai.Embedder, decider Decider, opts CleanupOptions, log *zap.Logger) (*memory.Document, *CleanupStats, error) {
	if log == nil {
		log = zap.NewNop()
	}
	minSize := opts.MinCommunity
	if minSize == 0 {
		minSize = CleanupMinCommunity
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = CleanupThreshold
	}

	// Bucket by category so a positive and a negative yes/no question can
	// never merge. Keys are sorted for a deterministic pass order.
	buckets := make(map[Category][]string)
	for key, rec := range doc.Questions {
		if rec.Answer.Empty() {
			continue
		}
		cat := Categorize(key, rec.Answer, opts.NegativeTriggers)
		buckets[cat] = append(buckets[cat], key)
	}
	categories := make([]Category, 0, len(buckets))
	for cat := range buckets {
		sort.Strings(buckets[cat])
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	var groups []group
	for _, cat := range categories {
		keys := buckets[cat]
		log.Info("clustering category", zap.String("category", string(cat)), zap.Int("questions", len(keys)))

		clustered, err := clusterKeys(ctx, embedder, keys, minSize, threshold)
		if err != nil {
			return nil, nil, fmt.Errorf("cluster %s questions: %w", cat, err)
		}
		groups = append(groups, clustered...)
	}

	out := memory.NewDocument()
	for slot, ans := range doc.Slots {
		out.Slots[slot] = ans
	}

	stats := &CleanupStats{Groups: len(groups)}
	for _, g := range groups {
		rec := doc.Questions[g.keys[0]]

		answers := uniqueAnswers(doc, g.keys)
		if len(answers) > 1 {
			stats.Conflicts++
			chosen, err := decider.Resolve(Conflict{
				Representative: g.representative,
				Questions:      g.keys,
				Answers:        answers,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("resolve conflict for %q: %w", g.representative, err)
			}
			rec.Answer = chosen
		}
		if len(g.keys) > 1 {
			stats.Merged += len(g.keys) - 1
		}

		out.Questions[textnorm.Question(g.representative)] = rec
	}

	log.Info("cleanup complete",
		zap.Int("groups", stats.Groups),
		zap.Int("merged", stats.Merged),
		zap.Int("conflicts", stats.Conflicts),
	)
	return out, stats, nil
}

// clusterKeys groups the keys of one category. Singletons and categories
// too small to embed pass through as their own groups.
func clusterKeys(ctx context.Context, embedder ai.Embedder, keys []string, minSize int, threshold float64) ([]group, error) {
	if len(keys) < 2 || embedder == nil {
		groups := make([]group, 0, len(keys))
		for _, key := range keys {
			groups = append(groups, group{representative: key, keys: []string{key}})
		}
		return groups, nil
	}

	vectors, err := embedder.EmbedBatch(ctx, keys)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(keys) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d questions", len(vectors), len(keys))
	}

	var groups []group
	clustered := make(map[int]bool, len(keys))
	for _, members := range communities(vectors, minSize, threshold) {
		g := group{representative: keys[members[0]]}
		for _, idx := range members {
			g.keys = append(g.keys, keys[idx])
			clustered[idx] = true
		}
		groups = append(groups, g)
	}

	// Everything outside a community survives untouched.
	for i, key := range keys {
		if !clustered[i] {
			groups = append(groups, group{representative: key, keys: []string{key}})
		}
	}
	return groups, nil
}

// uniqueAnswers returns the distinct answers of a group in first-seen
// order, compared by serialized form.
func uniqueAnswers(doc *memory.Document, keys []string) []memory.Answer {
	seen := make(map[string]bool)
	var answers []memory.Answer
	for _, key := range keys {
		ans := doc.Questions[key].Answer
		data, err := json.Marshal(ans)
		if err != nil {
			continue
		}
		if !seen[string(data)] {
			seen[string(data)] = true
			answers = append(answers, ans)
		}
	}
	return answers
}
