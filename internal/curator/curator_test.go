package curator

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/applypilot/applypilot/internal/memory"
	"github.com/applypilot/applypilot/internal/question"
)

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			return nil, errors.New("no vector for " + t)
		}
		out[i] = v
	}
	return out, nil
}

type fakeDecider struct {
	answer    memory.Answer
	conflicts []Conflict
}

func (f *fakeDecider) Resolve(c Conflict) (memory.Answer, error) {
	f.conflicts = append(f.conflicts, c)
	return f.answer, nil
}

func TestCategorize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		question string
		answer   memory.Answer
		expect   Category
	}{
		{"positive boolean", "are you authorized to work", memory.String("Yes"), CategoryBoolPositive},
		{"negative via require", "will you require sponsorship", memory.String("No"), CategoryBoolNegative},
		{"negative via need visa", "do you need visa support", memory.String("No"), CategoryBoolNegative},
		{"numeric string", "years of experience", memory.String("5"), CategoryNumeric},
		{"decimal numeric", "expected salary", memory.String("21.50"), CategoryNumeric},
		{"list answer", "which shifts can you work", memory.List([]string{"Day", "Night"}), CategoryList},
		{"pair answer", "country of residence", memory.Pair("United States", "US"), CategoryMapping},
		{"free text", "describe your experience", memory.String("Ten years in logistics"), CategoryText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.question, tt.answer, nil); got != tt.expect {
				t.Fatalf("Categorize = %s, want %s", got, tt.expect)
			}
		})
	}
}

func TestCategorizeCustomTriggers(t *testing.T) {
	t.Parallel()

	got := Categorize("will you require sponsorship", memory.String("No"), []string{"unrelated"})
	if got != CategoryBoolPositive {
		t.Fatalf("custom triggers ignored, got %s", got)
	}
}

func TestCommunities(t *testing.T) {
	t.Parallel()

	// Two tight clusters on different axes plus one outlier.
	vectors := [][]float32{
		{1, 0, 0},
		{0.99, 0.1, 0},
		{0.98, 0.15, 0},
		{0, 1, 0},
		{0.1, 0.99, 0},
		{0, 0, 1},
	}

	got := communities(vectors, 2, 0.9)
	if len(got) != 2 {
		t.Fatalf("want 2 communities, got %d: %v", len(got), got)
	}
	if len(got[0]) != 3 || len(got[1]) != 2 {
		t.Fatalf("unexpected community sizes: %v", got)
	}

	seen := map[int]bool{}
	for _, members := range got {
		for _, idx := range members {
			if seen[idx] {
				t.Fatalf("index %d claimed twice", idx)
			}
			seen[idx] = true
		}
	}
	if seen[5] {
		t.Fatal("outlier must stay unclustered")
	}
}

func TestCommunitiesEmpty(t *testing.T) {
	t.Parallel()

	if got := communities(nil, 2, 0.5); got != nil {
		t.Fatalf("want nil, got %v", got)
	}
}

func cleanupDoc() *memory.Document {
	doc := memory.NewDocument()
	doc.Slots[question.SlotWorkAuth] = memory.String("Yes")
	doc.Questions["are you authorized to work in the us"] = memory.Record{Kind: question.SingleChoice, Answer: memory.String("Yes")}
	doc.Questions["authorized to work in the united states"] = memory.Record{Kind: question.SingleChoice, Answer: memory.String("Yes")}
	doc.Questions["years of warehouse experience"] = memory.Record{Kind: question.ShortText, Answer: memory.String("4")}
	return doc
}

func cleanupVectors() map[string][]float32 {
	return map[string][]float32{
		"are you authorized to work in the us":    {1, 0},
		"authorized to work in the united states": {0.99, 0.05},
	}
}

func TestCleanupMergesAgreeingGroup(t *testing.T) {
	t.Parallel()

	doc := cleanupDoc()
	embedder := &fakeEmbedder{vectors: cleanupVectors()}
	decider := &fakeDecider{}

	out, stats, err := Cleanup(context.Background(), doc, embedder, decider,
		CleanupOptions{MinCommunity: 2, Threshold: 0.9}, zap.NewNop())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	if len(decider.conflicts) != 0 {
		t.Fatalf("agreeing answers must not raise conflicts: %v", decider.conflicts)
	}
	if stats.Merged != 1 || stats.Conflicts != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	// Two boolean questions collapse to one, the numeric one survives.
	if len(out.Questions) != 2 {
		t.Fatalf("want 2 questions after merge, got %d: %v", len(out.Questions), out.Questions)
	}
	if _, ok := out.Questions["years of warehouse experience"]; !ok {
		t.Fatal("singleton question lost")
	}
	if out.Slots[question.SlotWorkAuth].Text != "Yes" {
		t.Fatal("slots must carry over unchanged")
	}
	// Source document untouched.
	if len(doc.Questions) != 3 {
		t.Fatal("input document was modified")
	}
}

func TestCleanupResolvesConflictThroughDecider(t *testing.T) {
	t.Parallel()

	doc := cleanupDoc()
	doc.Questions["authorized to work in the united states"] = memory.Record{
		Kind:   question.SingleChoice,
		Answer: memory.String("No"),
	}

	embedder := &fakeEmbedder{vectors: cleanupVectors()}
	decider := &fakeDecider{answer: memory.String("Yes")}

	out, stats, err := Cleanup(context.Background(), doc, embedder, decider,
		CleanupOptions{MinCommunity: 2, Threshold: 0.9}, zap.NewNop())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	if stats.Conflicts != 1 || len(decider.conflicts) != 1 {
		t.Fatalf("conflict not surfaced: stats=%+v calls=%d", stats, len(decider.conflicts))
	}
	conflict := decider.conflicts[0]
	if len(conflict.Answers) != 2 {
		t.Fatalf("conflict answers = %v", conflict.Answers)
	}

	var merged *memory.Record
	for key, rec := range out.Questions {
		if key != "years of warehouse experience" {
			r := rec
			merged = &r
		}
	}
	if merged == nil || merged.Answer.Text != "Yes" {
		t.Fatalf("decider's answer not applied: %+v", merged)
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()

	doc := memory.NewDocument()
	doc.Slots[question.SlotWorkAuth] = memory.String("Yes")
	doc.Questions["are you authorized to work in the us"] = memory.Record{Answer: memory.String("yes")}
	doc.Questions["authorized to work without sponsorship"] = memory.Record{Answer: memory.String("No")}
	doc.Questions["are you willing to relocate"] = memory.Record{Answer: memory.String("No")}
	doc.Questions["years of forklift experience"] = memory.Record{Answer: memory.String("3")}

	out, stats := Prune(doc, question.DefaultSlotTable(), zap.NewNop())

	// Consistent slot-covered question pruned. Comparison is normalized,
	// so "yes" agrees with "Yes".
	if _, ok := out.Questions["are you authorized to work in the us"]; ok {
		t.Fatal("consistent slot-covered question not pruned")
	}
	// Conflicting answer kept for review.
	if _, ok := out.Questions["authorized to work without sponsorship"]; !ok {
		t.Fatal("conflicting question was dropped")
	}
	// Slot pattern matches but no slot value stored: keep.
	if _, ok := out.Questions["are you willing to relocate"]; !ok {
		t.Fatal("question without a stored slot value was dropped")
	}
	// No slot coverage: keep.
	if _, ok := out.Questions["years of forklift experience"]; !ok {
		t.Fatal("uncovered question was dropped")
	}

	if stats.Removed != 1 || stats.Kept != 3 || stats.Conflicts != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(doc.Questions) != 4 {
		t.Fatal("input document was modified")
	}
}

func TestSuggestTopicsOrdersBySize(t *testing.T) {
	t.Parallel()

	doc := memory.NewDocument()
	vectors := map[string][]float32{
		"how many years of forklift experience": {1, 0},
		"years of forklift experience":          {0.99, 0.05},
		"forklift experience in years":          {0.98, 0.1},
		"are you authorized to work":            {0, 1},
		"work authorization status":             {0.05, 0.99},
		"describe yourself":                     {0.7, 0.7},
	}
	for key := range vectors {
		doc.Questions[key] = memory.Record{Answer: memory.String("x")}
	}

	topics, err := SuggestTopics(context.Background(), doc, &fakeEmbedder{vectors: vectors}, 2, 0.9)
	if err != nil {
		t.Fatalf("SuggestTopics: %v", err)
	}

	if len(topics) != 2 {
		t.Fatalf("want 2 topics, got %v", topics)
	}
	if topics[0].Count != 3 || topics[1].Count != 2 {
		t.Fatalf("topics not ordered by size: %v", topics)
	}
}

func TestSuggestTopicsTooFewQuestions(t *testing.T) {
	t.Parallel()

	doc := memory.NewDocument()
	doc.Questions["only one"] = memory.Record{Answer: memory.String("x")}

	topics, err := SuggestTopics(context.Background(), doc, &fakeEmbedder{}, 2, 0.9)
	if err != nil || topics != nil {
		t.Fatalf("want nil/nil, got %v/%v", topics, err)
	}
}
