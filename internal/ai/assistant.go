// Package ai declares the generative-backend capabilities the resolution
// engine and the offline curator consume. Implementations live in
// provider subpackages.
package ai

import "context"

// Assistant answers form questions from a knowledge document. It is
// treated as untrusted: ChooseOption must return one of the offered
// options verbatim or nothing at all.
type Assistant interface {
	// ChooseOption picks the single best option for the question, or ""
	// when the backend cannot decide. Implementations never coerce a
	// response onto the option set.
	ChooseOption(ctx context.Context, questionText string, options []string, knowledge string) (string, error)

	// FillText produces free text for a short/long text question, bounded
	// by charBudget. An empty result means "no answer".
	FillText(ctx context.Context, questionText string, knowledge string, charBudget int) (string, error)
}

// Embedder produces semantic embeddings for question clustering.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
