// SPDX-License-Identifier: MPL-2.0

// Package embedding generates vector embeddings for transcript chunks and
// questions via the Gemini API.
package embedding

import "context"

// Engine generates vector embeddings for text. Index-time and query-time
// embeddings use different task types, so the two sides are separate
// methods.
type Engine interface {
	// EmbedDocuments embeds transcript chunks for indexing.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a question for retrieval.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the engine name.
	Name() string

	// Close releases the engine's resources.
	Close() error
}
