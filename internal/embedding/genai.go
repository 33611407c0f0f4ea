// SPDX-License-Identifier: MPL-2.0

package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"instagent/internal/issue"
)

// GenAIEngine generates embeddings using Google's Gemini API.
// Documents are embedded with the retrieval-document task type and
// queries with retrieval-query, matching how the index is consumed.
type GenAIEngine struct {
	client *genai.Client
	model  string
}

// NewGenAIEngine creates a Gemini-backed embedding engine.
func NewGenAIEngine(ctx context.Context, apiKey, model string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, issue.NewErrorContext().
			WithOperation("create embedding engine").
			WithResource("GenAI API key").
			WithSuggestion("Set genai.api_key in the config file").
			WithSuggestion("Or export GEMINI_API_KEY").
			Wrap(fmt.Errorf("GenAI API key is required")).
			BuildError()
	}

	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("create GenAI client").
			WithResource(model).
			WithSuggestion("Check the API key is valid").
			Wrap(err).
			BuildError()
	}

	return &GenAIEngine{
		client: client,
		model:  model,
	}, nil
}

// EmbedDocuments embeds transcript chunks for indexing.
func (e *GenAIEngine) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: "RETRIEVAL_DOCUMENT",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI batch embed failed: %w", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("GenAI returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// EmbedQuery embeds a question for retrieval.
func (e *GenAIEngine) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: "RETRIEVAL_QUERY",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}

	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// Dimensions returns the dimensionality of embeddings.
// gemini-embedding-001 produces 768-dimensional vectors.
func (e *GenAIEngine) Dimensions() int {
	return 768
}

// Name returns the engine name.
func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}

// Close closes the GenAI client. The genai SDK's Client holds no
// closable resources, so this is a no-op.
func (e *GenAIEngine) Close() error {
	return nil
}
