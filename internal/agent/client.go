// SPDX-License-Identifier: MPL-2.0

// Package agent wraps the Gemini API for answering questions over indexed
// transcripts and for transcribing extracted audio.
package agent

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"instagent/internal/issue"
)

// transcribePrompt instructs the model to return the raw transcript only.
const transcribePrompt = "Transcris cet audio en texte brut, sans commentaire ni mise en forme."

// Client talks to the Gemini API.
type Client struct {
	client          *genai.Client
	chatModel       string
	transcribeModel string
}

// NewClient creates a Gemini client for chat and transcription.
func NewClient(ctx context.Context, apiKey, chatModel, transcribeModel string) (*Client, error) {
	if apiKey == "" {
		return nil, issue.NewErrorContext().
			WithOperation("create GenAI client").
			WithResource("GenAI API key").
			WithSuggestion("Set genai.api_key in the config file").
			WithSuggestion("Or export GEMINI_API_KEY").
			Wrap(fmt.Errorf("GenAI API key is required")).
			BuildError()
	}
	if chatModel == "" {
		chatModel = "gemini-2.5-flash"
	}
	if transcribeModel == "" {
		transcribeModel = chatModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("create GenAI client").
			WithResource(chatModel).
			WithSuggestion("Check the API key is valid").
			Wrap(err).
			BuildError()
	}

	return &Client{
		client:          client,
		chatModel:       chatModel,
		transcribeModel: transcribeModel,
	}, nil
}

// BuildPrompt renders the grounding prompt: the retrieved chunks joined by
// newlines, then the question, with an instruction to answer only from the
// given context.
func BuildPrompt(question string, contextChunks []string) string {
	context := strings.Join(contextChunks, "\n")
	return fmt.Sprintf("Réponds à la question uniquement avec le contexte ci-dessous:\n%s\n\nQuestion: %s", context, question)
}

// Answer generates a grounded answer to question from the given context
// chunks.
func (c *Client) Answer(ctx context.Context, question string, contextChunks []string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(BuildPrompt(question, contextChunks), genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.chatModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GenAI chat failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("GenAI returned an empty answer")
	}
	return text, nil
}

// Transcribe turns audio bytes into text. mimeType names the audio format,
// e.g. "audio/mp3".
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio data to transcribe")
	}
	if mimeType == "" {
		mimeType = "audio/mp3"
	}

	parts := []*genai.Part{
		genai.NewPartFromText(transcribePrompt),
		genai.NewPartFromBytes(audio, mimeType),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.transcribeModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GenAI transcription failed: %w", err)
	}

	return resp.Text(), nil
}

// Close closes the GenAI client. The genai SDK's Client holds no
// closable resources, so this is a no-op.
func (c *Client) Close() error {
	return nil
}
