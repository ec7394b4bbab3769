// Package llm wraps the Gemini API behind a small JSON-in, JSON-out
// surface shared by the analysis adapter and the plan mutator.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	genai "google.golang.org/genai"
)

// ErrInvalidJSON is returned when the model reply is empty or not the
// requested JSON document.
var ErrInvalidJSON = errors.New("llm: invalid JSON from model")

// Generator is the call shape the adapters depend on; tests substitute a
// fake instead of a live client.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
}

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

// Raw exposes the underlying client for the Veo provider adapter, which
// shares the same credentials.
func (g *GeminiClient) Raw() *genai.Client { return g.cli }

// GenerateJSON sends the prompt plus the JSON-encoded input and requests an
// application/json reply. No retries here: callers own their retry policy.
func (g *GeminiClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	in, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return nil, err
	}
	full := prompt + "\n\n[INPUT JSON]\n" + string(in)

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrInvalidJSON
	}
	txt := resp.Candidates[0].Content.Parts[0].Text
	if !json.Valid([]byte(txt)) {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(txt), nil
}
