package processors

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"workflowd/internal/ollama"
	"workflowd/internal/workflow"
)

const (
	embeddingDimensions = 1536
	compactDimensions   = 768
)

// EmbeddingResult is the vector produced for a text.
type EmbeddingResult struct {
	Embedding  []float64 `json:"embedding"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Tokens     int       `json:"tokens"`
}

func (r EmbeddingResult) Primary() any { return r.Embedding }

// Embedder handles the embedding action.
type Embedder struct {
	Runtime       Runtime
	Model         string
	MaxTextLength int
	Log           zerolog.Logger
}

// Handle embeds Content, or Text when Content is empty. Vectors of 768
// dimensions are zero-padded to 1536; any other size is rejected.
func (e *Embedder) Handle(ctx context.Context, t *workflow.Task) (workflow.Result, error) {
	text := t.Content
	if text == "" {
		text = t.Text
	}
	if text == "" {
		return nil, invalidf("task has neither content nor text")
	}
	if err := validateLength("text", text, e.MaxTextLength); err != nil {
		return nil, err
	}
	vec, err := e.Runtime.Embed(ctx, e.Model, text, map[string]any{"dimensions": embeddingDimensions})
	if err != nil {
		if ollama.IsModelNotFound(err) {
			e.Log.Error().Str("model", e.Model).Msg("embedding model missing from runtime; run `workflowd models ensure`")
		}
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(vec) == 0 {
		return nil, errors.New("embedding: model returned an empty vector")
	}
	switch len(vec) {
	case embeddingDimensions:
	case compactDimensions:
		e.Log.Debug().Int("dimensions", len(vec)).Msg("padding embedding to 1536")
		padded := make([]float64, embeddingDimensions)
		copy(padded, vec)
		vec = padded
	default:
		return nil, fmt.Errorf("embedding: unexpected dimensions %d (want 768 or 1536)", len(vec))
	}
	return EmbeddingResult{
		Embedding:  vec,
		Model:      e.Model,
		Dimensions: embeddingDimensions,
		Tokens:     estimateTokens(text),
	}, nil
}
