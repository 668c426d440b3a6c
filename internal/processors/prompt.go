package processors

import (
	"context"
	"errors"
	"fmt"

	"workflowd/internal/workflow"
)

// PromptResult is a free-form completion.
type PromptResult struct {
	Response   string   `json:"response"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
	Tokens     int      `json:"tokens"`
	Model      string   `json:"model"`
}

func (r PromptResult) Primary() any { return r.Response }

// promptOptions are the sampling settings for conversational prompts.
var promptOptions = map[string]any{
	"temperature": 0.7,
	"top_p":       0.9,
	"num_predict": 1000,
}

// Prompter handles the prompt action.
type Prompter struct {
	Runtime       Runtime
	Model         string
	MaxTextLength int
}

func (p *Prompter) Handle(ctx context.Context, t *workflow.Task) (workflow.Result, error) {
	if t.Content == "" {
		return nil, invalidf("task has no content")
	}
	if err := validateLength("prompt", t.Content, p.MaxTextLength); err != nil {
		return nil, err
	}
	out, err := p.Runtime.Generate(ctx, p.Model, t.Content, nil, promptOptions)
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	if out == "" {
		return nil, errors.New("prompt: model returned an empty response")
	}
	return PromptResult{
		Response:   out,
		Confidence: 0.8,
		Sources:    []string{},
		Tokens:     estimateTokens(out),
		Model:      p.Model,
	}, nil
}
