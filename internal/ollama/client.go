package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
)

// Inventory is the set of model identifiers reported by the runtime.
type Inventory map[string]struct{}

// NewInventory builds an Inventory from names.
func NewInventory(names ...string) Inventory {
	inv := make(Inventory, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			inv[n] = struct{}{}
		}
	}
	return inv
}

// Has reports exact membership. A name without a tag also matches its
// ":latest" variant, which is how the runtime lists untagged pulls.
func (inv Inventory) Has(name string) bool {
	if _, ok := inv[name]; ok {
		return true
	}
	if !strings.Contains(name, ":") {
		_, ok := inv[name+":latest"]
		return ok
	}
	return false
}

// Names returns the inventory sorted.
func (inv Inventory) Names() []string {
	out := make([]string, 0, len(inv))
	for n := range inv {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Client talks to the runtime HTTP API.
type Client struct {
	api     *api.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient builds a client for baseURL. A nil hc uses http.DefaultClient.
func NewClient(baseURL string, hc *http.Client, log zerolog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ollama base url %q", baseURL)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{api: api.NewClient(u, hc), baseURL: u.String(), log: log}, nil
}

// BaseURL returns the normalized runtime URL.
func (c *Client) BaseURL() string { return c.baseURL }

// TagsURL is the inventory endpoint, also used as the readiness probe.
func (c *Client) TagsURL() string { return c.baseURL + "/api/tags" }

// Models lists the local inventory.
func (c *Client) Models(ctx context.Context) (Inventory, error) {
	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	inv := make(Inventory, len(resp.Models))
	for _, m := range resp.Models {
		if m.Name != "" {
			inv[m.Name] = struct{}{}
		}
		if m.Model != "" {
			inv[m.Model] = struct{}{}
		}
	}
	return inv, nil
}

// Pull fetches name into the local inventory, logging progress at debug level.
func (c *Client) Pull(ctx context.Context, name string) error {
	last := ""
	err := c.api.Pull(ctx, &api.PullRequest{Model: name, Name: name}, func(p api.ProgressResponse) error {
		if p.Status != last {
			last = p.Status
			c.log.Debug().Str("model", name).Str("status", p.Status).Int64("completed", p.Completed).Int64("total", p.Total).Msg("pull progress")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("pull %s: %w", name, err)
	}
	return nil
}

// Generate runs a non-streaming completion and returns the trimmed response text.
func (c *Client) Generate(ctx context.Context, model, prompt string, images [][]byte, options map[string]any) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  &stream,
		Options: options,
	}
	for _, img := range images {
		req.Images = append(req.Images, api.ImageData(img))
	}
	var sb strings.Builder
	err := c.api.Generate(ctx, req, func(r api.GenerateResponse) error {
		sb.WriteString(r.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", model, err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// Embed returns the embedding vector for text. A model the runtime does not
// have is reported as a model-not-found error.
func (c *Client) Embed(ctx context.Context, model, text string, options map[string]any) ([]float64, error) {
	resp, err := c.api.Embeddings(ctx, &api.EmbeddingRequest{Model: model, Prompt: text, Options: options})
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, modelNotFoundError{model: model, err: err}
		}
		return nil, fmt.Errorf("embeddings %s: %w", model, err)
	}
	return resp.Embedding, nil
}

// modelNotFoundError reports a request for a model absent from the runtime.
type modelNotFoundError struct {
	model string
	err   error
}

func (e modelNotFoundError) Error() string {
	return fmt.Sprintf("model %s not found in runtime: %v", e.model, e.err)
}
func (e modelNotFoundError) Unwrap() error { return e.err }

// IsModelNotFound reports whether err is a model-not-found error.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// statusCode extracts the HTTP status from a non-streaming runtime error, or 0.
// Streaming calls (pull, generate) surface the runtime message as a plain error.
func statusCode(err error) int {
	var se api.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
