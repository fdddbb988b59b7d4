package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"legalrag/src/core/rag"
)

const DefaultURL = "http://localhost:11434"

// Client adapts a local Ollama instance as both the embedding backend and the
// answer model.
type Client struct {
	api            *api.Client
	embeddingModel string
	generateModel  string
	dimension      int
}

func NewClient(baseURL, embeddingModel, generateModel string, dimension int) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}

	return &Client{
		api:            api.NewClient(parsed, http.DefaultClient),
		embeddingModel: embeddingModel,
		generateModel:  generateModel,
		dimension:      dimension,
	}, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.api.Embed(ctx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, rag.Transient(fmt.Errorf("ollama embedding failed: %w", err))
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			rag.ErrMalformedResponse, len(resp.Embeddings), len(texts))
	}
	for _, v := range resp.Embeddings {
		if len(v) != c.dimension {
			return nil, fmt.Errorf("%w: model %s produced %d-dimensional vector, expected %d",
				rag.ErrConfiguration, c.embeddingModel, len(v), c.dimension)
		}
	}
	return resp.Embeddings, nil
}

func (c *Client) Dimension() int {
	return c.dimension
}

func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	var out string
	err := c.CompleteStream(ctx, system, prompt, func(fragment string) error {
		out += fragment
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// Ping reports whether the ollama server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.api.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	return nil
}

func (c *Client) CompleteStream(ctx context.Context, system, prompt string, fn func(fragment string) error) error {
	stream := true
	req := &api.GenerateRequest{
		Model:  c.generateModel,
		System: system,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": 0.7,
			"top_p":       0.9,
		},
	}

	err := c.api.Generate(ctx, req, func(resp api.GenerateResponse) error {
		if resp.Response == "" {
			return nil
		}
		return fn(resp.Response)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return rag.Transient(fmt.Errorf("ollama generation failed: %w", err))
	}
	return nil
}
