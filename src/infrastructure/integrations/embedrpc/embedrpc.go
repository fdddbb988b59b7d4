package embedrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"legalrag/src/core/rag"
)

// Client talks to the remote embedding HTTP service: a single POST endpoint
// that embeds a batch of texts in one round trip.
type Client struct {
	httpClient *http.Client
	url        string
	dimension  int
}

func NewClient(url string, dimension int) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: embedding service url is required", rag.ErrConfiguration)
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        url,
		dimension:  dimension,
	}, nil
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, rag.Transient(fmt.Errorf("embedding request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, rag.Transient(fmt.Errorf("embedding service returned %s", resp.Status))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned %s", resp.Status)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrMalformedResponse, err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			rag.ErrMalformedResponse, len(parsed.Embeddings), len(texts))
	}
	for _, v := range parsed.Embeddings {
		if len(v) != c.dimension {
			return nil, fmt.Errorf("%w: service produced %d-dimensional vector, expected %d",
				rag.ErrConfiguration, len(v), c.dimension)
		}
	}
	return parsed.Embeddings, nil
}

func (c *Client) Dimension() int {
	return c.dimension
}
