package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"legalrag/src/core/rag"
)

// Client runs full-text queries against the chunk index that mirrors the
// vector corpus. Indexing happens out-of-band during ingestion.
type Client struct {
	es    *elasticsearch.Client
	index string
}

func NewClient(url, index string) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Client{es: es, index: index}, nil
}

type searchEnvelope struct {
	Hits struct {
		Hits []struct {
			Score  float64 `json:"_score"`
			Source struct {
				RecordID   string   `json:"record_id"`
				DocumentID string   `json:"document_id"`
				Content    string   `json:"content"`
				Source     string   `json:"source"`
				Categories []string `json:"categories"`
				Ordinal    int      `json:"ordinal"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchByKeyword matches the terms against chunk content and keyword
// payloads. Elasticsearch BM25 scores are unbounded, so they are collapsed to
// (0,1) with s/(s+1) before merging with vector certainties.
func (c *Client) SearchByKeyword(ctx context.Context, terms []string, topK int) ([]rag.Chunk, error) {
	if len(terms) == 0 || topK <= 0 {
		return nil, nil
	}

	query := map[string]interface{}{
		"size": topK,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  strings.Join(terms, " "),
				"fields": []string{"content", "keywords^2", "source"},
			},
		},
	}
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(&body),
	)
	if err != nil {
		return nil, rag.Transient(fmt.Errorf("keyword search failed: %w", err))
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("keyword search failed: %s", res.Status())
	}

	var envelope searchEnvelope
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	var chunks []rag.Chunk
	seen := make(map[string]bool)
	for _, hit := range envelope.Hits.Hits {
		if hit.Source.RecordID == "" || seen[hit.Source.RecordID] {
			continue
		}
		seen[hit.Source.RecordID] = true
		chunks = append(chunks, rag.Chunk{
			RecordID:   hit.Source.RecordID,
			DocumentID: hit.Source.DocumentID,
			Content:    hit.Source.Content,
			Source:     hit.Source.Source,
			Categories: hit.Source.Categories,
			Ordinal:    hit.Source.Ordinal,
			Score:      hit.Score / (hit.Score + 1),
			Collection: c.index,
		})
	}
	return chunks, nil
}

// Ping reports cluster reachability for the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Info(c.es.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch unreachable: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch unhealthy: %s", res.Status())
	}
	return nil
}
