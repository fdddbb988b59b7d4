package weaviate

import (
	"context"
	"errors"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"legalrag/src/core/rag"
	"legalrag/src/infrastructure/log"
)

var (
	ErrConnection        = errors.New("weaviate connection failed")
	ErrClassNotFound     = errors.New("weaviate class not found")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Store wraps the Weaviate client as a vector searcher over the pre-indexed
// corpus classes.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// Search performs a nearVector lookup in one class and maps the hits to
// chunks. Results are deduplicated by record id; certainty becomes the score.
func (s *Store) Search(ctx context.Context, className string, vector []float32, topK int) ([]rag.Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	fields := []graphql.Field{
		{Name: "recordId"},
		{Name: "documentId"},
		{Name: "content"},
		{Name: "source"},
		{Name: "categories"},
		{Name: "ordinal"},
		{Name: "_additional { id certainty }"},
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	result, err := s.client.GraphQL().Get().
		WithClassName(className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, rag.Transient(fmt.Errorf("%w: %v", ErrConnection, err))
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("%w: query against class %s: %v", ErrClassNotFound, className, msgs)
	}

	chunks := parseChunks(result.Data, className)
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks, nil
}

// parseChunks walks the untyped GraphQL payload. Weaviate returns hits sorted
// by certainty; duplicates of a record keep the best-scoring occurrence.
func parseChunks(data map[string]models.JSONObject, className string) []rag.Chunk {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := get[className].([]interface{})
	if !ok {
		return nil
	}

	var chunks []rag.Chunk
	seen := make(map[string]bool)
	for _, obj := range objects {
		objMap, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}

		chunk := rag.Chunk{
			RecordID:   asString(objMap["recordId"]),
			DocumentID: asString(objMap["documentId"]),
			Content:    asString(objMap["content"]),
			Source:     asString(objMap["source"]),
			Collection: className,
		}
		if chunk.RecordID == "" || seen[chunk.RecordID] {
			continue
		}
		if ordinal, ok := objMap["ordinal"].(float64); ok {
			chunk.Ordinal = int(ordinal)
		}
		if categories, ok := objMap["categories"].([]interface{}); ok {
			for _, c := range categories {
				if s := asString(c); s != "" {
					chunk.Categories = append(chunk.Categories, s)
				}
			}
		}
		if additional, ok := objMap["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				chunk.Score = certainty
			}
		}

		seen[chunk.RecordID] = true
		chunks = append(chunks, chunk)
	}
	return chunks
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// EnsureCollection verifies at startup that the class exists and that its
// vectors have the expected dimensionality, by probing with a zero vector.
func (s *Store) EnsureCollection(ctx context.Context, className string, dimension int) error {
	class, err := s.classSchema(ctx, className)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if class == nil {
		return fmt.Errorf("%w: %s: %s", rag.ErrConfiguration, ErrClassNotFound, className)
	}

	probe := make([]float32, dimension)
	if _, err := s.Search(ctx, className, probe, 1); err != nil {
		return fmt.Errorf("%w: %s: class %s rejected a %d-dimensional vector: %v",
			rag.ErrConfiguration, ErrDimensionMismatch, className, dimension, err)
	}
	log.Debug("collection verified", "class", className, "dimension", dimension)
	return nil
}

// classSchema returns the class definition, or nil when the class is absent.
func (s *Store) classSchema(ctx context.Context, className string) (*models.Class, error) {
	schema, err := s.client.Schema().Getter().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %v", err)
	}
	for _, class := range schema.Classes {
		if class.Class == className {
			return class, nil
		}
	}
	return nil, nil
}

// Ping reports backend readiness for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if !ready {
		return fmt.Errorf("%w: not ready", ErrConnection)
	}
	return nil
}
