package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"legalrag/src/core/rag"
	"legalrag/src/core/retrieval"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vector, s.err
}

func (s *stubEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, s.err
}

func (s *stubEmbedder) Dimension() int { return len(s.vector) }

type stubVectorSearcher struct {
	byCollection map[string][]rag.Chunk
	err          error
}

func (s *stubVectorSearcher) Search(ctx context.Context, collection string, vector []float32, topK int) ([]rag.Chunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byCollection[collection], nil
}

type stubKeywordSearcher struct {
	chunks []rag.Chunk
	err    error
	called bool
}

func (s *stubKeywordSearcher) SearchByKeyword(ctx context.Context, terms []string, topK int) ([]rag.Chunk, error) {
	s.called = true
	if s.err != nil {
		return nil, s.err
	}
	return s.chunks, nil
}

type stubExtractor struct {
	keywords []string
}

func (s *stubExtractor) Extract(ctx context.Context, question string, topK int) []string {
	return s.keywords
}

func chunk(id string, score float64, ordinal int) rag.Chunk {
	return rag.Chunk{RecordID: id, Content: "content " + id, Score: score, Ordinal: ordinal}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name    string
		vector  []rag.Chunk
		keyword []rag.Chunk
		boost   float64
		wantIDs []string
	}{
		{
			name:    "vector only keeps score order",
			vector:  []rag.Chunk{chunk("a", 0.5, 0), chunk("b", 0.9, 0)},
			wantIDs: []string{"b", "a"},
		},
		{
			name:    "overlap gets boosted above plain vector hit",
			vector:  []rag.Chunk{chunk("a", 0.80, 0), chunk("b", 0.82, 0)},
			keyword: []rag.Chunk{chunk("a", 0.60, 0)},
			boost:   0.05,
			wantIDs: []string{"a", "b"},
		},
		{
			name:    "duplicate within one list keeps best score",
			vector:  []rag.Chunk{chunk("a", 0.4, 0), chunk("a", 0.7, 0), chunk("b", 0.5, 0)},
			wantIDs: []string{"a", "b"},
		},
		{
			name:    "keyword-only duplicate is not boosted",
			keyword: []rag.Chunk{chunk("a", 0.50, 0), chunk("a", 0.50, 0), chunk("b", 0.52, 0)},
			boost:   0.05,
			wantIDs: []string{"b", "a"},
		},
		{
			name:    "equal scores break ties by ordinal then record id",
			vector:  []rag.Chunk{chunk("c", 0.5, 2), chunk("b", 0.5, 1), chunk("a", 0.5, 1)},
			wantIDs: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := retrieval.Merge(tt.vector, tt.keyword, tt.boost)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Merge() returned %d chunks, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].RecordID != id {
					t.Errorf("Merge()[%d] = %s, want %s", i, got[i].RecordID, id)
				}
			}
		})
	}
}

func TestMergeDeterministic(t *testing.T) {
	vector := []rag.Chunk{chunk("x", 0.5, 1), chunk("y", 0.5, 1), chunk("z", 0.5, 0)}
	keyword := []rag.Chunk{chunk("w", 0.5, 1)}

	first := retrieval.Merge(vector, keyword, 0.05)
	for i := 0; i < 10; i++ {
		again := retrieval.Merge(vector, keyword, 0.05)
		for j := range first {
			if again[j].RecordID != first[j].RecordID {
				t.Fatalf("Merge() not deterministic: run %d position %d got %s, want %s",
					i, j, again[j].RecordID, first[j].RecordID)
			}
		}
	}
}

func newTestRetriever(t *testing.T, vectors *stubVectorSearcher, keywords *stubKeywordSearcher, extractor retrieval.Extractor) *retrieval.Retriever {
	t.Helper()
	r, err := retrieval.NewRetriever(
		extractor,
		&stubEmbedder{vector: []float32{0.1, 0.2}},
		vectors,
		keywords,
		retrieval.Config{
			QACollection:   "qa",
			DocCollection:  "doc",
			QATopK:         3,
			DocTopK:        6,
			KeywordTopK:    10,
			RelevanceFloor: 0.30,
			MergeBoost:     0.05,
		},
	)
	if err != nil {
		t.Fatalf("NewRetriever() error = %v", err)
	}
	return r
}

func TestRetrieveCombinesCollections(t *testing.T) {
	vectors := &stubVectorSearcher{byCollection: map[string][]rag.Chunk{
		"qa":  {chunk("qa1", 0.9, 0)},
		"doc": {chunk("doc1", 0.8, 0), chunk("doc2", 0.7, 1)},
	}}
	keywords := &stubKeywordSearcher{chunks: []rag.Chunk{chunk("doc1", 0.6, 0)}}
	r := newTestRetriever(t, vectors, keywords, &stubExtractor{keywords: []string{"luật doanh nghiệp"}})

	rs, err := r.Retrieve(context.Background(), "thủ tục đăng ký doanh nghiệp?", 6)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if rs.Insufficient {
		t.Error("Retrieve() marked sufficient results as insufficient")
	}
	if len(rs.Chunks) != 3 {
		t.Fatalf("Retrieve() returned %d chunks, want 3", len(rs.Chunks))
	}
	if rs.Chunks[0].RecordID != "qa1" {
		t.Errorf("Retrieve() top chunk = %s, want qa1", rs.Chunks[0].RecordID)
	}
	if !keywords.called {
		t.Error("Retrieve() never called the keyword searcher")
	}
}

func TestRetrieveKeywordFailureDegradesToVectorOnly(t *testing.T) {
	vectors := &stubVectorSearcher{byCollection: map[string][]rag.Chunk{
		"qa": {chunk("qa1", 0.9, 0)},
	}}
	keywords := &stubKeywordSearcher{err: errors.New("index unavailable")}
	r := newTestRetriever(t, vectors, keywords, &stubExtractor{keywords: []string{"keyword"}})

	rs, err := r.Retrieve(context.Background(), "question", 6)
	if err != nil {
		t.Fatalf("Retrieve() error = %v, want vector-only fallback", err)
	}
	if len(rs.Chunks) != 1 || rs.Chunks[0].RecordID != "qa1" {
		t.Errorf("Retrieve() chunks = %v, want vector results only", rs.Chunks)
	}
}

func TestRetrieveEmptyKeywordsSkipsKeywordSearch(t *testing.T) {
	vectors := &stubVectorSearcher{byCollection: map[string][]rag.Chunk{
		"qa": {chunk("qa1", 0.9, 0)},
	}}
	keywords := &stubKeywordSearcher{}
	r := newTestRetriever(t, vectors, keywords, &stubExtractor{})

	if _, err := r.Retrieve(context.Background(), "question", 6); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if keywords.called {
		t.Error("Retrieve() ran keyword search with no keywords")
	}
}

func TestRetrieveVectorFailurePropagates(t *testing.T) {
	vectors := &stubVectorSearcher{err: rag.Transient(errors.New("connection refused"))}
	r := newTestRetriever(t, vectors, &stubKeywordSearcher{}, &stubExtractor{})

	_, err := r.Retrieve(context.Background(), "question", 6)
	if err == nil {
		t.Fatal("Retrieve() error = nil, want vector search failure")
	}
	if !rag.IsTransient(err) {
		t.Errorf("Retrieve() error = %v, want transient", err)
	}
}

func TestRetrieveInsufficiency(t *testing.T) {
	tests := []struct {
		name   string
		chunks []rag.Chunk
	}{
		{name: "no results"},
		{name: "top score below floor", chunks: []rag.Chunk{chunk("a", 0.1, 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vectors := &stubVectorSearcher{byCollection: map[string][]rag.Chunk{"qa": tt.chunks}}
			r := newTestRetriever(t, vectors, &stubKeywordSearcher{}, &stubExtractor{})

			rs, err := r.Retrieve(context.Background(), "gibberish question", 6)
			if err != nil {
				t.Fatalf("Retrieve() error = %v", err)
			}
			if !rs.Insufficient {
				t.Error("Retrieve() Insufficient = false, want true")
			}
		})
	}
}
