package retrieval

import (
	"context"
	"fmt"
	"sort"

	"legalrag/src/core/rag"
	"legalrag/src/infrastructure/log"
)

// Extractor derives search terms from a question. Failures are absorbed by
// the implementation: an empty set means "fall back to vector-only search".
type Extractor interface {
	Extract(ctx context.Context, question string, topK int) []string
}

// Config holds the retrieval tuning parameters. RelevanceFloor and MergeBoost
// are deliberately configurable: the upstream corpus gives no derivation for
// any particular value.
type Config struct {
	QACollection   string
	DocCollection  string
	QATopK         int
	DocTopK        int
	KeywordTopK    int
	RelevanceFloor float64
	MergeBoost     float64
}

// Retriever combines keyword and vector search over the corpus, merges and
// ranks the candidates, and bounds the context window handed to generation.
type Retriever struct {
	extractor Extractor
	embedder  rag.Embedder
	vectors   rag.VectorSearcher
	keywords  rag.KeywordSearcher
	cfg       Config
}

func NewRetriever(extractor Extractor, embedder rag.Embedder, vectors rag.VectorSearcher, keywords rag.KeywordSearcher, cfg Config) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector searcher is required")
	}
	return &Retriever{
		extractor: extractor,
		embedder:  embedder,
		vectors:   vectors,
		keywords:  keywords,
		cfg:       cfg,
	}, nil
}

// Retrieve runs the full retrieval pipeline for a question and returns the
// ranked, truncated chunk set. It is a pure function of store state: no side
// effects beyond the outbound provider calls.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) (rag.ResultSet, error) {
	// Keyword extraction and question embedding are independent; run both
	// before either search starts.
	keywordCh := make(chan []string, 1)
	go func() {
		if r.extractor == nil {
			keywordCh <- nil
			return
		}
		keywordCh <- r.extractor.Extract(ctx, question, r.cfg.KeywordTopK)
	}()

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		<-keywordCh
		return rag.ResultSet{}, fmt.Errorf("failed to embed question: %w", err)
	}
	keywords := <-keywordCh

	// Both searches run concurrently. A keyword-search failure degrades to
	// vector-only; a vector-search failure fails the whole retrieval.
	type vectorOut struct {
		chunks []rag.Chunk
		err    error
	}
	vectorCh := make(chan vectorOut, 1)
	go func() {
		qa, err := r.vectors.Search(ctx, r.cfg.QACollection, vector, r.cfg.QATopK)
		if err != nil {
			vectorCh <- vectorOut{err: fmt.Errorf("qa collection search failed: %w", err)}
			return
		}
		docs, err := r.vectors.Search(ctx, r.cfg.DocCollection, vector, r.cfg.DocTopK)
		if err != nil {
			vectorCh <- vectorOut{err: fmt.Errorf("doc collection search failed: %w", err)}
			return
		}
		vectorCh <- vectorOut{chunks: append(qa, docs...)}
	}()

	var keywordChunks []rag.Chunk
	if len(keywords) > 0 && r.keywords != nil {
		keywordChunks, err = r.keywords.SearchByKeyword(ctx, keywords, topK)
		if err != nil {
			log.Error(err, "keyword search failed, continuing vector-only")
			keywordChunks = nil
		}
	}

	out := <-vectorCh
	if out.err != nil {
		return rag.ResultSet{}, out.err
	}

	merged := Merge(out.chunks, keywordChunks, r.cfg.MergeBoost)
	if len(merged) > topK {
		merged = merged[:topK]
	}

	rs := rag.ResultSet{
		Chunks:   merged,
		Keywords: keywords,
	}
	if len(merged) == 0 || merged[0].Score < r.cfg.RelevanceFloor {
		rs.Insufficient = true
	}
	return rs, nil
}

// Merge combines vector and keyword search results. A record present in both
// lists is boosted: its score becomes the maximum of the two plus boost.
// Ordering is deterministic: score descending, then chunk ordinal ascending,
// then record ID.
func Merge(vector, keyword []rag.Chunk, boost float64) []rag.Chunk {
	merged := make([]rag.Chunk, 0, len(vector)+len(keyword))
	index := make(map[string]int, len(vector))
	inVector := make(map[string]bool, len(vector))

	for _, c := range vector {
		if i, ok := index[c.RecordID]; ok {
			if c.Score > merged[i].Score {
				merged[i].Score = c.Score
			}
			continue
		}
		index[c.RecordID] = len(merged)
		inVector[c.RecordID] = true
		merged = append(merged, c)
	}

	boosted := make(map[string]bool)
	for _, c := range keyword {
		i, ok := index[c.RecordID]
		if !ok {
			index[c.RecordID] = len(merged)
			merged = append(merged, c)
			continue
		}
		if c.Score > merged[i].Score {
			merged[i].Score = c.Score
		}
		// Boost once per record, only for genuine cross-list overlap.
		if inVector[c.RecordID] && !boosted[c.RecordID] {
			merged[i].Score += boost
			boosted[c.RecordID] = true
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		if merged[i].Ordinal != merged[j].Ordinal {
			return merged[i].Ordinal < merged[j].Ordinal
		}
		return merged[i].RecordID < merged[j].RecordID
	})

	return merged
}
