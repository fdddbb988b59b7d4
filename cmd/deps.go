package cmd

import (
	"fmt"

	"github.com/spf13/viper"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"legalrag/src/core/generation"
	"legalrag/src/core/query"
	"legalrag/src/core/rag"
	"legalrag/src/core/retrieval"
	"legalrag/src/infrastructure/integrations/embedrpc"
	"legalrag/src/infrastructure/integrations/groq"
	"legalrag/src/infrastructure/integrations/ollama"
	"legalrag/src/storage/elastic"
	"legalrag/src/storage/weaviate"
)

func openPostgres() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return db, nil
}

func newWeaviateStore() (*weaviate.Store, error) {
	wc, err := weaviateClient.NewClient(weaviateClient.Config{
		Host:   viper.GetString("weaviate.url"),
		Scheme: "http",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %v", err)
	}
	return weaviate.NewStore(wc), nil
}

func newElasticClient() (*elastic.Client, error) {
	return elastic.NewClient(
		viper.GetString("elastic.url"),
		viper.GetString("elastic.index"),
	)
}

func newEmbedder() (rag.Embedder, error) {
	dimension := viper.GetInt("embedding.dimension")

	switch backend := viper.GetString("embedding.backend"); backend {
	case "ollama":
		return ollama.NewClient(
			viper.GetString("ollama.url"),
			viper.GetString("embedding.model"),
			viper.GetString("llm.model"),
			dimension,
		)
	case "api":
		return embedrpc.NewClient(viper.GetString("embedding.api_url"), dimension)
	default:
		return nil, fmt.Errorf("%w: unknown embedding backend %q", rag.ErrConfiguration, backend)
	}
}

func newLLMProvider() (rag.LLMProvider, error) {
	switch provider := viper.GetString("llm.provider"); provider {
	case "ollama":
		return ollama.NewClient(
			viper.GetString("ollama.url"),
			viper.GetString("embedding.model"),
			viper.GetString("llm.model"),
			viper.GetInt("embedding.dimension"),
		)
	case "groq":
		return groq.NewProvider(
			viper.GetString("groq.api_key"),
			viper.GetString("groq.base_url"),
			viper.GetString("llm.model"),
		)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", rag.ErrConfiguration, provider)
	}
}

func newRetriever(embedder rag.Embedder, provider rag.LLMProvider, vectors rag.VectorSearcher, keywords rag.KeywordSearcher) (*retrieval.Retriever, error) {
	return retrieval.NewRetriever(
		retrieval.NewKeywordExtractor(provider),
		embedder,
		vectors,
		keywords,
		retrieval.Config{
			QACollection:   viper.GetString("weaviate.qa_class"),
			DocCollection:  viper.GetString("weaviate.doc_class"),
			QATopK:         viper.GetInt("retrieval.qa_top_k"),
			DocTopK:        viper.GetInt("retrieval.doc_top_k"),
			KeywordTopK:    viper.GetInt("retrieval.keyword_top_k"),
			RelevanceFloor: viper.GetFloat64("retrieval.relevance_floor"),
			MergeBoost:     viper.GetFloat64("retrieval.merge_boost"),
		},
	)
}

func newGenerator(provider rag.LLMProvider) *generation.Generator {
	return generation.NewGenerator(provider,
		generation.WithMaxContextBytes(viper.GetInt("generation.max_context_bytes")))
}

func queryConfig(dispatch string) query.Config {
	return query.Config{
		TopK:          viper.GetInt("retrieval.top_k"),
		MaxConcurrent: viper.GetInt("query.max_concurrent"),
		MaxRetries:    viper.GetInt("query.max_retries"),
		RetryBackoff:  viper.GetDuration("query.retry_backoff"),
		Timeout:       viper.GetDuration("query.timeout"),
		CacheTTL:      viper.GetDuration("query.cache_ttl"),
		Dispatch:      dispatch,
		Fingerprint: fmt.Sprintf("topk=%d;qa=%d;doc=%d;floor=%g;boost=%g;model=%s",
			viper.GetInt("retrieval.top_k"),
			viper.GetInt("retrieval.qa_top_k"),
			viper.GetInt("retrieval.doc_top_k"),
			viper.GetFloat64("retrieval.relevance_floor"),
			viper.GetFloat64("retrieval.merge_boost"),
			viper.GetString("llm.model"),
		),
	}
}
