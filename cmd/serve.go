package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	v1 "legalrag/handler/http/v1"
	"legalrag/src/core/query"
	"legalrag/src/core/system"
	"legalrag/src/infrastructure/job"
	"legalrag/src/infrastructure/log"
	"legalrag/src/storage/minioctrl"
	"legalrag/src/storage/postgres/queryctrl"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the question answering server",
	Long:  `The serve command starts an HTTP server that answers legal questions from the indexed corpus.`,
	Run:   RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	settingDefaultConfig()
}

func RunServer(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	// Initialize PostgreSQL connection
	db, err := openPostgres()
	if err != nil {
		log.Error(err, "Failed to connect to database")
		return
	}

	queryService := queryctrl.NewQueryService(db)
	if err := queryService.AutoMigrate(); err != nil {
		log.Error(err, "Failed to migrate query table")
		return
	}

	// Initialize Weaviate client and verify the corpus classes up front
	vectorStore, err := newWeaviateStore()
	if err != nil {
		log.Error(err, "Failed to create weaviate store")
		return
	}

	dimension := viper.GetInt("embedding.dimension")
	for _, class := range []string{viper.GetString("weaviate.qa_class"), viper.GetString("weaviate.doc_class")} {
		if err := vectorStore.EnsureCollection(ctx, class, dimension); err != nil {
			log.Error(err, "Corpus class verification failed", "class", class)
			return
		}
	}

	// Initialize Elasticsearch client
	elasticClient, err := newElasticClient()
	if err != nil {
		log.Error(err, "Failed to create elasticsearch client")
		return
	}

	// Initialize model providers
	embedder, err := newEmbedder()
	if err != nil {
		log.Error(err, "Failed to create embedder")
		return
	}
	provider, err := newLLMProvider()
	if err != nil {
		log.Error(err, "Failed to create llm provider")
		return
	}

	retriever, err := newRetriever(embedder, provider, vectorStore, elasticClient)
	if err != nil {
		log.Error(err, "Failed to create retriever")
		return
	}
	generator := newGenerator(provider)

	// Queue dispatch publishes query jobs to AMQP for the worker pool
	dispatch := viper.GetString("query.dispatch")
	var publisher query.JobPublisher
	if dispatch == query.DispatchQueue {
		amqpPublisher, err := amqp.NewPublisher(
			amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			log.Error(err, "Failed to create AMQP publisher")
			return
		}
		defer amqpPublisher.Close()

		jobRepo, err := job.NewPostgresJobRepository(db)
		if err != nil {
			log.Error(err, "Failed to create job repository")
			return
		}
		if err := jobRepo.AutoMigrate(); err != nil {
			log.Error(err, "Failed to migrate job table")
			return
		}
		publisher = job.NewJobService(amqpPublisher, jobRepo, watermill.NewStdLogger(false, false), nil)
	}

	orchestrator, err := query.NewOrchestrator(queryService, retriever, generator, publisher, queryConfig(dispatch))
	if err != nil {
		log.Error(err, "Failed to create query orchestrator")
		return
	}

	// Initialize MinIO-backed document service
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		log.Error(err, "Failed to create minio service")
		return
	}

	components := map[string]system.Pinger{
		"postgres":      queryService,
		"weaviate":      vectorStore,
		"elasticsearch": elasticClient,
	}
	if p, ok := provider.(system.Pinger); ok {
		components["llm"] = p
	}
	sysService := system.NewService(components)

	handler := v1.NewHandler(orchestrator, minioService, sysService, viper.GetString("minio.document_bucket"))

	// Setup gin router
	r := gin.Default()
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			return
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	timeout := viper.GetDuration("server.shutdown_timeout")
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if sqlDB, err := db.DB(); err != nil {
		log.Error(err, "Failed to get underlying *sql.DB")
	} else if err := sqlDB.Close(); err != nil {
		log.Error(err, "Error closing database connection")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}
	log.Info("Server exited")
}
