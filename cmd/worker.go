package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"legalrag/src/core/query"
	"legalrag/src/infrastructure/job"
	"legalrag/src/infrastructure/log"
	"legalrag/src/storage/postgres/queryctrl"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background query worker",
	Long:  `The worker command consumes query jobs from the queue and runs the answer pipeline for them.`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	settingDefaultConfig()
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger := watermill.NewStdLogger(false, false)

	// Initialize PostgreSQL connection
	db, err := openPostgres()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %v", err)
	}
	defer sqlDB.Close()

	queryService := queryctrl.NewQueryService(db)
	if err := queryService.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate query table: %v", err)
	}

	// Initialize search backends and model providers
	vectorStore, err := newWeaviateStore()
	if err != nil {
		return err
	}
	elasticClient, err := newElasticClient()
	if err != nil {
		return err
	}
	embedder, err := newEmbedder()
	if err != nil {
		return err
	}
	provider, err := newLLMProvider()
	if err != nil {
		return err
	}
	retriever, err := newRetriever(embedder, provider, vectorStore, elasticClient)
	if err != nil {
		return err
	}
	generator := newGenerator(provider)

	// The worker always executes locally; queue dispatch is the server side
	orchestrator, err := query.NewOrchestrator(queryService, retriever, generator, nil, queryConfig(query.DispatchLocal))
	if err != nil {
		return err
	}

	// Initialize AMQP publisher
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	// Initialize AMQP subscriber
	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(
		subscriberConfig,
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	// Initialize router
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)

	jobRepo, err := job.NewPostgresJobRepository(db)
	if err != nil {
		return fmt.Errorf("failed to create job repository: %v", err)
	}
	if err := jobRepo.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate job table: %v", err)
	}
	jobService := job.NewJobService(amqpPublisher, jobRepo, logger, orchestrator)

	router.AddNoPublisherHandler(
		"query_processor",
		job.QueryTopic,
		amqpSubscriber,
		func(msg *message.Message) error {
			return jobService.ProcessJobMessage(msg)
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "Router stopped with error")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Info("Shutting down worker...")
	cancel()
	<-router.Running()
	log.Info("Router stopped")

	return nil
}
