package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scientia/src/core/chunk"
	"scientia/src/core/index"
	"scientia/src/core/summarize"
	"scientia/src/extract"
	"scientia/src/infrastructure/integrations/ollama"
	"scientia/src/infrastructure/integrations/unstructured"
	"scientia/src/infrastructure/task"
	"scientia/src/log"
	"scientia/src/notify"
	"scientia/src/storage/minioctrl"
	"scientia/src/storage/postgres/artifactctrl"
	"scientia/src/storage/postgres/documentctrl"
	"scientia/src/taskctrl"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background task worker",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	settingDefaultConfig()
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger := log.NewWatermillAdapter()

	// Initialize PostgreSQL connection
	host := viper.GetString("postgres.host")
	user := viper.GetString("postgres.user")
	password := viper.GetString("postgres.password")
	dbname := viper.GetString("postgres.db")
	port := viper.GetString("postgres.port")

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	// Get underlying *sql.DB for cleanup
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %v", err)
	}
	defer sqlDB.Close()

	// Fragments are migrated by the vector store itself, which knows the
	// embedding dimension.
	if err := db.AutoMigrate(
		&documentctrl.Document{},
		&artifactctrl.Artifact{},
		&task.Task{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %v", err)
	}

	// Initialize AMQP publisher for follow-up tasks
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	// Initialize AMQP subscriber for the task queue
	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	// Fanout publisher carries task events to every listening process.
	eventPublisher, err := amqp.NewPublisher(
		amqp.NewDurablePubSubConfig(viper.GetString("amqp.url"), nil),
		logger,
	)
	if err != nil {
		return err
	}
	defer eventPublisher.Close()

	bus := notify.NewBus(eventPublisher, nil)

	// Initialize router
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}

	// Add middleware
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)

	// Initialize MinioService
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize minio service: %v", err)
	}
	if err := minioService.EnsureBucketExists(context.Background(), minioctrl.ArtifactsBucket); err != nil {
		return fmt.Errorf("failed to ensure artifacts bucket: %v", err)
	}

	// Initialize OllamaClient
	ollamaClient := ollama.NewClient(viper.GetString("ollama.url"), &http.Client{Timeout: 120 * time.Second},
		ollama.WithEmbeddingModel(viper.GetString("ollama.embedding_model")),
		ollama.WithGenerateModel(viper.GetString("ollama.generate_model")),
	)

	// Initialize postgres services
	documentService, err := documentctrl.NewDocumentService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize document service: %v", err)
	}
	artifactService, err := artifactctrl.NewArtifactService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact service: %v", err)
	}

	store, err := newVectorStore(db)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %v", err)
	}

	// Initialize the extraction and summarization pipeline
	partitioner := unstructured.NewUnstructuredService(viper.GetString("unstructured.url"), nil)
	extractor := extract.NewExtractor(minioService, partitioner)
	indexer := index.NewIndexer(documentService, extractor, ollamaClient, store, chunk.NewSplitter())
	flow := summarize.NewFlow(ollamaClient)

	// Initialize task handlers, repository and service
	taskRepo := task.NewPostgresRepository(db)
	taskService := task.NewService(
		amqpPublisher,
		taskRepo,
		bus,
		logger,
		taskctrl.NewIndexingTask(indexer),
		taskctrl.NewSummaryTask(documentService, extractor, flow, minioService, artifactService),
		taskctrl.NewReportTask(documentService, extractor, flow, minioService, artifactService),
	)

	// Add handler for processing tasks
	router.AddNoPublisherHandler(
		"task_processor",
		task.Topic,
		amqpSubscriber,
		func(msg *message.Message) error {
			return taskService.ProcessMessage(msg)
		},
	)

	// Run the router
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "Router stopped with error")
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Info("Shutting down...")
	cancel()
	<-router.Running()
	log.Info("Router stopped")

	return nil
}
